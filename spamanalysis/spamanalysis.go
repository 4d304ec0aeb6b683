// Package spamanalysis provides types for the spam verdicts the server
// attaches to emails. The server runs Rspamd; the fields mirror its
// output.
package spamanalysis

// SpamAction represents the recommended action from spam analysis.
type SpamAction string

const (
	// ActionNoAction indicates the email is clean and should be delivered normally.
	ActionNoAction SpamAction = "no action"
	// ActionGreylist indicates a temporary rejection to retry later.
	ActionGreylist SpamAction = "greylist"
	// ActionAddHeader indicates spam headers should be added but email delivered.
	ActionAddHeader SpamAction = "add header"
	// ActionRewriteSubject indicates the subject should be modified to indicate spam.
	ActionRewriteSubject SpamAction = "rewrite subject"
	// ActionSoftReject indicates a temporary rejection (4xx SMTP code).
	ActionSoftReject SpamAction = "soft reject"
	// ActionReject indicates a permanent rejection (5xx SMTP code).
	ActionReject SpamAction = "reject"
)

// SpamStatus represents the status of spam analysis.
type SpamStatus string

const (
	// StatusAnalyzed indicates the email was successfully analyzed.
	StatusAnalyzed SpamStatus = "analyzed"
	// StatusSkipped indicates analysis was skipped (disabled globally or per-inbox).
	StatusSkipped SpamStatus = "skipped"
	// StatusError indicates analysis failed (analyzer unavailable, timeout, etc.).
	StatusError SpamStatus = "error"
)

// SpamSymbol represents an individual spam rule triggered during analysis.
type SpamSymbol struct {
	// Name is the rule identifier (e.g., "DKIM_SIGNED", "FORGED_SENDER").
	Name string `json:"name"`
	// Score is the contribution from this rule. Positive values increase
	// the spam score, negative values decrease it.
	Score float64 `json:"score"`
	// Description is a human-readable description of what this rule detects.
	Description string `json:"description,omitempty"`
	// Options contains additional context or matched values
	// (e.g., for URL rules, the matched URLs).
	Options []string `json:"options,omitempty"`
}

// SpamAnalysis contains the result of spam analysis for an email.
type SpamAnalysis struct {
	// Status indicates the analysis result status.
	Status SpamStatus `json:"status"`
	// Score is the overall spam score (positive = more spammy).
	// Only present when Status is "analyzed".
	Score *float64 `json:"score,omitempty"`
	// RequiredScore is the threshold for spam classification. Emails
	// with Score >= RequiredScore are considered spam.
	RequiredScore *float64 `json:"requiredScore,omitempty"`
	// Action is the recommended action based on score thresholds.
	Action SpamAction `json:"action,omitempty"`
	// IsSpam indicates whether the email is classified as spam.
	IsSpam *bool `json:"isSpam,omitempty"`
	// Symbols contains the list of triggered spam rules with their scores.
	Symbols []SpamSymbol `json:"symbols,omitempty"`
	// ProcessingTimeMs is the time taken for spam analysis in milliseconds.
	ProcessingTimeMs *int `json:"processingTimeMs,omitempty"`
	// Info contains the error message when Status is "error" and the
	// skip reason when Status is "skipped".
	Info string `json:"info,omitempty"`
}

// GetScore returns the spam score, or nil if analysis was not performed.
func (s *SpamAnalysis) GetScore() *float64 {
	if s == nil || s.Status != StatusAnalyzed {
		return nil
	}
	return s.Score
}

// GetIsSpam returns whether the email is spam, or nil if unknown.
func (s *SpamAnalysis) GetIsSpam() *bool {
	if s == nil || s.Status != StatusAnalyzed {
		return nil
	}
	return s.IsSpam
}

// WasAnalyzed returns true if spam analysis was successfully performed.
func (s *SpamAnalysis) WasAnalyzed() bool {
	return s != nil && s.Status == StatusAnalyzed
}

// WasSkipped returns true if spam analysis was intentionally skipped.
func (s *SpamAnalysis) WasSkipped() bool {
	return s != nil && s.Status == StatusSkipped
}

// HasError returns true if spam analysis failed with an error.
func (s *SpamAnalysis) HasError() bool {
	return s != nil && s.Status == StatusError
}

// SpamValidation provides a summary of spam analysis validation.
type SpamValidation struct {
	// Available indicates whether spam analysis results are available.
	Available bool
	// IsSpam indicates whether the email is classified as spam.
	// Only meaningful when Available is true.
	IsSpam bool
	// Score is the spam score. Only meaningful when Available is true.
	Score float64
	// Action is the recommended action. Only meaningful when Available is true.
	Action SpamAction
	// Reason contains the skip reason or error message when Available is false.
	Reason string
}

// Validate summarizes the spam analysis results.
func (s *SpamAnalysis) Validate() SpamValidation {
	if s == nil {
		return SpamValidation{
			Available: false,
			Reason:    "no spam analysis results available",
		}
	}

	switch s.Status {
	case StatusAnalyzed:
		score := float64(0)
		if s.Score != nil {
			score = *s.Score
		}
		isSpam := false
		if s.IsSpam != nil {
			isSpam = *s.IsSpam
		}
		return SpamValidation{
			Available: true,
			IsSpam:    isSpam,
			Score:     score,
			Action:    s.Action,
		}
	case StatusSkipped, StatusError:
		return SpamValidation{
			Available: false,
			Reason:    s.Info,
		}
	default:
		return SpamValidation{
			Available: false,
			Reason:    "unknown status",
		}
	}
}

// CategorizeSymbols groups symbols by their effect on the spam score.
// Returns spam indicators (positive score), ham indicators (negative
// score), and informational symbols (zero score).
func CategorizeSymbols(symbols []SpamSymbol) (positive, negative, neutral []SpamSymbol) {
	for _, s := range symbols {
		switch {
		case s.Score > 0:
			positive = append(positive, s)
		case s.Score < 0:
			negative = append(negative, s)
		default:
			neutral = append(neutral, s)
		}
	}
	return
}
