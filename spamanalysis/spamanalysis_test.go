package spamanalysis

import (
	"testing"
)

func analyzed(score float64, isSpam bool) *SpamAnalysis {
	required := 15.0
	return &SpamAnalysis{
		Status:        StatusAnalyzed,
		Score:         &score,
		RequiredScore: &required,
		Action:        ActionNoAction,
		IsSpam:        &isSpam,
	}
}

func TestAccessorsOnAnalyzedResult(t *testing.T) {
	s := analyzed(3.2, false)
	if !s.WasAnalyzed() || s.WasSkipped() || s.HasError() {
		t.Errorf("status predicates wrong for analyzed result")
	}
	if got := s.GetScore(); got == nil || *got != 3.2 {
		t.Errorf("GetScore = %v", got)
	}
	if got := s.GetIsSpam(); got == nil || *got {
		t.Errorf("GetIsSpam = %v", got)
	}
}

func TestAccessorsOnNil(t *testing.T) {
	var s *SpamAnalysis
	if s.WasAnalyzed() || s.WasSkipped() || s.HasError() {
		t.Error("nil analysis reported a status")
	}
	if s.GetScore() != nil || s.GetIsSpam() != nil {
		t.Error("nil analysis returned values")
	}
}

func TestAccessorsOnSkipped(t *testing.T) {
	s := &SpamAnalysis{Status: StatusSkipped, Info: "disabled for inbox"}
	if !s.WasSkipped() {
		t.Error("WasSkipped = false")
	}
	if s.GetScore() != nil {
		t.Error("skipped analysis returned a score")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		analysis  *SpamAnalysis
		available bool
		isSpam    bool
		reason    string
	}{
		{"nil", nil, false, false, "no spam analysis results available"},
		{"analyzed ham", analyzed(1.5, false), true, false, ""},
		{"analyzed spam", analyzed(22.0, true), true, true, ""},
		{"skipped", &SpamAnalysis{Status: StatusSkipped, Info: "disabled"}, false, false, "disabled"},
		{"error", &SpamAnalysis{Status: StatusError, Info: "rspamd timeout"}, false, false, "rspamd timeout"},
		{"unknown status", &SpamAnalysis{Status: "bogus"}, false, false, "unknown status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.analysis.Validate()
			if v.Available != tt.available {
				t.Errorf("Available = %v, want %v", v.Available, tt.available)
			}
			if v.IsSpam != tt.isSpam {
				t.Errorf("IsSpam = %v, want %v", v.IsSpam, tt.isSpam)
			}
			if v.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", v.Reason, tt.reason)
			}
		})
	}
}

func TestValidateAnalyzedWithoutScore(t *testing.T) {
	s := &SpamAnalysis{Status: StatusAnalyzed}
	v := s.Validate()
	if !v.Available {
		t.Error("Available = false")
	}
	if v.Score != 0 || v.IsSpam {
		t.Errorf("missing fields not zeroed: %+v", v)
	}
}

func TestCategorizeSymbols(t *testing.T) {
	symbols := []SpamSymbol{
		{Name: "FORGED_SENDER", Score: 3.5},
		{Name: "DKIM_VALID", Score: -0.2},
		{Name: "MIME_TRACE", Score: 0},
		{Name: "URL_PHISHING", Score: 7.0},
	}

	positive, negative, neutral := CategorizeSymbols(symbols)
	if len(positive) != 2 || positive[0].Name != "FORGED_SENDER" {
		t.Errorf("positive = %v", positive)
	}
	if len(negative) != 1 || negative[0].Name != "DKIM_VALID" {
		t.Errorf("negative = %v", negative)
	}
	if len(neutral) != 1 || neutral[0].Name != "MIME_TRACE" {
		t.Errorf("neutral = %v", neutral)
	}

	p, n, z := CategorizeSymbols(nil)
	if p != nil || n != nil || z != nil {
		t.Error("nil input produced symbols")
	}
}
