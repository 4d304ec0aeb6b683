// Package authresults contains the SPF, DKIM, DMARC and reverse DNS
// verdicts the server computes for inboxes that have email
// authentication enabled.
package authresults

import "strings"

// AuthResults contains all email authentication check results.
type AuthResults struct {
	SPF        *SPFResult        `json:"spf,omitempty"`
	DKIM       []DKIMResult      `json:"dkim,omitempty"`
	DMARC      *DMARCResult      `json:"dmarc,omitempty"`
	ReverseDNS *ReverseDNSResult `json:"reverseDns,omitempty"`
}

// SPFResult represents an SPF check result.
type SPFResult struct {
	Result  string `json:"result"` // pass, fail, softfail, neutral, none, temperror, permerror, skipped
	Domain  string `json:"domain,omitempty"`
	IP      string `json:"ip,omitempty"`
	Details string `json:"details,omitempty"`
}

// DKIMResult represents one DKIM signature check result.
type DKIMResult struct {
	Result    string `json:"result"` // pass, fail, none, skipped
	Domain    string `json:"domain,omitempty"`
	Selector  string `json:"selector,omitempty"`
	Signature string `json:"signature,omitempty"`
	Info      string `json:"info,omitempty"`
}

// DMARCResult represents a DMARC check result.
type DMARCResult struct {
	Result  string `json:"result"`           // pass, fail, none, skipped
	Policy  string `json:"policy,omitempty"` // none, quarantine, reject
	Aligned bool   `json:"aligned,omitempty"`
	Domain  string `json:"domain,omitempty"`
	Info    string `json:"info,omitempty"`
}

// ReverseDNSResult represents a reverse DNS check result.
type ReverseDNSResult struct {
	Result   string `json:"result"` // pass, fail, none, skipped
	IP       string `json:"ip,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// AuthValidation provides a summary of email authentication validation.
type AuthValidation struct {
	// Passed indicates whether all primary checks (SPF, DKIM, DMARC) passed.
	Passed bool `json:"passed"`
	// SPFPassed indicates whether the SPF check passed.
	SPFPassed bool `json:"spfPassed"`
	// DKIMPassed indicates whether at least one DKIM signature passed.
	DKIMPassed bool `json:"dkimPassed"`
	// DMARCPassed indicates whether the DMARC check passed.
	DMARCPassed bool `json:"dmarcPassed"`
	// ReverseDNSPassed indicates whether the reverse DNS check passed.
	ReverseDNSPassed bool `json:"reverseDnsPassed"`
	// Failures contains descriptive messages for any failed checks.
	Failures []string `json:"failures"`
}

// passedOrSkipped treats a skipped check as passed. A check the server
// never ran is not evidence of forgery.
func passedOrSkipped(result string) bool {
	return result == "pass" || result == "skipped"
}

// Validate evaluates the authentication results and returns a summary
// with per-check verdicts and failure messages.
func (a *AuthResults) Validate() AuthValidation {
	if a == nil {
		return AuthValidation{
			Passed:   false,
			Failures: []string{"no authentication results available"},
		}
	}

	failures := []string{}

	spfPassed := a.SPF != nil && passedOrSkipped(a.SPF.Result)
	if a.SPF != nil && !spfPassed {
		msg := "SPF check failed: " + a.SPF.Result
		if a.SPF.Domain != "" {
			msg += " (domain: " + a.SPF.Domain + ")"
		}
		failures = append(failures, msg)
	}

	dkimPassed := a.dkimPassed()
	if len(a.DKIM) > 0 && !dkimPassed {
		msg := "DKIM signature failed"
		if domains := a.failedDKIMDomains(); len(domains) > 0 {
			msg += ": " + strings.Join(domains, ", ")
		}
		failures = append(failures, msg)
	}

	dmarcPassed := a.DMARC != nil && passedOrSkipped(a.DMARC.Result)
	if a.DMARC != nil && !dmarcPassed {
		msg := "DMARC policy: " + a.DMARC.Result
		if a.DMARC.Policy != "" {
			msg += " (policy: " + a.DMARC.Policy + ")"
		}
		failures = append(failures, msg)
	}

	reverseDNSPassed := a.ReverseDNS != nil && passedOrSkipped(a.ReverseDNS.Result)
	if a.ReverseDNS != nil && !reverseDNSPassed {
		msg := "Reverse DNS check failed"
		if a.ReverseDNS.Hostname != "" {
			msg += " (hostname: " + a.ReverseDNS.Hostname + ")"
		}
		failures = append(failures, msg)
	}

	return AuthValidation{
		Passed:           spfPassed && dkimPassed && dmarcPassed,
		SPFPassed:        spfPassed,
		DKIMPassed:       dkimPassed,
		DMARCPassed:      dmarcPassed,
		ReverseDNSPassed: reverseDNSPassed,
		Failures:         failures,
	}
}

// dkimPassed reports whether at least one signature passed, or every
// check was skipped.
func (a *AuthResults) dkimPassed() bool {
	if len(a.DKIM) == 0 {
		return false
	}
	allSkipped := true
	for _, dkim := range a.DKIM {
		if dkim.Result == "pass" {
			return true
		}
		if dkim.Result != "skipped" {
			allSkipped = false
		}
	}
	return allSkipped
}

func (a *AuthResults) failedDKIMDomains() []string {
	var domains []string
	for _, dkim := range a.DKIM {
		if dkim.Result != "pass" && dkim.Result != "skipped" && dkim.Domain != "" {
			domains = append(domains, dkim.Domain)
		}
	}
	return domains
}

// IsPassing returns true if all primary authentication checks (SPF, DKIM,
// DMARC) passed. Equivalent to Validate().Passed. Reverse DNS is not
// included in this check.
func (a *AuthResults) IsPassing() bool {
	return a.Validate().Passed
}
