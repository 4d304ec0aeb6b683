package authresults

import (
	"strings"
	"testing"
)

func passingResults() *AuthResults {
	return &AuthResults{
		SPF:        &SPFResult{Result: "pass", Domain: "example.com"},
		DKIM:       []DKIMResult{{Result: "pass", Domain: "example.com", Selector: "s1"}},
		DMARC:      &DMARCResult{Result: "pass", Policy: "none", Aligned: true},
		ReverseDNS: &ReverseDNSResult{Result: "pass", Hostname: "mail.example.com"},
	}
}

func TestValidateAllPassing(t *testing.T) {
	v := passingResults().Validate()
	if !v.Passed {
		t.Errorf("Passed = false, failures: %v", v.Failures)
	}
	if !v.SPFPassed || !v.DKIMPassed || !v.DMARCPassed || !v.ReverseDNSPassed {
		t.Errorf("per-check verdicts: %+v", v)
	}
	if len(v.Failures) != 0 {
		t.Errorf("Failures = %v", v.Failures)
	}
}

func TestValidateNilResults(t *testing.T) {
	var a *AuthResults
	v := a.Validate()
	if v.Passed {
		t.Error("nil results reported as passing")
	}
	if len(v.Failures) == 0 {
		t.Error("nil results produced no failure message")
	}
}

func TestValidateSPFFailure(t *testing.T) {
	a := passingResults()
	a.SPF = &SPFResult{Result: "fail", Domain: "spoofed.example.com"}

	v := a.Validate()
	if v.Passed || v.SPFPassed {
		t.Errorf("SPF failure not detected: %+v", v)
	}
	if len(v.Failures) != 1 || !strings.Contains(v.Failures[0], "spoofed.example.com") {
		t.Errorf("Failures = %v", v.Failures)
	}
}

func TestValidateSkippedCountsAsPassed(t *testing.T) {
	a := &AuthResults{
		SPF:   &SPFResult{Result: "skipped"},
		DKIM:  []DKIMResult{{Result: "skipped"}},
		DMARC: &DMARCResult{Result: "skipped"},
	}
	v := a.Validate()
	if !v.Passed {
		t.Errorf("skipped checks treated as failures: %v", v.Failures)
	}
}

func TestValidateDKIMMultipleSignatures(t *testing.T) {
	tests := []struct {
		name   string
		dkim   []DKIMResult
		passed bool
	}{
		{"one of two passes", []DKIMResult{{Result: "fail", Domain: "a.com"}, {Result: "pass", Domain: "b.com"}}, true},
		{"all fail", []DKIMResult{{Result: "fail", Domain: "a.com"}, {Result: "fail", Domain: "b.com"}}, false},
		{"all skipped", []DKIMResult{{Result: "skipped"}, {Result: "skipped"}}, true},
		{"none present", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := passingResults()
			a.DKIM = tt.dkim
			if got := a.Validate().DKIMPassed; got != tt.passed {
				t.Errorf("DKIMPassed = %v, want %v", got, tt.passed)
			}
		})
	}
}

func TestValidateDKIMFailureNamesDomains(t *testing.T) {
	a := passingResults()
	a.DKIM = []DKIMResult{
		{Result: "fail", Domain: "first.com"},
		{Result: "fail", Domain: "second.com"},
	}
	v := a.Validate()
	if len(v.Failures) != 1 {
		t.Fatalf("Failures = %v", v.Failures)
	}
	if !strings.Contains(v.Failures[0], "first.com") || !strings.Contains(v.Failures[0], "second.com") {
		t.Errorf("failure message %q misses a domain", v.Failures[0])
	}
}

func TestValidateReverseDNSExcludedFromPassed(t *testing.T) {
	a := passingResults()
	a.ReverseDNS = &ReverseDNSResult{Result: "fail", Hostname: "unknown.host"}

	v := a.Validate()
	if !v.Passed {
		t.Error("reverse DNS failure must not fail the primary verdict")
	}
	if v.ReverseDNSPassed {
		t.Error("ReverseDNSPassed = true for a failed check")
	}
	if len(v.Failures) != 1 {
		t.Errorf("Failures = %v", v.Failures)
	}
}

func TestIsPassing(t *testing.T) {
	if !passingResults().IsPassing() {
		t.Error("IsPassing = false for passing results")
	}
	a := passingResults()
	a.DMARC.Result = "fail"
	if a.IsPassing() {
		t.Error("IsPassing = true with failed DMARC")
	}
}
