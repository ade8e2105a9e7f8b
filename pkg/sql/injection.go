package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// ParameterFinding is a bound parameter value that libinjection flagged.
type ParameterFinding struct {
	Name        string
	Fingerprint string // libinjection token fingerprint, e.g. "s&1c"
	Value       string
}

// ScanParameter checks one bound value for SQL injection fingerprints.
// Values are bound, never interpolated, so a finding is a signal about the
// upstream translator or the question text, not an exploitable hole.
//
// Only strings are checked; other types return nil.
func ScanParameter(name string, value any) *ParameterFinding {
	s, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(s)
	if !isSQLi {
		return nil
	}
	return &ParameterFinding{Name: name, Fingerprint: string(fingerprint), Value: s}
}

// ScanParameters checks every bound value and returns the findings sorted by
// parameter name. Empty when all values are clean.
//
// Example:
//
//	findings := ScanParameters(map[string]any{
//	    "panel_name": "front bumper",
//	    "card_id":    "' OR '1'='1",
//	    "min_cost":   500,
//	})
//	// len(findings) == 1, findings[0].Name == "card_id"
func ScanParameters(params map[string]any) []ParameterFinding {
	var findings []ParameterFinding
	for name, value := range params {
		if f := ScanParameter(name, value); f != nil {
			findings = append(findings, *f)
		}
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].Name < findings[j].Name })
	return findings
}
