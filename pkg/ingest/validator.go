package ingest

import (
	"fmt"
	"strings"

	"github.com/groundline/groundline/pkg/config"
)

// ParseFailure records a file that could not be parsed.
type ParseFailure struct {
	Filename string
	Reason   string
}

// SufficiencyReport is the verdict on whether an upload set carries
// enough knowledge to compile a useful agent. Insufficiency warns but
// never blocks compilation.
type SufficiencyReport struct {
	Sufficient   bool           `json:"sufficient"`
	TotalEntries int            `json:"total_entries"`
	TotalChars   int            `json:"total_chars"`
	Issues       []string       `json:"issues,omitempty"`
	Failures     []ParseFailure `json:"failures,omitempty"`
}

// CheckSufficiency evaluates parsed sources against the thresholds.
// The set passes when it reaches the entry count OR the character
// volume, with no parse failures and no empty sources.
func CheckSufficiency(sources []*ParsedSource, failures []ParseFailure, cfg config.SufficiencyConfig) SufficiencyReport {
	report := SufficiencyReport{Failures: failures}

	for _, src := range sources {
		report.TotalEntries += src.EntryCount
		report.TotalChars += src.CharCount
		if src.Empty() {
			report.Issues = append(report.Issues,
				fmt.Sprintf("%s parsed but contains no usable content", src.Filename))
		}
	}
	for _, f := range failures {
		report.Issues = append(report.Issues,
			fmt.Sprintf("%s could not be parsed: %s", f.Filename, f.Reason))
	}

	volumeOK := report.TotalEntries >= cfg.MinEntries || report.TotalChars >= cfg.MinChars
	if !volumeOK {
		report.Issues = append(report.Issues,
			fmt.Sprintf("knowledge volume is low: %d entries and %d characters (need %d entries or %d characters)",
				report.TotalEntries, report.TotalChars, cfg.MinEntries, cfg.MinChars))
	}

	report.Sufficient = volumeOK && len(failures) == 0 && !anyEmpty(sources)
	return report
}

func anyEmpty(sources []*ParsedSource) bool {
	for _, src := range sources {
		if src.Empty() {
			return true
		}
	}
	return false
}

// Feedback renders the report as a short human-readable summary for
// job logs and the compilation warning field.
func (r SufficiencyReport) Feedback() string {
	if r.Sufficient {
		return fmt.Sprintf("knowledge base looks sufficient (%d entries, %d characters)",
			r.TotalEntries, r.TotalChars)
	}
	var sb strings.Builder
	sb.WriteString("knowledge base may be too thin to answer reliably")
	for _, issue := range r.Issues {
		sb.WriteString("; ")
		sb.WriteString(issue)
	}
	return sb.String()
}
