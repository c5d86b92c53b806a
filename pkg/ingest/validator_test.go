package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/groundline/groundline/pkg/config"
)

var sufficiencyCfg = config.SufficiencyConfig{MinEntries: 20, MinChars: 2000}

func structuredSource(name string, entries, chars int) *ParsedSource {
	recs := make([]Record, entries)
	for i := range recs {
		recs[i] = Record{Fields: []Field{{Key: "k", Value: "v"}}}
	}
	return &ParsedSource{Filename: name, Structured: true, Records: recs, EntryCount: entries, CharCount: chars}
}

func TestCheckSufficiency_PassesOnEntryCount(t *testing.T) {
	report := CheckSufficiency([]*ParsedSource{structuredSource("a.csv", 20, 100)}, nil, sufficiencyCfg)
	assert.True(t, report.Sufficient)
	assert.Equal(t, 20, report.TotalEntries)
	assert.Empty(t, report.Issues)
}

func TestCheckSufficiency_PassesOnCharVolume(t *testing.T) {
	src := &ParsedSource{Filename: "doc.txt", Text: "x", EntryCount: 3, CharCount: 2000}
	report := CheckSufficiency([]*ParsedSource{src}, nil, sufficiencyCfg)
	assert.True(t, report.Sufficient)
}

func TestCheckSufficiency_FailsBelowBothThresholds(t *testing.T) {
	report := CheckSufficiency([]*ParsedSource{structuredSource("a.csv", 19, 1999)}, nil, sufficiencyCfg)
	assert.False(t, report.Sufficient)
	assert.NotEmpty(t, report.Issues)
	assert.Contains(t, report.Feedback(), "too thin")
}

func TestCheckSufficiency_ParseFailureBlocksEvenWithVolume(t *testing.T) {
	failures := []ParseFailure{{Filename: "bad.pdf", Reason: "corrupt xref"}}
	report := CheckSufficiency([]*ParsedSource{structuredSource("a.csv", 50, 5000)}, failures, sufficiencyCfg)
	assert.False(t, report.Sufficient)
	assert.True(t, containsSubstring(report.Issues, "bad.pdf"))
}

func TestCheckSufficiency_EmptySourceBlocks(t *testing.T) {
	empty := &ParsedSource{Filename: "blank.txt", Text: ""}
	report := CheckSufficiency([]*ParsedSource{structuredSource("a.csv", 50, 5000), empty}, nil, sufficiencyCfg)
	assert.False(t, report.Sufficient)
	assert.True(t, containsSubstring(report.Issues, "blank.txt"))
}

func containsSubstring(items []string, sub string) bool {
	for _, s := range items {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
