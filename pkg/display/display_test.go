package display

import (
	"bytes"
	"strings"
	"testing"

	"cmsg_cli/pkg/gitdiff"
	"cmsg_cli/pkg/usage"
)

func TestMessagePlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriter(&buf, false)
	r.Message("feat: add thing\n\nBody line.\n")

	got := buf.String()
	if got != "feat: add thing\n\nBody line.\n" {
		t.Errorf("Message() output = %q", got)
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("plain output contains ANSI escapes")
	}
}

func TestChangeSummaryPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriter(&buf, false)
	r.ChangeSummary(gitdiff.Changes{Files: []gitdiff.FileChange{
		{Path: "a.go", Status: "modified", Insertions: 3, Deletions: 1},
		{Path: "logo.png", Status: "added", Binary: true},
	}})

	got := buf.String()
	if !strings.Contains(got, "2 file(s) staged, +3 -1") {
		t.Errorf("missing header:\n%s", got)
	}
	if !strings.Contains(got, "modified a.go +3 -1") {
		t.Errorf("missing file line:\n%s", got)
	}
	if !strings.Contains(got, "logo.png (binary)") {
		t.Errorf("missing binary marker:\n%s", got)
	}
}

func TestChangeSummaryTruncatesLongPaths(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriter(&buf, false)
	longPath := strings.Repeat("deeply/nested/", 20) + "file.go"
	r.ChangeSummary(gitdiff.Changes{Files: []gitdiff.FileChange{
		{Path: longPath, Status: "added", Insertions: 1},
	}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	fileLine := lines[len(lines)-1]
	if !strings.HasSuffix(fileLine, "…") {
		t.Errorf("long line not truncated: %q", fileLine)
	}
}

func TestChangeSummaryTruncatedWarning(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriter(&buf, false)
	r.ChangeSummary(gitdiff.Changes{
		Files:     []gitdiff.FileChange{{Path: "a.go", Status: "modified"}},
		Truncated: true,
	})
	if !strings.Contains(buf.String(), "diff truncated") {
		t.Errorf("missing truncation warning:\n%s", buf.String())
	}
}

func TestUsageTotals(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriter(&buf, false)
	r.UsageTotals(usage.Totals{Calls: 3, PromptTokens: 4200, CompletionTokens: 310, CostUSD: 0.0021})

	got := buf.String()
	for _, want := range []string{"calls:             3", "prompt tokens:     4200", "completion tokens: 310", "$0.0021"} {
		if !strings.Contains(got, want) {
			t.Errorf("UsageTotals() missing %q:\n%s", want, got)
		}
	}
}

func TestStyledOutputDiffersFromPlain(t *testing.T) {
	var plain, styled bytes.Buffer
	NewWriter(&plain, false).Success("done")
	NewWriter(&styled, true).Success("done")
	if plain.String() == styled.String() {
		t.Skip("styles disabled in this environment")
	}
	if !strings.Contains(styled.String(), "done") {
		t.Errorf("styled output lost the text: %q", styled.String())
	}
}
