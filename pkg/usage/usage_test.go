package usage

import (
	"math"
	"path/filepath"
	"testing"

	"cmsg_cli/pkg/llm"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name  string
		model string
		usage llm.Usage
		want  float64
	}{
		{
			name:  "gpt-4o-mini",
			model: "gpt-4o-mini",
			usage: llm.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000},
			want:  0.75,
		},
		{
			name:  "prefix match includes dated snapshots",
			model: "gpt-4o-mini-2024-07-18",
			usage: llm.Usage{PromptTokens: 1_000_000},
			want:  0.15,
		},
		{
			name:  "longer prefix wins over gpt-4o",
			model: "gpt-4o-mini",
			usage: llm.Usage{PromptTokens: 1_000_000},
			want:  0.15,
		},
		{
			name:  "unknown model costs zero",
			model: "qwen2.5-coder",
			usage: llm.Usage{PromptTokens: 500, CompletionTokens: 500},
			want:  0,
		},
		{
			name:  "zero usage costs zero",
			model: "gpt-4o",
			usage: llm.Usage{},
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateCost(tt.model, tt.usage)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EstimateCost(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestFormatCost(t *testing.T) {
	tests := []struct {
		cost float64
		want string
	}{
		{0, "$0.00"},
		{0.0003, "$0.0003"},
		{0.009999, "$0.0100"},
		{0.05, "$0.05"},
		{1.5, "$1.50"},
	}
	for _, tt := range tests {
		if got := FormatCost(tt.cost); got != tt.want {
			t.Errorf("FormatCost(%v) = %q, want %q", tt.cost, got, tt.want)
		}
	}
}

func TestTrackerAddAndTotals(t *testing.T) {
	tracker := NewTracker(filepath.Join(t.TempDir(), "usage.json"))

	if err := tracker.Add("gpt-4o-mini", llm.Usage{PromptTokens: 1200, CompletionTokens: 80}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := tracker.Add("gpt-4o-mini", llm.Usage{PromptTokens: 900, CompletionTokens: 40}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	totals, err := tracker.Totals()
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	if totals.Calls != 2 {
		t.Errorf("Calls = %d, want 2", totals.Calls)
	}
	if totals.PromptTokens != 2100 || totals.CompletionTokens != 120 {
		t.Errorf("tokens = %d/%d, want 2100/120", totals.PromptTokens, totals.CompletionTokens)
	}
	if totals.CostUSD <= 0 {
		t.Errorf("CostUSD = %v, want positive", totals.CostUSD)
	}
}

func TestTrackerZeroUsageIsRecorded(t *testing.T) {
	tracker := NewTracker(filepath.Join(t.TempDir(), "usage.json"))
	if err := tracker.Add("local-model", llm.Usage{}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	records, err := tracker.Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.PromptTokens != 0 || r.CompletionTokens != 0 || r.CostUSD != 0 {
		t.Errorf("record = %+v, want zero tokens and cost", r)
	}
	if r.Model != "local-model" {
		t.Errorf("model = %q", r.Model)
	}
	if r.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestTrackerEmptyLedger(t *testing.T) {
	tracker := NewTracker(filepath.Join(t.TempDir(), "usage.json"))
	totals, err := tracker.Totals()
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	if totals.Calls != 0 {
		t.Errorf("Calls = %d, want 0 for missing file", totals.Calls)
	}
}

func TestTrackerPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	if err := NewTracker(path).Add("gpt-4o", llm.Usage{PromptTokens: 10, CompletionTokens: 5}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	records, err := NewTracker(path).Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after reopen, want 1", len(records))
	}
}
