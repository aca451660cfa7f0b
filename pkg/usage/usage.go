// Package usage keeps a local ledger of per-call token usage and estimated
// cost.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cmsg_cli/pkg/llm"
)

// Record is one generation call.
type Record struct {
	Timestamp        time.Time `json:"timestamp"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
}

// Totals aggregates the ledger.
type Totals struct {
	Calls            int
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// modelPrice is USD per million tokens. Matched by model-name prefix, first
// match wins; unknown models cost zero.
type modelPrice struct {
	prefix     string
	inputCost  float64
	outputCost float64
}

var priceTable = []modelPrice{
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4o", 2.50, 10.00},
	{"gpt-4.1-mini", 0.40, 1.60},
	{"gpt-4.1", 2.00, 8.00},
	{"o4-mini", 1.10, 4.40},
	{"o3", 2.00, 8.00},
	{"gpt-3.5", 0.50, 1.50},
	{"claude-3-5-haiku", 0.80, 4.00},
	{"claude-sonnet", 3.00, 15.00},
	{"claude-opus", 15.00, 75.00},
}

// EstimateCost returns the estimated USD cost for a call.
func EstimateCost(model string, usage llm.Usage) float64 {
	for _, p := range priceTable {
		if strings.HasPrefix(model, p.prefix) {
			in := float64(usage.PromptTokens) / 1_000_000 * p.inputCost
			out := float64(usage.CompletionTokens) / 1_000_000 * p.outputCost
			return in + out
		}
	}
	return 0
}

// FormatCost renders a cost for display.
func FormatCost(cost float64) string {
	if cost == 0 {
		return "$0.00"
	}
	if cost < 0.01 {
		return fmt.Sprintf("$%.4f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}

// Tracker appends records to a JSON file.
type Tracker struct {
	path string
}

// NewTracker creates a tracker writing to the given file path.
func NewTracker(path string) *Tracker {
	return &Tracker{path: path}
}

// DefaultPath returns the usage ledger location.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cmsg_cli", "usage.json")
	}
	return filepath.Join(homeDir, ".cmsg_cli", "usage.json")
}

// Add records one call. A zero Usage (endpoint reported nothing) records
// zero tokens; that is data, not an error.
func (t *Tracker) Add(model string, usage llm.Usage) error {
	records, err := t.load()
	if err != nil {
		return err
	}
	records = append(records, Record{
		Timestamp:        time.Now().UTC(),
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CostUSD:          EstimateCost(model, usage),
	})
	return t.save(records)
}

// Records returns all recorded calls, oldest first.
func (t *Tracker) Records() ([]Record, error) {
	return t.load()
}

// Totals sums the ledger.
func (t *Tracker) Totals() (Totals, error) {
	records, err := t.load()
	if err != nil {
		return Totals{}, err
	}
	var totals Totals
	for _, r := range records {
		totals.Calls++
		totals.PromptTokens += r.PromptTokens
		totals.CompletionTokens += r.CompletionTokens
		totals.CostUSD += r.CostUSD
	}
	return totals, nil
}

func (t *Tracker) load() ([]Record, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read usage ledger: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse usage ledger: %w", err)
	}
	return records, nil
}

func (t *Tracker) save(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0700); err != nil {
		return fmt.Errorf("failed to create usage directory: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage ledger: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write usage ledger: %w", err)
	}
	return nil
}
