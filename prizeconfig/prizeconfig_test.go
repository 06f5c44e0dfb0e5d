package prizeconfig

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const sampleTable = `
currency: GBP
periods:
  - effective_from: 2024-01-01
    payout_percent: 50
    entry_fee_fallback: "5.00"
    charity: {kind: per_entrant, amount: "0.50"}
    splits:
      default: {name: Standard, residual_to_last: true, splits: [0.5, 0.3, 0.2]}
  - effective_from: 2025-04-01
    payout_percent: 0.6
    entry_fee_fallback: "6"
    charity: {kind: percent_of_revenue, percent: 10}
    splits:
      default: {name: Standard 2025, residual_to_last: true, splits: [0.5, 0.3, 0.2]}
      Texas Scramble: {residual_to_last: false, splits: [0.6, 0.4]}
`

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseAndResolve(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := NewStaticResolver(table)
	ctx := context.Background()

	tests := []struct {
		name        string
		date        time.Time
		wantPercent string
		wantFee     string
	}{
		{"before every period uses the earliest", date(2023, 5, 1), "50", "5"},
		{"first period", date(2024, 7, 1), "50", "5"},
		{"boundary day belongs to the new period", date(2025, 4, 1), "0.6", "6"},
		{"later", date(2026, 1, 1), "0.6", "6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := r.GetEffective(ctx, tt.date)
			if err != nil {
				t.Fatalf("GetEffective: %v", err)
			}
			if !e.PayoutPercent.Equal(decimal.RequireFromString(tt.wantPercent)) {
				t.Errorf("payout percent = %s, want %s", e.PayoutPercent, tt.wantPercent)
			}
			if !e.EntryFeeFallback.Equal(decimal.RequireFromString(tt.wantFee)) {
				t.Errorf("entry fee fallback = %s, want %s", e.EntryFeeFallback, tt.wantFee)
			}
			if e.Currency != "GBP" {
				t.Errorf("currency = %q, want GBP", e.Currency)
			}
		})
	}
}

func TestGetSplitForFormat(t *testing.T) {
	table, err := Parse([]byte(sampleTable))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := NewStaticResolver(table)
	e, _ := r.GetEffective(context.Background(), date(2025, 8, 1))

	name, splits, residual := r.GetSplitForFormat(e, "texas scramble")
	if name != "Texas Scramble" || len(splits) != 2 || residual {
		t.Errorf("texas scramble = (%q, %v, %v), want (Texas Scramble, [0.6 0.4], false)", name, splits, residual)
	}

	name, splits, residual = r.GetSplitForFormat(e, "Stableford")
	if name != "Standard 2025" || len(splits) != 3 || !residual {
		t.Errorf("stableford = (%q, %v, %v), want the default strategy", name, splits, residual)
	}

	// callers get their own copy
	splits[0] = 99
	if _, again, _ := r.GetSplitForFormat(e, "Stableford"); again[0] != 0.5 {
		t.Errorf("strategy was mutated through a returned slice")
	}
}

func TestStrategyWithoutDefault(t *testing.T) {
	e := NewEffective(date(2024, 1, 1), decimal.NewFromInt(50), decimal.Zero, "gbp", CharityFormula{}, nil)
	s := e.Strategy("anything")
	if len(s.Splits) != 1 || s.Splits[0] != 1 {
		t.Errorf("Strategy with no table = %+v, want winner takes all", s)
	}
	if e.Currency != "GBP" {
		t.Errorf("currency = %q, want GBP", e.Currency)
	}
}

func TestCharityFormula(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name      string
		formula   CharityFormula
		divisions int
		entrants  int
		revenue   string
		want      string
	}{
		{"none", CharityFormula{Kind: CharityNone, Amount: d("5")}, 1, 40, "400", "0"},
		{"fixed", CharityFormula{Kind: CharityFixed, Amount: d("25")}, 1, 40, "400", "25"},
		{"per entrant", CharityFormula{Kind: CharityPerEntrant, Amount: d("0.5")}, 2, 40, "400", "20"},
		{"per division", CharityFormula{Kind: CharityPerDivision, Amount: d("10")}, 3, 40, "400", "30"},
		{"per division floors divisions at one", CharityFormula{Kind: CharityPerDivision, Amount: d("10")}, 0, 40, "400", "10"},
		{"percent of revenue whole number", CharityFormula{Kind: CharityPercentOfRevenue, Percent: d("10")}, 1, 33, "330", "33"},
		{"percent of revenue fraction rounds", CharityFormula{Kind: CharityPercentOfRevenue, Percent: d("0.125")}, 1, 3, "30.10", "3.76"},
		{"capped at revenue", CharityFormula{Kind: CharityFixed, Amount: d("500")}, 1, 10, "100", "100"},
		{"never negative", CharityFormula{Kind: CharityFixed, Amount: d("-5")}, 1, 10, "100", "0"},
		{"unknown kind", CharityFormula{Kind: "bogus", Amount: d("5")}, 1, 10, "100", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.formula.Compute(tt.divisions, tt.entrants, d("10"), d(tt.revenue))
			if !got.Equal(d(tt.want)) {
				t.Errorf("Compute = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"no periods":   "currency: GBP\n",
		"bad date":     "periods:\n  - effective_from: someday\n    splits: {default: {splits: [1]}}\n",
		"bad charity":  "periods:\n  - effective_from: 2024-01-01\n    charity: {kind: raffle}\n    splits: {default: {splits: [1]}}\n",
		"no splits":    "periods:\n  - effective_from: 2024-01-01\n",
		"not yaml map": "- just\n- a list\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(input)); err == nil {
				t.Errorf("Parse succeeded, want error")
			}
		})
	}
}
