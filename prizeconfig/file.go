package prizeconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// The YAML layout of a prize table file:
//
//	currency: GBP
//	periods:
//	  - effective_from: 2025-01-01
//	    payout_percent: 50
//	    entry_fee_fallback: "5.00"
//	    charity: {kind: per_entrant, amount: "0.50"}
//	    splits:
//	      default: {name: Standard, residual_to_last: true, splits: [0.5, 0.3, 0.2]}
//	      texas scramble: {name: Team, residual_to_last: true, splits: [0.6, 0.4]}
type fileTable struct {
	Currency string       `yaml:"currency"`
	Periods  []filePeriod `yaml:"periods"`
}

type filePeriod struct {
	EffectiveFrom    string                  `yaml:"effective_from"`
	Currency         string                  `yaml:"currency"`
	PayoutPercent    decimal.Decimal         `yaml:"payout_percent"`
	EntryFeeFallback decimal.Decimal         `yaml:"entry_fee_fallback"`
	Charity          fileCharity             `yaml:"charity"`
	Splits           map[string]fileStrategy `yaml:"splits"`
}

type fileCharity struct {
	Kind    string          `yaml:"kind"`
	Amount  decimal.Decimal `yaml:"amount"`
	Percent decimal.Decimal `yaml:"percent"`
}

type fileStrategy struct {
	Name           string    `yaml:"name"`
	ResidualToLast bool      `yaml:"residual_to_last"`
	Splits         []float64 `yaml:"splits"`
}

// LoadFile reads a prize table from a YAML file.
func LoadFile(path string) (*Table, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prize table: %w", err)
	}
	return Parse(bytes)
}

// NewFileResolver loads path and serves it.  The file is read once; restart
// to pick up edits.
func NewFileResolver(path string) (*StaticResolver, error) {
	table, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewStaticResolver(table), nil
}

// Parse decodes a prize table from YAML.
func Parse(data []byte) (*Table, error) {
	ft := fileTable{}
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("decoding prize table: %w", err)
	}

	periods := make([]*Effective, 0, len(ft.Periods))
	for i, fp := range ft.Periods {
		from, err := time.Parse(time.DateOnly, fp.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("period %d: bad effective_from %q: %w", i, fp.EffectiveFrom, err)
		}
		kind, err := parseCharityKind(fp.Charity.Kind)
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", i, err)
		}
		if len(fp.Splits) == 0 {
			return nil, fmt.Errorf("period %d: no split strategies", i)
		}
		strategies := make(map[string]SplitStrategy, len(fp.Splits))
		for format, fs := range fp.Splits {
			name := fs.Name
			if name == "" {
				name = format
			}
			strategies[format] = SplitStrategy{Name: name, Splits: fs.Splits, ResidualToLast: fs.ResidualToLast}
		}
		currency := fp.Currency
		if currency == "" {
			currency = ft.Currency
		}
		periods = append(periods, NewEffective(from, fp.PayoutPercent, fp.EntryFeeFallback, currency,
			CharityFormula{Kind: kind, Amount: fp.Charity.Amount, Percent: fp.Charity.Percent},
			strategies))
	}

	return NewTable(periods...)
}
