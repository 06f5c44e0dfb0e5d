package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Placing is one paid place as shown in a summary.
type Placing struct {
	Position       int             `json:"position"`
	CompetitorID   string          `json:"competitorId"`
	CompetitorName string          `json:"competitorName"`
	Amount         decimal.Decimal `json:"amount"`
}

// DivisionWinnings is the placings of one division.
type DivisionWinnings struct {
	Number   int             `json:"number"`
	Name     string          `json:"name"`
	Placings []Placing       `json:"placings"`
	Total    decimal.Decimal `json:"total"`
}

// EarnerSummary is one competitor's aggregate winnings.
type EarnerSummary struct {
	CompetitorID   string          `json:"competitorId"`
	CompetitorName string          `json:"competitorName"`
	Total          decimal.Decimal `json:"total"`
	Wins           int             `json:"wins"`
	Placings       int             `json:"placings"`
}

// CompetitionWinningsSummary is a competition's payout rebuilt from the store.
type CompetitionWinningsSummary struct {
	PayoutHeader
	Divisions []DivisionWinnings `json:"divisions"`
	TopEarner *EarnerSummary     `json:"topEarner,omitempty"`
	TotalPaid decimal.Decimal    `json:"totalPaid"`
}

// PaidPlacings returns every placing with money attached, flattened across
// divisions, alongside the division it came from.
func (s *CompetitionWinningsSummary) PaidPlacings() []DivisionPlacing {
	var out []DivisionPlacing
	for _, d := range s.Divisions {
		for _, p := range d.Placings {
			if p.Amount.IsPositive() {
				out = append(out, DivisionPlacing{DivisionNumber: d.Number, DivisionName: d.Name, Placing: p})
			}
		}
	}
	return out
}

// DivisionPlacing is a placing tagged with its division.
type DivisionPlacing struct {
	DivisionNumber int
	DivisionName   string
	Placing
}

// YearlyWinningsSummary rolls up every competition paid out in a year.
type YearlyWinningsSummary struct {
	Year         int                           `json:"year"`
	Competitions []*CompetitionWinningsSummary `json:"competitions"`
	TopEarners   []EarnerSummary               `json:"topEarners"`
	TotalPaid    decimal.Decimal               `json:"totalPaid"`
	GeneratedAt  time.Time                     `json:"generatedAt"`
}
