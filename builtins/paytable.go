package builtins

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/clubhouse/prizepayout/prizeconfig"
)

// defaultStrategies is the club's long-standing sweep split: three places in
// stroke play, two in pairs and team formats.  Knockouts are winner takes all.
var defaultStrategies = map[string]prizeconfig.SplitStrategy{
	prizeconfig.DefaultFormat: {
		Name:           "Standard 3 place",
		Splits:         []float64{0.5, 0.3, 0.2},
		ResidualToLast: true,
	},
	"stableford": {
		Name:           "Stableford 3 place",
		Splits:         []float64{0.5, 0.3, 0.2},
		ResidualToLast: true,
	},
	"medal": {
		Name:           "Medal 3 place",
		Splits:         []float64{0.5, 0.3, 0.2},
		ResidualToLast: true,
	},
	"fourball better ball": {
		Name:           "Pairs 2 place",
		Splits:         []float64{0.6, 0.4},
		ResidualToLast: true,
	},
	"texas scramble": {
		Name:           "Team 2 place",
		Splits:         []float64{0.6, 0.4},
		ResidualToLast: true,
	},
	"matchplay": {
		Name:           "Winner takes all",
		Splits:         []float64{1},
		ResidualToLast: true,
	},
}

// DefaultPrizeTable is used when no prize table file is configured: half the
// entry money goes to prizes, 50p per entrant to the captain's charity.
func DefaultPrizeTable() *prizeconfig.Table {
	period := prizeconfig.NewEffective(
		time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		decimal.NewFromInt(50),
		decimal.NewFromInt(5),
		"GBP",
		prizeconfig.CharityFormula{
			Kind:   prizeconfig.CharityPerEntrant,
			Amount: decimal.RequireFromString("0.50"),
		},
		defaultStrategies,
	)
	table, err := prizeconfig.NewTable(period)
	if err != nil {
		panic(err) // can't happen: one period
	}
	return table
}
