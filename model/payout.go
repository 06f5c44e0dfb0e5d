package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Competition is a finalised competition as listed by the leaderboard source.
type Competition struct {
	ID     string
	Name   string
	Format string
	// Date is nil when the listing didn't carry one; the batch processor fills
	// it in from the competition settings.
	Date *time.Time
}

// SignupCharge is one of the charges a player pays when entering.
type SignupCharge struct {
	Description string
	Amount      decimal.Decimal
	Required    bool
}

// DivisionSetting names one division of a competition.
type DivisionSetting struct {
	Number int
	Name   string
}

// CompetitionSettings is the configuration page of a competition.
type CompetitionSettings struct {
	ID            string
	Name          string
	Date          time.Time
	Format        string
	Currency      string
	Divisions     []DivisionSetting
	SignupCharges []SignupCharge
}

// LeaderboardEntry is one line of a leaderboard.  PlayerID is empty when the
// portal didn't link the line to a member.
type LeaderboardEntry struct {
	Position   int
	PlayerID   string
	PlayerName string
}

// DivisionLeaderboard is the leaderboard for a single division.
type DivisionLeaderboard struct {
	Number  int
	Name    string
	Entries []LeaderboardEntry
}

// Leaderboard is the final result of a competition, ordered by finishing
// position with ties already broken upstream.
type Leaderboard struct {
	CompetitionID string
	Overall       []LeaderboardEntry
	Divisions     []DivisionLeaderboard
}

// PlaceholderID stands in for a competitor with no known identity, so they
// still occupy a slot without colliding with a real member id.
func PlaceholderID(position int) string {
	return fmt.Sprintf("N%d", position)
}

// IsPlaceholderID reports whether id was made by PlaceholderID.
func IsPlaceholderID(id string) bool {
	if len(id) < 2 || id[0] != 'N' {
		return false
	}
	_, err := strconv.Atoi(id[1:])
	return err == nil
}

// RankedCompetitor is a competitor in finishing order.
type RankedCompetitor struct {
	ID   string
	Name string
}

// DivisionInput is the ranked field of one division.
type DivisionInput struct {
	Number int
	Name   string
	Ranked []RankedCompetitor
}

// CompetitionPayoutInput is everything the calculator needs.
type CompetitionPayoutInput struct {
	CompetitionID   string
	CompetitionName string
	CompetitionDate time.Time
	Entrants        int
	EntryFee        decimal.Decimal
	DivisionCount   int
	// PayoutPercent is either a fraction (0.5) or a whole percentage (50).
	PayoutPercent decimal.Decimal
	CharityAmount decimal.Decimal
	Currency      string
	RuleSetName   string
	Divisions     []DivisionInput
}

// WinnerPayout is one paid place.
type WinnerPayout struct {
	CompetitionID  string          `json:"competitionId"`
	DivisionNumber int             `json:"divisionNumber"`
	DivisionName   string          `json:"divisionName"`
	Position       int             `json:"position"`
	CompetitorID   string          `json:"competitorId"`
	CompetitorName string          `json:"competitorName"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// PayoutHeader is the persisted aggregate of a competition's payout.
type PayoutHeader struct {
	CompetitionID   string          `json:"competitionId"`
	CompetitionName string          `json:"competitionName"`
	CompetitionDate time.Time       `json:"competitionDate"`
	Entrants        int             `json:"entrants"`
	EntryFee        decimal.Decimal `json:"entryFee"`
	DivisionCount   int             `json:"divisionCount"`
	PayoutPercent   decimal.Decimal `json:"payoutPercent"`
	Revenue         decimal.Decimal `json:"revenue"`
	PrizePot        decimal.Decimal `json:"prizePot"`
	CharityAmount   decimal.Decimal `json:"charityAmount"`
	ClubIncome      decimal.Decimal `json:"clubIncome"`
	Currency        string          `json:"currency"`
	RuleSetName     string          `json:"ruleSetName"`
	CalculatedAt    time.Time       `json:"calculatedAt"`
}

// Year is the partition a header is stored under.
func (h *PayoutHeader) Year() int {
	return h.CompetitionDate.Year()
}

// CompetitionPayoutResult is a header plus its winners.
type CompetitionPayoutResult struct {
	PayoutHeader
	Winners []WinnerPayout `json:"winners"`
}

// Header returns a copy of the aggregate part of the result.
func (r *CompetitionPayoutResult) Header() *PayoutHeader {
	h := r.PayoutHeader
	return &h
}

// DateOnly drops the time of day, keeping the calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultDivisionName is used for divisions the portal didn't name.
func DefaultDivisionName(number int) string {
	return fmt.Sprintf("Division %d", number)
}

// DivisionNameOr returns name, or the default name when it's blank.
func DivisionNameOr(name string, number int) string {
	if strings.TrimSpace(name) == "" {
		return DefaultDivisionName(number)
	}
	return name
}
