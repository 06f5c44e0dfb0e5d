package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/dbutil"
	"github.com/clubhouse/prizepayout/logging"
	"github.com/clubhouse/prizepayout/model"
)

//go:embed schema.sql
var schema string

// DBStorage keeps payouts in Postgres.
type DBStorage struct {
	db  *sql.DB
	log *zap.Logger
}

var _ PayoutStorage = (*DBStorage)(nil)

func NewDBStorage(db *sql.DB, log *zap.Logger) *DBStorage {
	return &DBStorage{db: db, log: log}
}

func (s *DBStorage) Close() {
	s.db.Close()
}

// Migrate creates the payout tables if they're missing.
func (s *DBStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const existsQuery = `SELECT EXISTS (SELECT 1 FROM payout_headers WHERE competition_id = $1 AND competition_date = $2)`

func (s *DBStorage) Exists(ctx context.Context, competitionID string, date time.Time) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsQuery, competitionID, model.DateOnly(date)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check payout %s: %w", competitionID, err)
	}
	return exists, nil
}

const insertHeader = `INSERT INTO payout_headers (
	competition_id, competition_date, competition_year, competition_name,
	entrants, entry_fee, division_count, payout_percent,
	revenue, prize_pot, charity_amount, club_income,
	currency, rule_set_name, calculated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const insertWinner = `INSERT INTO payout_winners (
	competition_id, competition_date, division_number, division_name,
	position, competitor_id, competitor_name, amount, currency
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Persist writes the header and every winner in one transaction, then
// announces the header on ChangeChannel.  A second persist for the same
// competition and date fails on the primary key.
func (s *DBStorage) Persist(ctx context.Context, r *model.CompetitionPayoutResult) error {
	h := r.Header()
	date := model.DateOnly(h.CompetitionDate)

	tx, err := dbutil.NewTx(ctx, s.db, nil)
	if err != nil {
		return fmt.Errorf("persist %s: %w", h.CompetitionID, err)
	}
	defer tx.MaybeRollback()

	if err := tx.ExecAffecting(ctx, 1, insertHeader,
		h.CompetitionID, date, date.Year(), h.CompetitionName,
		h.Entrants, h.EntryFee, h.DivisionCount, h.PayoutPercent,
		h.Revenue, h.PrizePot, h.CharityAmount, h.ClubIncome,
		h.Currency, h.RuleSetName, h.CalculatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("persist %s header: %w", h.CompetitionID, err)
	}

	for _, w := range r.Winners {
		if err := tx.ExecAffecting(ctx, 1, insertWinner,
			h.CompetitionID, date, w.DivisionNumber, w.DivisionName,
			w.Position, w.CompetitorID, w.CompetitorName, w.Amount, w.Currency,
		); err != nil {
			return fmt.Errorf("persist %s winner %d/%d: %w", h.CompetitionID, w.DivisionNumber, w.Position, err)
		}
	}

	payload, err := json.Marshal(&Change{Table: "payout_headers", CompetitionID: h.CompetitionID, Year: date.Year()})
	if err != nil {
		return err
	}
	if err := tx.Notify(ctx, ChangeChannel, string(payload)); err != nil {
		return fmt.Errorf("persist %s notify: %w", h.CompetitionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist %s commit: %w", h.CompetitionID, err)
	}
	s.log.Debug("persisted payout", logging.Competition(h.CompetitionID), zap.Int("winners", len(r.Winners)))
	return nil
}

const headersForYearQuery = `SELECT
	competition_id, competition_name, competition_date, entrants, entry_fee,
	division_count, payout_percent, revenue, prize_pot, charity_amount,
	club_income, currency, rule_set_name, calculated_at
FROM payout_headers
WHERE competition_year = $1
ORDER BY competition_date, competition_id, calculated_at`

func (s *DBStorage) HeadersForYear(ctx context.Context, year int) ([]*model.PayoutHeader, error) {
	rows, err := s.db.QueryContext(ctx, headersForYearQuery, year)
	if err != nil {
		return nil, fmt.Errorf("headers for %d: %w", year, err)
	}
	defer rows.Close()

	var headers []*model.PayoutHeader
	for rows.Next() {
		h := &model.PayoutHeader{}
		if err := rows.Scan(
			&h.CompetitionID, &h.CompetitionName, &h.CompetitionDate, &h.Entrants, &h.EntryFee,
			&h.DivisionCount, &h.PayoutPercent, &h.Revenue, &h.PrizePot, &h.CharityAmount,
			&h.ClubIncome, &h.Currency, &h.RuleSetName, &h.CalculatedAt,
		); err != nil {
			return nil, fmt.Errorf("headers for %d: %w", year, err)
		}
		h.CompetitionDate = model.DateOnly(h.CompetitionDate)
		h.CalculatedAt = h.CalculatedAt.UTC()
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("headers for %d: %w", year, err)
	}
	return headers, nil
}

const winnersQuery = `SELECT
	competition_id, division_number, division_name, position,
	competitor_id, competitor_name, amount, currency
FROM payout_winners
WHERE competition_id = $1
ORDER BY division_number, position`

func (s *DBStorage) WinnersByCompetition(ctx context.Context, competitionID string) iter.Seq2[*model.WinnerPayout, error] {
	return func(yield func(*model.WinnerPayout, error) bool) {
		rows, err := s.db.QueryContext(ctx, winnersQuery, competitionID)
		if err != nil {
			yield(nil, fmt.Errorf("winners of %s: %w", competitionID, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			w := &model.WinnerPayout{}
			if err := rows.Scan(
				&w.CompetitionID, &w.DivisionNumber, &w.DivisionName, &w.Position,
				&w.CompetitorID, &w.CompetitorName, &w.Amount, &w.Currency,
			); err != nil {
				yield(nil, fmt.Errorf("winners of %s: %w", competitionID, err))
				return
			}
			if !yield(w, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("winners of %s: %w", competitionID, err))
		}
	}
}
