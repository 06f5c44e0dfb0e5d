package state

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/model"
)

var (
	competitionDate = time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	calculatedAt    = time.Date(2025, 6, 14, 19, 5, 0, 0, time.UTC)
)

func newMockStorage(t *testing.T) (*DBStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDBStorage(db, zap.NewNop()), mock
}

func result() *model.CompetitionPayoutResult {
	return &model.CompetitionPayoutResult{
		PayoutHeader: model.PayoutHeader{
			CompetitionID:   "4711",
			CompetitionName: "Saturday Stableford",
			CompetitionDate: time.Date(2025, 6, 14, 9, 30, 0, 0, time.UTC),
			Entrants:        40,
			EntryFee:        decimal.NewFromInt(10),
			DivisionCount:   1,
			PayoutPercent:   decimal.RequireFromString("0.5"),
			Revenue:         decimal.NewFromInt(400),
			PrizePot:        decimal.NewFromInt(200),
			CharityAmount:   decimal.NewFromInt(20),
			ClubIncome:      decimal.NewFromInt(180),
			Currency:        "GBP",
			RuleSetName:     "Standard",
			CalculatedAt:    calculatedAt,
		},
		Winners: []model.WinnerPayout{
			{CompetitionID: "4711", DivisionNumber: 1, DivisionName: "Division 1", Position: 1, CompetitorID: "M1", CompetitorName: "Ann", Amount: decimal.NewFromInt(100), Currency: "GBP"},
			{CompetitionID: "4711", DivisionNumber: 1, DivisionName: "Division 1", Position: 2, CompetitorID: "N2", CompetitorName: "Bob", Amount: decimal.NewFromInt(60), Currency: "GBP"},
		},
	}
}

func TestExists(t *testing.T) {
	for _, want := range []bool{true, false} {
		s, mock := newMockStorage(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs("4711", competitionDate).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(want))

		got, err := s.Exists(context.Background(), "4711", time.Date(2025, 6, 14, 18, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("Exists: %v", err)
		}
		if got != want {
			t.Errorf("Exists = %v, want %v", got, want)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	}
}

func TestExistsError(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WillReturnError(sql.ErrConnDone)

	if _, err := s.Exists(context.Background(), "4711", competitionDate); !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("err = %v, want ErrConnDone", err)
	}
}

func TestPersistWritesHeaderWinnersAndNotifies(t *testing.T) {
	s, mock := newMockStorage(t)
	r := result()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payout_headers")).
		WithArgs("4711", competitionDate, 2025, "Saturday Stableford",
			40, r.EntryFee, 1, r.PayoutPercent,
			r.Revenue, r.PrizePot, r.CharityAmount, r.ClubIncome,
			"GBP", "Standard", calculatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, w := range r.Winners {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payout_winners")).
			WithArgs("4711", competitionDate, w.DivisionNumber, w.DivisionName,
				w.Position, w.CompetitorID, w.CompetitorName, w.Amount, "GBP").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_notify")).
		WithArgs(ChangeChannel, `{"table":"payout_headers","competition_id":"4711","year":2025}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.Persist(context.Background(), r); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPersistRollsBackOnDuplicate(t *testing.T) {
	s, mock := newMockStorage(t)
	duplicate := errors.New(`duplicate key value violates unique constraint "payout_headers_pkey"`)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payout_headers")).WillReturnError(duplicate)
	mock.ExpectRollback()

	err := s.Persist(context.Background(), result())
	if !errors.Is(err, duplicate) {
		t.Fatalf("err = %v, want the duplicate key error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPersistRollsBackOnWinnerFailure(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payout_headers")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payout_winners")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := s.Persist(context.Background(), result()); err == nil {
		t.Fatal("expected an error when a winner row isn't written")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHeadersForYear(t *testing.T) {
	s, mock := newMockStorage(t)
	columns := []string{
		"competition_id", "competition_name", "competition_date", "entrants", "entry_fee",
		"division_count", "payout_percent", "revenue", "prize_pot", "charity_amount",
		"club_income", "currency", "rule_set_name", "calculated_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM payout_headers")).
		WithArgs(2025).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("4711", "Saturday Stableford", competitionDate, int64(40), "10.00",
				int64(1), "0.500000", "400.00", "200.00", "20.00",
				"180.00", "GBP", "Standard", calculatedAt).
			AddRow("4712", "Sunday Medal", competitionDate.AddDate(0, 0, 1), int64(12), "5.00",
				int64(2), "0.500000", "60.00", "30.00", "0.00",
				"30.00", "GBP", "Standard", calculatedAt))

	headers, err := s.HeadersForYear(context.Background(), 2025)
	if err != nil {
		t.Fatalf("HeadersForYear: %v", err)
	}
	if len(headers) != 2 {
		t.Fatalf("got %d headers, want 2", len(headers))
	}
	h := headers[0]
	if h.CompetitionID != "4711" || h.Entrants != 40 || !h.PrizePot.Equal(decimal.NewFromInt(200)) {
		t.Errorf("first header = %+v", h)
	}
	if headers[1].DivisionCount != 2 || headers[1].Year() != 2025 {
		t.Errorf("second header = %+v", headers[1])
	}
}

func TestWinnersByCompetitionStreams(t *testing.T) {
	s, mock := newMockStorage(t)
	columns := []string{
		"competition_id", "division_number", "division_name", "position",
		"competitor_id", "competitor_name", "amount", "currency",
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM payout_winners")).
		WithArgs("4711").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("4711", int64(1), "Division 1", int64(1), "M1", "Ann", "100.00", "GBP").
			AddRow("4711", int64(1), "Division 1", int64(2), "N2", "Bob", "60.00", "GBP").
			AddRow("4711", int64(1), "Division 1", int64(3), "M9", "Cat", "40.00", "GBP"))

	winners, err := CollectWinners(s.WinnersByCompetition(context.Background(), "4711"))
	if err != nil {
		t.Fatalf("WinnersByCompetition: %v", err)
	}
	if len(winners) != 3 {
		t.Fatalf("got %d winners, want 3", len(winners))
	}
	if winners[1].CompetitorID != "N2" || !winners[1].Amount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("second winner = %+v", winners[1])
	}
}

func TestWinnersByCompetitionStopsEarly(t *testing.T) {
	s, mock := newMockStorage(t)
	columns := []string{
		"competition_id", "division_number", "division_name", "position",
		"competitor_id", "competitor_name", "amount", "currency",
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM payout_winners")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("4711", int64(1), "Division 1", int64(1), "M1", "Ann", "100.00", "GBP").
			AddRow("4711", int64(1), "Division 1", int64(2), "N2", "Bob", "60.00", "GBP"))

	seen := 0
	for w, err := range s.WinnersByCompetition(context.Background(), "4711") {
		if err != nil {
			t.Fatal(err)
		}
		seen++
		if w.Position == 1 {
			break
		}
	}
	if seen != 1 {
		t.Errorf("saw %d winners after break, want 1", seen)
	}
}

func TestWinnersByCompetitionQueryError(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM payout_winners")).WillReturnError(sql.ErrConnDone)

	if _, err := CollectWinners(s.WinnersByCompetition(context.Background(), "4711")); !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("err = %v, want ErrConnDone", err)
	}
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStorage(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS payout_headers")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
