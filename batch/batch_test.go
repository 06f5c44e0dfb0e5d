package batch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/config"
	"github.com/clubhouse/prizepayout/fakes"
	"github.com/clubhouse/prizepayout/model"
	"github.com/clubhouse/prizepayout/prizeconfig"
	"github.com/clubhouse/prizepayout/ts"
)

var june14 = time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testResolver(t *testing.T) prizeconfig.Resolver {
	t.Helper()
	period := prizeconfig.NewEffective(
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		d("50"), d("5"), "GBP",
		prizeconfig.CharityFormula{Kind: prizeconfig.CharityNone},
		map[string]prizeconfig.SplitStrategy{
			prizeconfig.DefaultFormat: {Name: "Standard", Splits: []float64{0.5, 0.3, 0.2}, ResidualToLast: true},
			"pairs":                   {Name: "Pairs", Splits: []float64{0.6, 0.4}, ResidualToLast: true},
		},
	)
	table, err := prizeconfig.NewTable(period)
	if err != nil {
		t.Fatal(err)
	}
	return prizeconfig.NewStaticResolver(table)
}

func entries(n int) []model.LeaderboardEntry {
	out := make([]model.LeaderboardEntry, n)
	for i := range out {
		out[i] = model.LeaderboardEntry{
			Position:   i + 1,
			PlayerID:   fmt.Sprintf("M%03d", i+1),
			PlayerName: fmt.Sprintf("Player %d", i+1),
		}
	}
	return out
}

// addCompetition registers a dated single-division competition with n
// players paying fee.
func addCompetition(src *fakes.LeaderboardSource, id, name string, date time.Time, n int, fee string) {
	dateCopy := date
	src.AddCompetition(
		&model.Competition{ID: id, Name: name, Date: &dateCopy},
		&model.CompetitionSettings{
			ID: id, Name: name, Date: date, Currency: "GBP",
			SignupCharges: []model.SignupCharge{{Description: "Entry", Amount: d(fee), Required: true}},
		},
		&model.Leaderboard{CompetitionID: id, Overall: entries(n)},
	)
}

type fixture struct {
	source *fakes.LeaderboardSource
	store  *fakes.PayoutStorage
	proc   *Processor
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		source: fakes.NewLeaderboardSource(),
		store:  fakes.NewPayoutStorage(),
	}
	clock := ts.NewClock(clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)))
	f.proc = New(f.source, testResolver(t), f.store, clock, opts, zap.NewNop())
	return f
}

func TestRunComputesAndPersists(t *testing.T) {
	f := newFixture(t, Options{PersistAttempts: 3})
	addCompetition(f.source, "4711", "Saturday Stableford", june14, 40, "10")
	f.source.Settings["4711"].SignupCharges = append(f.source.Settings["4711"].SignupCharges,
		model.SignupCharge{Description: "Twos", Amount: d("2"), Required: false},
		model.SignupCharge{Description: "Entry and sweep", Amount: d("15"), Required: true})

	n, err := f.proc.Run(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Run = %d, %v; want 1, nil", n, err)
	}

	r := f.store.Get("4711", june14)
	if r == nil {
		t.Fatal("nothing persisted")
	}
	if !r.EntryFee.Equal(d("10")) {
		t.Errorf("entry fee = %s, want the cheapest required charge 10", r.EntryFee)
	}
	if !r.Revenue.Equal(d("400")) || !r.PrizePot.Equal(d("200")) {
		t.Errorf("revenue %s pot %s, want 400 and 200", r.Revenue, r.PrizePot)
	}
	if r.RuleSetName != "Standard" || r.Currency != "GBP" {
		t.Errorf("rule %q currency %q", r.RuleSetName, r.Currency)
	}
	want := []string{"100", "60", "40"}
	if len(r.Winners) != len(want) {
		t.Fatalf("got %d winners, want 3", len(r.Winners))
	}
	for i, w := range r.Winners {
		if !w.Amount.Equal(d(want[i])) || w.CompetitorID != fmt.Sprintf("M%03d", i+1) {
			t.Errorf("winner %d = %s %s", i+1, w.CompetitorID, w.Amount)
		}
	}
	if !r.CalculatedAt.Equal(time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("calculated at %v", r.CalculatedAt)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{PersistAttempts: 3})
	addCompetition(f.source, "1", "Saturday Stableford", june14, 12, "5")
	addCompetition(f.source, "2", "Sunday Medal", june14.AddDate(0, 0, 1), 20, "5")

	first, err := f.proc.Run(context.Background())
	if err != nil || first != 2 {
		t.Fatalf("first run = %d, %v", first, err)
	}
	stats, err := f.proc.RunWithStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed != 0 || stats.AlreadyPaid != 2 {
		t.Errorf("second run stats = %+v, want 0 processed, 2 already paid", stats)
	}
	if f.store.Count() != 2 {
		t.Errorf("store has %d payouts, want 2", f.store.Count())
	}
}

func TestRunSkipsIneligible(t *testing.T) {
	f := newFixture(t, Options{Eligible: regexp.MustCompile(`(?i)stableford|medal`)})
	addCompetition(f.source, "1", "Saturday Stableford", june14, 12, "5")
	addCompetition(f.source, "2", "Captain's Drive-In", june14, 80, "0")

	stats, err := f.proc.RunWithStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Processed != 1 || stats.Ineligible != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if f.source.LeaderboardCalls["2"] != 0 {
		t.Error("fetched the leaderboard of an ineligible competition")
	}
}

func TestRunFillsMissingDate(t *testing.T) {
	f := newFixture(t, Options{})
	addCompetition(f.source, "1", "Midweek Medal", june14, 10, "5")
	f.source.Competitions[0].Date = nil

	n, err := f.proc.Run(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Run = %d, %v", n, err)
	}
	if f.store.Get("1", june14) == nil {
		t.Error("payout not stored under the settings date")
	}
	if calls := f.source.SettingsCalls["1"]; calls != 1 {
		t.Errorf("settings fetched %d times, want 1", calls)
	}
}

func TestRunSkipsUndatable(t *testing.T) {
	f := newFixture(t, Options{})
	addCompetition(f.source, "1", "Midweek Medal", june14, 10, "5")
	addCompetition(f.source, "2", "Seniors Stableford", june14, 10, "5")
	f.source.Competitions[0].Date = nil
	f.source.SettingsErr["1"] = errors.New("portal timeout")

	stats, err := f.proc.RunWithStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Undated != 1 || stats.Processed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t, Options{})
	addCompetition(f.source, "1", "Saturday Stableford", june14, 12, "5")
	addCompetition(f.source, "2", "Sunday Medal", june14, 12, "5")
	addCompetition(f.source, "3", "Monday Medal", june14, 12, "5")
	f.source.LeaderboardErr["2"] = errors.New("report page changed")

	stats, err := f.proc.RunWithStats(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 2 processed 1 failed", stats)
	}
	if f.store.Get("2", june14) != nil {
		t.Error("failed competition was persisted")
	}
}

// noBoardSource has no leaderboard, and no error, for some competitions.
type noBoardSource struct {
	*fakes.LeaderboardSource
	missing map[string]bool
}

func (s *noBoardSource) GetLeaderboard(ctx context.Context, id string) (*model.Leaderboard, error) {
	if s.missing[id] {
		return nil, nil
	}
	return s.LeaderboardSource.GetLeaderboard(ctx, id)
}

func TestRunMissingLeaderboard(t *testing.T) {
	f := newFixture(t, Options{PersistAttempts: 3})
	addCompetition(f.source, "1", "Saturday Stableford", june14, 12, "5")
	addCompetition(f.source, "2", "Sunday Medal", june14, 12, "5")
	src := &noBoardSource{LeaderboardSource: f.source, missing: map[string]bool{"1": true}}
	clock := ts.NewClock(clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)))
	proc := New(src, testResolver(t), f.store, clock, Options{PersistAttempts: 3}, zap.NewNop())

	stats, err := proc.RunWithStats(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Processed != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 processed 1 failed", stats)
	}
	if f.store.Get("1", june14) != nil {
		t.Error("competition without a leaderboard was persisted")
	}
	if f.store.Get("2", june14) == nil {
		t.Error("competition 2 not persisted")
	}

	_, err = proc.ProcessOne(context.Background(), "1")
	if !errors.Is(err, ErrUnknownCompetition) {
		t.Errorf("ProcessOne(1) = %v, want ErrUnknownCompetition", err)
	}
}

func TestRunDiscoveryFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.source.ListErr = errors.New("portal down")

	if _, err := f.proc.Run(context.Background()); err == nil {
		t.Error("expected discovery failure to be returned")
	}
}

func TestRunCancelledBeforeProcessing(t *testing.T) {
	f := newFixture(t, Options{})
	addCompetition(f.source, "1", "Saturday Stableford", june14, 12, "5")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := f.proc.Run(ctx)
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Errorf("Run = %d, %v; want 0, context.Canceled", n, err)
	}
	if f.store.Count() != 0 {
		t.Error("persisted after cancellation")
	}
}

func TestRunPlaceholdersAndDivisions(t *testing.T) {
	f := newFixture(t, Options{})
	date := june14
	f.source.AddCompetition(
		&model.Competition{ID: "9", Name: "Pairs Betterball", Format: "Pairs", Date: &date},
		&model.CompetitionSettings{
			ID: "9", Date: date,
			Divisions: []model.DivisionSetting{{Number: 1, Name: "Low handicap"}, {Number: 2}},
		},
		&model.Leaderboard{
			CompetitionID: "9",
			Divisions: []model.DivisionLeaderboard{
				{Number: 2, Entries: []model.LeaderboardEntry{
					{Position: 1, PlayerName: "Visitor A"},
					{Position: 2, PlayerID: "M2", PlayerName: "Bea"},
					{Position: 3, PlayerID: "M3", PlayerName: "Cal"},
				}},
				{Number: 1, Entries: []model.LeaderboardEntry{
					{Position: 2, PlayerID: "M5", PlayerName: "Eve"},
					{Position: 1, PlayerID: "M4", PlayerName: "Dan"},
				}},
			},
		},
	)

	if n, err := f.proc.Run(context.Background()); err != nil || n != 1 {
		t.Fatalf("Run = %d, %v", n, err)
	}
	r := f.store.Get("9", date)

	// Four known players at the £5 fallback; the visitor has no identity.
	if r.Entrants != 4 || !r.Revenue.Equal(d("20")) {
		t.Errorf("entrants %d revenue %s, want 4 and 20", r.Entrants, r.Revenue)
	}
	if r.RuleSetName != "Pairs" || r.DivisionCount != 2 {
		t.Errorf("rule %q divisions %d", r.RuleSetName, r.DivisionCount)
	}
	want := []struct {
		div      int
		name, id string
		amount   string
	}{
		{1, "Low handicap", "M4", "3"},
		{1, "Low handicap", "M5", "2"},
		{2, "Division 2", "N1", "3"},
		{2, "Division 2", "M2", "2"},
	}
	if len(r.Winners) != len(want) {
		t.Fatalf("got %d winners, want %d: %+v", len(r.Winners), len(want), r.Winners)
	}
	for i, w := range want {
		got := r.Winners[i]
		if got.DivisionNumber != w.div || got.DivisionName != w.name || got.CompetitorID != w.id || !got.Amount.Equal(d(w.amount)) {
			t.Errorf("winner %d = %d %q %s %s, want %+v", i, got.DivisionNumber, got.DivisionName, got.CompetitorID, got.Amount, w)
		}
	}
}

func TestPersistRetries(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name          string
		errs          []error
		lose          int
		wantProcessed int
		wantStored    int
		wantCalls     int
	}{
		{"first try", nil, 0, 1, 1, 1},
		{"recovers from errors", []error{boom, boom}, 0, 1, 1, 3},
		{"gives up after attempts", []error{boom, boom, boom}, 0, 0, 0, 3},
		{"rewrites a lost write", nil, 1, 1, 1, 2},
		{"never visible is best effort", nil, 5, 1, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{PersistAttempts: 3})
			addCompetition(f.source, "1", "Saturday Stableford", june14, 12, "5")
			f.store.PersistErrors = tt.errs
			f.store.LoseWrites = tt.lose

			n, err := f.proc.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.wantProcessed {
				t.Errorf("processed = %d, want %d", n, tt.wantProcessed)
			}
			if f.store.Count() != tt.wantStored {
				t.Errorf("stored = %d, want %d", f.store.Count(), tt.wantStored)
			}
			if f.store.PersistCalls != tt.wantCalls {
				t.Errorf("persist calls = %d, want %d", f.store.PersistCalls, tt.wantCalls)
			}
		})
	}
}

// slowSource tracks how many leaderboard fetches are in flight.
type slowSource struct {
	*fakes.LeaderboardSource
	lock     sync.Mutex
	inFlight int
	peak     int
}

func (s *slowSource) GetLeaderboard(ctx context.Context, id string) (*model.Leaderboard, error) {
	s.lock.Lock()
	s.inFlight++
	s.peak = max(s.peak, s.inFlight)
	s.lock.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.lock.Lock()
	s.inFlight--
	s.lock.Unlock()
	return s.LeaderboardSource.GetLeaderboard(ctx, id)
}

func TestRunBoundsConcurrency(t *testing.T) {
	src := &slowSource{LeaderboardSource: fakes.NewLeaderboardSource()}
	for i := range 12 {
		addCompetition(src.LeaderboardSource, fmt.Sprint(i), "Stableford", june14, 8, "5")
	}
	store := fakes.NewPayoutStorage()
	clock := ts.NewClock(clockwork.NewFakeClock())
	proc := New(src, testResolver(t), store, clock, Options{Concurrency: 3}, zap.NewNop())

	n, err := proc.Run(context.Background())
	if err != nil || n != 12 {
		t.Fatalf("Run = %d, %v", n, err)
	}
	if src.peak > 3 {
		t.Errorf("peak concurrency %d, want at most 3", src.peak)
	}
}

func TestProcessOne(t *testing.T) {
	f := newFixture(t, Options{Eligible: regexp.MustCompile(`Stableford`)})
	addCompetition(f.source, "1", "Saturday Stableford", june14, 12, "5")
	addCompetition(f.source, "2", "Texas Scramble", june14, 12, "5")
	ctx := context.Background()

	if ok, err := f.proc.ProcessOne(ctx, "1"); err != nil || !ok {
		t.Errorf("first ProcessOne = %v, %v; want true", ok, err)
	}
	if ok, err := f.proc.ProcessOne(ctx, "1"); err != nil || ok {
		t.Errorf("second ProcessOne = %v, %v; want false", ok, err)
	}
	if ok, err := f.proc.ProcessOne(ctx, "2"); err != nil || ok {
		t.Errorf("ineligible ProcessOne = %v, %v; want false", ok, err)
	}
	if _, err := f.proc.ProcessOne(ctx, "404"); !errors.Is(err, ErrUnknownCompetition) {
		t.Errorf("unknown competition: err = %v, want ErrUnknownCompetition", err)
	}
}

func TestEntryFee(t *testing.T) {
	tests := []struct {
		name      string
		charges   []model.SignupCharge
		fallbacks []decimal.Decimal
		want      string
	}{
		{"cheapest required", []model.SignupCharge{{Amount: d("12"), Required: true}, {Amount: d("8"), Required: true}, {Amount: d("1"), Required: false}}, nil, "8"},
		{"ignores free", []model.SignupCharge{{Amount: d("0"), Required: true}, {Amount: d("6"), Required: true}}, nil, "6"},
		{"fallback", []model.SignupCharge{{Amount: d("3"), Required: false}}, []decimal.Decimal{d("5"), d("4")}, "5"},
		{"skips zero fallback", nil, []decimal.Decimal{decimal.Zero, d("4")}, "4"},
		{"nothing", nil, nil, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EntryFee(tt.charges, tt.fallbacks...); !got.Equal(d(tt.want)) {
				t.Errorf("EntryFee = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(configFor(`(?i)medal`, "7.50"))
	if err != nil {
		t.Fatal(err)
	}
	if !opts.Eligible.MatchString("Monthly MEDAL") || !opts.DefaultEntryFee.Equal(d("7.5")) {
		t.Errorf("opts = %+v", opts)
	}
	if _, err := OptionsFromConfig(configFor(`(`, "5")); err == nil {
		t.Error("bad pattern accepted")
	}
	if _, err := OptionsFromConfig(configFor(`.*`, "five")); err == nil {
		t.Error("bad fee accepted")
	}
}

func configFor(pattern, fee string) config.BatchConfig {
	return config.BatchConfig{Concurrency: 5, EligibleNamePattern: pattern, DefaultEntryFee: fee, PersistAttempts: 3}
}
