package standalone

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clubhouse/prizepayout/model"
)

const medalExport = `id: C100
name: Saturday Medal
format: stroke
date: 2025-06-14
currency: GBP
divisions:
  - {number: 1, name: Handicap 0-18}
charges:
  - {description: Entry, amount: "10.00", required: true}
  - {description: Twos, amount: "1.00", required: false}
overall:
  - {position: 1, player_id: p1, player_name: Ann Able}
  - {position: 2, player_id: p2, player_name: Bob Baker}
results:
  - number: 1
    entries:
      - {position: 1, player_id: p1, player_name: Ann Able}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c100.yaml", medalExport)
	writeFile(t, dir, "c200.yaml", "id: C200\nname: Undated Pairs\n")
	writeFile(t, dir, "notes.txt", "not an export")
	src := NewDirSource(dir)
	ctx := context.Background()

	comps, err := src.ListFinalisedCompetitions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(comps) != 2 || comps[0].ID != "C100" || comps[1].ID != "C200" {
		t.Fatalf("competitions = %+v", comps)
	}
	if comps[0].Date == nil || !comps[0].Date.Equal(time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("C100 date = %v", comps[0].Date)
	}
	if comps[1].Date != nil {
		t.Errorf("C200 date = %v, want nil", comps[1].Date)
	}

	s, err := src.GetCompetitionSettings(ctx, "C100")
	if err != nil {
		t.Fatal(err)
	}
	if s.Currency != "GBP" || len(s.SignupCharges) != 2 || s.Divisions[0].Name != "Handicap 0-18" {
		t.Errorf("settings = %+v", s)
	}
	if !s.SignupCharges[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("entry charge = %s", s.SignupCharges[0].Amount)
	}

	lb, err := src.GetLeaderboard(ctx, "C100")
	if err != nil {
		t.Fatal(err)
	}
	if len(lb.Overall) != 2 || len(lb.Divisions) != 1 || lb.Divisions[0].Entries[0].PlayerID != "p1" {
		t.Errorf("leaderboard = %+v", lb)
	}

	if s, err := src.GetCompetitionSettings(ctx, "C999"); s != nil || err != nil {
		t.Errorf("unknown settings = %v, %v", s, err)
	}
	if _, err := src.GetLeaderboard(ctx, "C999"); err == nil {
		t.Errorf("unknown leaderboard succeeded")
	}
}

func TestDirSourceBadExport(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no id", "name: Nameless\n"},
		{"bad date", "id: C1\ndate: 14/06/2025\n"},
		{"not yaml", "id: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "bad.yaml", tt.body)
			if _, err := NewDirSource(dir).ListFinalisedCompetitions(context.Background()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestPlayers(t *testing.T) {
	p := writeFile(t, t.TempDir(), "players.yaml", "- {id: p1, name: Ann Able, email: ann@example.test}\n")
	players, err := LoadPlayers(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := players.FindPlayer(context.Background(), "p1")
	if err != nil || got == nil || got.Email != "ann@example.test" {
		t.Errorf("FindPlayer(p1) = %+v, %v", got, err)
	}
	if got, err := players.FindPlayer(context.Background(), "p2"); got != nil || err != nil {
		t.Errorf("FindPlayer(p2) = %+v, %v", got, err)
	}

	empty, err := LoadPlayers("")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := empty.FindPlayer(context.Background(), "p1"); got != nil {
		t.Errorf("empty directory found %+v", got)
	}
}

func TestDocuments(t *testing.T) {
	d := NewDocuments(t.TempDir(), "https://files.example.test/")
	ctx := context.Background()

	if ok, err := d.Exists(ctx, "prize-invoices", "INV-C100-20250614.txt"); ok || err != nil {
		t.Fatalf("Exists before upload = %v, %v", ok, err)
	}
	if err := d.Upload(ctx, "prize-invoices", "INV-C100-20250614.txt", []byte("invoice"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	if ok, err := d.Exists(ctx, "prize-invoices", "INV-C100-20250614.txt"); !ok || err != nil {
		t.Errorf("Exists after upload = %v, %v", ok, err)
	}
	if got := d.BlobURL("prize-invoices", "INV-C100-20250614.txt"); got != "https://files.example.test/prize-invoices/INV-C100-20250614.txt" {
		t.Errorf("BlobURL = %q", got)
	}
	if _, err := d.SASURL(ctx, "prize-invoices", "x", "r", time.Hour); !errors.Is(err, ErrNoSigning) {
		t.Errorf("SASURL err = %v", err)
	}
	if err := d.Upload(ctx, "prize-invoices", "../escape", []byte("x"), ""); err == nil {
		t.Errorf("Upload accepted a path outside the container")
	}
}

func TestLogTicketBoardIsStable(t *testing.T) {
	b := NewLogTicketBoard(zap.NewNop())
	task := model.FinanceTask{Name: "INV-C100-20250614 Saturday Medal prize money"}
	first, _ := b.CreateFinanceTask(context.Background(), task)
	second, _ := b.CreateFinanceTask(context.Background(), task)
	if first != second {
		t.Errorf("ids differ: %q vs %q", first, second)
	}
	other, _ := b.CreateFinanceTask(context.Background(), model.FinanceTask{Name: "something else"})
	if other == first {
		t.Errorf("different tasks share id %q", first)
	}
}
