// Package standalone has collaborators for running the payout engine without
// the club's portal, document store, ticket board or mail relay: competitions
// come from exported YAML files, documents go to a local directory, and
// tickets and email are written to the log.
package standalone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/clubhouse/prizepayout/model"
)

// One file per finalised competition:
//
//	id: C100
//	name: Saturday Medal
//	format: stroke
//	date: 2025-06-14
//	currency: GBP
//	divisions: [{number: 1, name: Division 1}]
//	charges: [{description: Entry, amount: "10.00", required: true}]
//	overall: [{position: 1, player_id: p1, player_name: Ann Able}]
//	results:
//	  - number: 1
//	    entries: [{position: 1, player_id: p1, player_name: Ann Able}]
type exportFile struct {
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Format    string           `yaml:"format"`
	Date      string           `yaml:"date"`
	Currency  string           `yaml:"currency"`
	Divisions []exportDivision `yaml:"divisions"`
	Charges   []exportCharge   `yaml:"charges"`
	Overall   []exportEntry    `yaml:"overall"`
	Results   []exportResult   `yaml:"results"`
}

type exportDivision struct {
	Number int    `yaml:"number"`
	Name   string `yaml:"name"`
}

type exportCharge struct {
	Description string          `yaml:"description"`
	Amount      decimal.Decimal `yaml:"amount"`
	Required    bool            `yaml:"required"`
}

type exportEntry struct {
	Position   int    `yaml:"position"`
	PlayerID   string `yaml:"player_id"`
	PlayerName string `yaml:"player_name"`
}

type exportResult struct {
	Number  int           `yaml:"number"`
	Name    string        `yaml:"name"`
	Entries []exportEntry `yaml:"entries"`
}

func entries(in []exportEntry) []model.LeaderboardEntry {
	out := make([]model.LeaderboardEntry, 0, len(in))
	for _, e := range in {
		out = append(out, model.LeaderboardEntry{Position: e.Position, PlayerID: e.PlayerID, PlayerName: e.PlayerName})
	}
	return out
}

func (f *exportFile) settings(date time.Time) *model.CompetitionSettings {
	s := &model.CompetitionSettings{
		ID:       f.ID,
		Name:     f.Name,
		Date:     date,
		Format:   f.Format,
		Currency: f.Currency,
	}
	for _, d := range f.Divisions {
		s.Divisions = append(s.Divisions, model.DivisionSetting{Number: d.Number, Name: d.Name})
	}
	for _, c := range f.Charges {
		s.SignupCharges = append(s.SignupCharges, model.SignupCharge{Description: c.Description, Amount: c.Amount, Required: c.Required})
	}
	return s
}

func (f *exportFile) leaderboard() *model.Leaderboard {
	lb := &model.Leaderboard{CompetitionID: f.ID, Overall: entries(f.Overall)}
	for _, r := range f.Results {
		lb.Divisions = append(lb.Divisions, model.DivisionLeaderboard{Number: r.Number, Name: r.Name, Entries: entries(r.Entries)})
	}
	return lb
}

// DirSource reads competition exports from a directory.  The directory is
// re-read on every call, so new exports are picked up without a restart.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

type loaded struct {
	file *exportFile
	date time.Time
}

func (s *DirSource) load() (map[string]loaded, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	out := map[string]loaded{}
	for _, p := range paths {
		bytes, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		f := &exportFile{}
		if err := yaml.Unmarshal(bytes, f); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if strings.TrimSpace(f.ID) == "" {
			return nil, fmt.Errorf("%s: no competition id", filepath.Base(p))
		}
		l := loaded{file: f}
		if f.Date != "" {
			if l.date, err = time.Parse(time.DateOnly, f.Date); err != nil {
				return nil, fmt.Errorf("%s: bad date %q: %w", filepath.Base(p), f.Date, err)
			}
		}
		out[f.ID] = l
	}
	return out, nil
}

func (s *DirSource) ListFinalisedCompetitions(_ context.Context) ([]*model.Competition, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Competition, 0, len(all))
	for _, l := range all {
		c := &model.Competition{ID: l.file.ID, Name: l.file.Name, Format: l.file.Format}
		if !l.date.IsZero() {
			d := l.date
			c.Date = &d
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *model.Competition) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *DirSource) GetLeaderboard(_ context.Context, competitionID string) (*model.Leaderboard, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	l, ok := all[competitionID]
	if !ok {
		return nil, fmt.Errorf("no export for competition %s", competitionID)
	}
	return l.file.leaderboard(), nil
}

// GetCompetitionSettings returns nil, nil for competitions with no export.
func (s *DirSource) GetCompetitionSettings(_ context.Context, competitionID string) (*model.CompetitionSettings, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	l, ok := all[competitionID]
	if !ok {
		return nil, nil
	}
	return l.file.settings(l.date), nil
}
