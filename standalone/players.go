package standalone

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clubhouse/prizepayout/model"
)

type playerRecord struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Players is a member list loaded from YAML, a list of {id, name, email}.
type Players struct {
	byID map[string]*model.Player
}

func LoadPlayers(path string) (*Players, error) {
	p := &Players{byID: map[string]*model.Player{}}
	if path == "" {
		return p, nil
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading players: %w", err)
	}
	var records []playerRecord
	if err := yaml.Unmarshal(bytes, &records); err != nil {
		return nil, fmt.Errorf("decoding players: %w", err)
	}
	for _, r := range records {
		p.byID[r.ID] = &model.Player{ID: r.ID, Name: r.Name, Email: r.Email}
	}
	return p, nil
}

func (p *Players) FindPlayer(_ context.Context, competitorID string) (*model.Player, error) {
	pl, ok := p.byID[competitorID]
	if !ok {
		return nil, nil
	}
	cpy := *pl
	return &cpy, nil
}
