package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/clubhouse/prizepayout/model"
)

// LeaderboardSource serves competitions, leaderboards and settings from maps.
type LeaderboardSource struct {
	lock sync.Mutex

	Competitions []*model.Competition
	Leaderboards map[string]*model.Leaderboard
	Settings     map[string]*model.CompetitionSettings

	ListErr        error
	LeaderboardErr map[string]error
	SettingsErr    map[string]error

	SettingsCalls    map[string]int
	LeaderboardCalls map[string]int
}

func NewLeaderboardSource() *LeaderboardSource {
	return &LeaderboardSource{
		Leaderboards:     map[string]*model.Leaderboard{},
		Settings:         map[string]*model.CompetitionSettings{},
		LeaderboardErr:   map[string]error{},
		SettingsErr:      map[string]error{},
		SettingsCalls:    map[string]int{},
		LeaderboardCalls: map[string]int{},
	}
}

// AddCompetition registers a finalised competition with its settings and
// leaderboard.
func (s *LeaderboardSource) AddCompetition(c *model.Competition, settings *model.CompetitionSettings, lb *model.Leaderboard) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.Competitions = append(s.Competitions, c)
	if settings != nil {
		s.Settings[c.ID] = settings
	}
	if lb != nil {
		s.Leaderboards[c.ID] = lb
	}
}

func (s *LeaderboardSource) ListFinalisedCompetitions(_ context.Context) ([]*model.Competition, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	// Hand out copies, the way a fresh fetch would.
	out := make([]*model.Competition, len(s.Competitions))
	for i, c := range s.Competitions {
		cpy := *c
		out[i] = &cpy
	}
	return out, nil
}

func (s *LeaderboardSource) GetLeaderboard(_ context.Context, competitionID string) (*model.Leaderboard, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.LeaderboardCalls[competitionID]++
	if err := s.LeaderboardErr[competitionID]; err != nil {
		return nil, err
	}
	lb, ok := s.Leaderboards[competitionID]
	if !ok {
		return nil, fmt.Errorf("no leaderboard for competition %s", competitionID)
	}
	return lb, nil
}

func (s *LeaderboardSource) GetCompetitionSettings(_ context.Context, competitionID string) (*model.CompetitionSettings, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.SettingsCalls[competitionID]++
	if err := s.SettingsErr[competitionID]; err != nil {
		return nil, err
	}
	// Unknown competitions are nil, nil, as the portal reports them.
	return s.Settings[competitionID], nil
}
