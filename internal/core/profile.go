package core

import (
	"sort"
	"sync"

	"github.com/notelock/core/internal/models"
)

// profile is the in-memory cache of the logged-in user's spaces and boards.
// Notes are too numerous to cache; they stay in the store and are loaded by
// id on demand.
type profile struct {
	mu     sync.RWMutex
	spaces map[string]*models.Space
	boards map[string]*models.Board
}

func newProfile() *profile {
	return &profile{
		spaces: make(map[string]*models.Space),
		boards: make(map[string]*models.Board),
	}
}

func (p *profile) putSpace(s *models.Space) {
	p.mu.Lock()
	p.spaces[s.ID] = s
	p.mu.Unlock()
}

func (p *profile) putBoard(b *models.Board) {
	p.mu.Lock()
	p.boards[b.ID] = b
	p.mu.Unlock()
}

func (p *profile) removeSpace(id string) {
	p.mu.Lock()
	delete(p.spaces, id)
	p.mu.Unlock()
}

func (p *profile) removeBoard(id string) {
	p.mu.Lock()
	delete(p.boards, id)
	p.mu.Unlock()
}

func (p *profile) clear() {
	p.mu.Lock()
	p.spaces = make(map[string]*models.Space)
	p.boards = make(map[string]*models.Board)
	p.mu.Unlock()
}

// snapshot returns the cached spaces and boards sorted by id so repeated
// profile:load calls produce stable listings.
func (p *profile) snapshot() ([]*models.Space, []*models.Board) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	spaces := make([]*models.Space, 0, len(p.spaces))
	for _, s := range p.spaces {
		spaces = append(spaces, s)
	}
	sort.Slice(spaces, func(i, j int) bool { return spaces[i].ID < spaces[j].ID })

	boards := make([]*models.Board, 0, len(p.boards))
	for _, b := range p.boards {
		boards = append(boards, b)
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].ID < boards[j].ID })

	return spaces, boards
}
