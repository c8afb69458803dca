package app

import (
	"context"
	"sync"

	"case_chat_service/internal/chat/repository"
)

// localPresence 單一行程的在線計數, used when redis is not configured
type localPresence struct {
	mu    sync.Mutex
	rooms map[string]map[string]int64
}

// NewLocalPresence in-memory PresenceRepository
func NewLocalPresence() repository.PresenceRepository {
	return &localPresence{rooms: make(map[string]map[string]int64)}
}

func (p *localPresence) Join(_ context.Context, roomID, userID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	users, ok := p.rooms[roomID]
	if !ok {
		users = make(map[string]int64)
		p.rooms[roomID] = users
	}
	users[userID]++
	return users[userID], nil
}

func (p *localPresence) Leave(_ context.Context, roomID, userID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	users, ok := p.rooms[roomID]
	if !ok {
		return 0, nil
	}
	users[userID]--
	n := users[userID]
	if n <= 0 {
		delete(users, userID)
		n = 0
	}
	if len(users) == 0 {
		delete(p.rooms, roomID)
	}
	return n, nil
}

func (p *localPresence) Online(_ context.Context, roomID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	online := []string{}
	for u := range p.rooms[roomID] {
		online = append(online, u)
	}
	return online, nil
}
