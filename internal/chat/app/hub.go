package app

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scope 廣播範圍
type Scope string

const (
	// ScopeRoom the two participants of one chat room
	ScopeRoom Scope = "room"
	// ScopeUser every live connection of one identity
	ScopeUser Scope = "user"
)

// relayPattern matches every channel written by Channel
const relayPattern = "chat:*"

// Channel redis channel of scope/key, e.g. chat:room:<id>, chat:user:<id>
func Channel(scope Scope, key string) string {
	return "chat:" + string(scope) + ":" + key
}

func parseChannel(ch string) (Scope, string, bool) {
	parts := strings.SplitN(ch, ":", 3)
	if len(parts) != 3 || parts[0] != "chat" {
		return "", "", false
	}
	switch Scope(parts[1]) {
	case ScopeRoom, ScopeUser:
		return Scope(parts[1]), parts[2], true
	}
	return "", "", false
}

// Subscriber one live connection
type Subscriber interface {
	ID() string
	UserID() string
	// Deliver must not block, false means the frame was dropped
	Deliver(frame domain.OutboundFrame) bool
}

// Broadcaster fan-out used by the use cases
type Broadcaster interface {
	// Broadcast delivers frame to every subscriber of scope/key except those of
	// excludeUser and returns the number of local deliveries
	Broadcast(ctx context.Context, scope Scope, key string, frame domain.OutboundFrame, excludeUser string) int
}

type scopeKey struct {
	scope Scope
	key   string
}

type relayEnvelope struct {
	Origin      string               `json:"origin"`
	ExcludeUser string               `json:"exclude_user,omitempty"`
	Frame       domain.OutboundFrame `json:"frame"`
}

// Hub 行程內的訂閱表, optionally mirrored to other processes through a PubSub relay.
// All access to the scope-key space goes through Subscribe / Unsubscribe / Broadcast.
type Hub struct {
	mu     sync.RWMutex
	scopes map[scopeKey]map[string]Subscriber

	relay  repository.PubSub
	origin string
}

// NewHub create Hub, relay may be nil for a single process deployment
func NewHub(relay repository.PubSub) *Hub {
	return &Hub{
		scopes: make(map[scopeKey]map[string]Subscriber),
		relay:  relay,
		origin: uuid.NewString(),
	}
}

// Subscribe add sub to scope/key
func (h *Hub) Subscribe(scope Scope, key string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := scopeKey{scope, key}
	subs, ok := h.scopes[k]
	if !ok {
		subs = make(map[string]Subscriber)
		h.scopes[k] = subs
	}
	subs[sub.ID()] = sub
}

// Unsubscribe remove sub from scope/key, empty groups are dropped
func (h *Hub) Unsubscribe(scope Scope, key string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	k := scopeKey{scope, key}
	if subs, ok := h.scopes[k]; ok {
		delete(subs, sub.ID())
		if len(subs) == 0 {
			delete(h.scopes, k)
		}
	}
}

// Broadcast deliver locally then publish to the relay
func (h *Hub) Broadcast(ctx context.Context, scope Scope, key string, frame domain.OutboundFrame, excludeUser string) int {
	n := h.deliverLocal(scope, key, frame, excludeUser)

	if h.relay != nil {
		payload, err := json.Marshal(relayEnvelope{Origin: h.origin, ExcludeUser: excludeUser, Frame: frame})
		if err == nil {
			err = h.relay.Publish(ctx, Channel(scope, key), payload)
		}
		if err != nil {
			logger.Log.Warn("relay publish failed",
				zap.String("scope", string(scope)),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return n
}

func (h *Hub) deliverLocal(scope Scope, key string, frame domain.OutboundFrame, excludeUser string) int {
	h.mu.RLock()
	subs := h.scopes[scopeKey{scope, key}]
	targets := make([]Subscriber, 0, len(subs))
	for _, s := range subs {
		if excludeUser != "" && s.UserID() == excludeUser {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.Deliver(frame.ForViewer(s.UserID())) {
			delivered++
		}
	}
	return delivered
}

// Count local subscribers of scope/key
func (h *Hub) Count(scope Scope, key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scopeKey{scope, key}])
}

// UsersIn distinct local users subscribed to scope/key
func (h *Hub) UsersIn(scope Scope, key string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := map[string]struct{}{}
	users := []string{}
	for _, s := range h.scopes[scopeKey{scope, key}] {
		if _, ok := seen[s.UserID()]; ok {
			continue
		}
		seen[s.UserID()] = struct{}{}
		users = append(users, s.UserID())
	}
	return users
}

// Run consume frames relayed by other processes until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		<-ctx.Done()
		return nil
	}

	err := h.relay.Subscribe(ctx, relayPattern, func(channel string, payload []byte) {
		scope, key, ok := parseChannel(channel)
		if !ok {
			return
		}
		var env relayEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			logger.Log.Warn("drop malformed relay payload", zap.String("channel", channel), zap.Error(err))
			return
		}
		if env.Origin == h.origin {
			return
		}
		h.deliverLocal(scope, key, env.Frame, env.ExcludeUser)
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}
