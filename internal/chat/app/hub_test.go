package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"case_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPubSub 行程內 PubSub, every Hub sharing it acts like a separate process
type memPubSub struct {
	mu       sync.Mutex
	handlers []func(channel string, payload []byte)
	fail     bool
}

func (p *memPubSub) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	if p.fail {
		p.mu.Unlock()
		return errors.New("redis down")
	}
	hs := append([]func(string, []byte){}, p.handlers...)
	p.mu.Unlock()
	for _, h := range hs {
		h(channel, payload)
	}
	return nil
}

func (p *memPubSub) Subscribe(_ context.Context, pattern string, handler func(channel string, payload []byte)) error {
	prefix := strings.TrimSuffix(pattern, "*")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, func(ch string, payload []byte) {
		if strings.HasPrefix(ch, prefix) {
			handler(ch, payload)
		}
	})
	return nil
}

func (p *memPubSub) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "chat:room:r1", Channel(ScopeRoom, "r1"))
	assert.Equal(t, "chat:user:u1", Channel(ScopeUser, "u1"))

	scope, key, ok := parseChannel("chat:user:u:with:colons")
	require.True(t, ok)
	assert.Equal(t, ScopeUser, scope)
	assert.Equal(t, "u:with:colons", key)

	_, _, ok = parseChannel("chat:video:1")
	assert.False(t, ok)
	_, _, ok = parseChannel("other:room:1")
	assert.False(t, ok)
}

func TestHub_BroadcastExcludeAndViewer(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(nil)

	k1 := newRecordingSubscriber("k1", "user-k")
	k2 := newRecordingSubscriber("k2", "user-k")
	l1 := newRecordingSubscriber("l1", "user-l")
	other := newRecordingSubscriber("o1", "user-l")
	hub.Subscribe(ScopeRoom, "r1", k1)
	hub.Subscribe(ScopeRoom, "r1", k2)
	hub.Subscribe(ScopeRoom, "r1", l1)
	hub.Subscribe(ScopeRoom, "r2", other)

	view := &domain.MessageView{ID: "m1", RoomID: "r1", SenderID: "user-k"}
	n := hub.Broadcast(ctx, ScopeRoom, "r1", domain.ChatMessageFrame(view), "")
	assert.Equal(t, 3, n)
	assert.True(t, k1.Frames()[0].Message.IsOwnMessage)
	assert.True(t, k2.Frames()[0].Message.IsOwnMessage)
	assert.False(t, l1.Frames()[0].Message.IsOwnMessage)
	assert.Empty(t, other.Frames(), "room scope isolation")

	// 排除同一使用者的所有連線
	n = hub.Broadcast(ctx, ScopeRoom, "r1", domain.TypingFrame("user-k", "Kim", true), "user-k")
	assert.Equal(t, 1, n)
	assert.Len(t, k1.Frames(), 1)
	assert.Len(t, l1.Frames(), 2)

	assert.Equal(t, 3, hub.Count(ScopeRoom, "r1"))
	assert.ElementsMatch(t, []string{"user-k", "user-l"}, hub.UsersIn(ScopeRoom, "r1"))

	hub.Unsubscribe(ScopeRoom, "r1", k1)
	hub.Unsubscribe(ScopeRoom, "r1", k2)
	hub.Unsubscribe(ScopeRoom, "r1", l1)
	assert.Zero(t, hub.Count(ScopeRoom, "r1"))
	assert.Zero(t, hub.Broadcast(ctx, ScopeRoom, "r1", domain.ErrorFrame("x"), ""))

	hub.mu.RLock()
	_, ok := hub.scopes[scopeKey{ScopeRoom, "r1"}]
	hub.mu.RUnlock()
	assert.False(t, ok, "empty groups are dropped")
}

func TestHub_RelayAcrossProcesses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := &memPubSub{}
	a := NewHub(bus)
	b := NewHub(bus)

	var wg sync.WaitGroup
	for _, h := range []*Hub{a, b} {
		wg.Add(1)
		go func(h *Hub) {
			defer wg.Done()
			assert.NoError(t, h.Run(ctx))
		}(h)
	}
	require.Eventually(t, func() bool { return bus.subscribers() == 2 }, time.Second, 5*time.Millisecond)

	onA := newRecordingSubscriber("a1", "user-k")
	onB := newRecordingSubscriber("b1", "user-l")
	senderOnB := newRecordingSubscriber("b2", "user-k")
	a.Subscribe(ScopeRoom, "r1", onA)
	b.Subscribe(ScopeRoom, "r1", onB)
	b.Subscribe(ScopeRoom, "r1", senderOnB)

	view := &domain.MessageView{ID: "m1", RoomID: "r1", SenderID: "user-k", Content: "hi"}
	a.Broadcast(ctx, ScopeRoom, "r1", domain.ChatMessageFrame(view), "")

	// a 不會再收到自己發出的 relay
	require.Len(t, onA.Frames(), 1)
	require.Len(t, onB.Frames(), 1)
	assert.Equal(t, "hi", onB.Frames()[0].Message.Content)
	assert.False(t, onB.Frames()[0].Message.IsOwnMessage)
	assert.True(t, senderOnB.Frames()[0].Message.IsOwnMessage)

	a.Broadcast(ctx, ScopeRoom, "r1", domain.TypingFrame("user-k", "Kim", true), "user-k")
	assert.Len(t, onB.Frames(), 2)
	assert.Len(t, senderOnB.Frames(), 1, "exclusion applies on every process")

	// relay 失敗只影響遠端
	bus.mu.Lock()
	bus.fail = true
	bus.mu.Unlock()
	assert.Equal(t, 1, a.Broadcast(ctx, ScopeRoom, "r1", domain.ErrorFrame("x"), ""))
	assert.Len(t, onB.Frames(), 2)

	cancel()
	wg.Wait()
}

func TestHub_RunIgnoresForeignPayloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &memPubSub{}
	hub := NewHub(bus)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	require.Eventually(t, func() bool { return bus.subscribers() == 1 }, time.Second, 5*time.Millisecond)

	sub := newRecordingSubscriber("s", "user-k")
	hub.Subscribe(ScopeUser, "user-k", sub)

	require.NoError(t, bus.Publish(ctx, "chat:user:user-k", []byte("not json")))
	require.NoError(t, bus.Publish(ctx, "chat:bogus:user-k", []byte("{}")))
	payload, err := json.Marshal(relayEnvelope{Origin: "elsewhere", Frame: domain.ErrorFrame("remote")})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "chat:user:user-k", payload))

	frames := sub.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "remote", frames[0].Text)

	cancel()
	<-done
}

// fakeFrameConn records writes of a session
type fakeFrameConn struct {
	mu       sync.Mutex
	messages [][]byte
	pings    int
	failOn   int
}

func (c *fakeFrameConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOn > 0 && len(c.messages)+1 >= c.failOn {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *fakeFrameConn) WriteControl(int, []byte, time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeFrameConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeFrameConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.messages...)
}

func (c *fakeFrameConn) pingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func TestSession_WriteLoop(t *testing.T) {
	conn := &fakeFrameConn{}
	s := newSession(conn, clientIdentity, 4, 10*time.Millisecond, time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop()
	}()

	require.True(t, s.Deliver(domain.ErrorFrame("Invalid JSON")))
	require.True(t, s.Deliver(domain.TypingFrame("user-l", "Lee", false)))

	require.Eventually(t, func() bool { return len(conn.written()) == 2 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"type":"error","message":"Invalid JSON"}`, string(conn.written()[0]))
	require.Eventually(t, func() bool { return conn.pingCount() > 0 }, time.Second, 5*time.Millisecond)

	s.close()
	s.close()
	<-done
	assert.False(t, s.Deliver(domain.ErrorFrame("late")), "closed session drops frames")
}

func TestSession_FullBufferDrops(t *testing.T) {
	s := newSession(&fakeFrameConn{}, clientIdentity, 1, 0, time.Second)
	assert.True(t, s.Deliver(domain.ErrorFrame("one")))
	assert.False(t, s.Deliver(domain.ErrorFrame("two")), "slow consumer must not block the broadcaster")
}

func TestSession_WriteFailureClosesSession(t *testing.T) {
	s := newSession(&fakeFrameConn{failOn: 1}, clientIdentity, 2, 0, time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop()
	}()
	s.Deliver(domain.ErrorFrame("boom"))
	<-done

	select {
	case <-s.done:
	default:
		t.Fatal("session should be closed after a failed write")
	}
}

func TestLocalPresence(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPresence()

	n, _ := p.Join(ctx, "r1", "user-k")
	assert.Equal(t, int64(1), n)
	n, _ = p.Join(ctx, "r1", "user-k")
	assert.Equal(t, int64(2), n)
	_, _ = p.Join(ctx, "r1", "user-l")

	online, _ := p.Online(ctx, "r1")
	assert.ElementsMatch(t, []string{"user-k", "user-l"}, online)

	n, _ = p.Leave(ctx, "r1", "user-k")
	assert.Equal(t, int64(1), n)
	n, _ = p.Leave(ctx, "r1", "user-k")
	assert.Zero(t, n)
	n, _ = p.Leave(ctx, "r9", "user-k")
	assert.Zero(t, n)

	online, _ = p.Online(ctx, "r1")
	assert.Equal(t, []string{"user-l"}, online)
}
