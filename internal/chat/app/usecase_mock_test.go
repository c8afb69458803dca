package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/pkg/logger"

	"github.com/stretchr/testify/mock"
)

// Eventually 的等待參數
const (
	timeoutShort = 2 * time.Second
	tick         = 5 * time.Millisecond
)

func init() {
	logger.SetNewNop()
}

// memRoomRepository in-memory RoomRepository
type memRoomRepository struct {
	mu    sync.Mutex
	rooms map[string]*domain.ChatRoom
}

func newMemRoomRepository() *memRoomRepository {
	return &memRoomRepository{rooms: map[string]*domain.ChatRoom{}}
}

func (r *memRoomRepository) EnsureIndexes(context.Context) error { return nil }

func (r *memRoomRepository) CreateRoom(_ context.Context, room *domain.ChatRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rooms {
		if existing.CaseID == room.CaseID {
			return fmt.Errorf("case %s: %w", room.CaseID, domain.ErrAlreadyExists)
		}
	}
	cp := *room
	r.rooms[room.ID] = &cp
	return nil
}

func (r *memRoomRepository) FindByID(_ context.Context, roomID string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	cp := *room
	return &cp, nil
}

func (r *memRoomRepository) FindByCase(_ context.Context, caseID string) (*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.CaseID == caseID {
			cp := *room
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("case %s: %w", caseID, domain.ErrNotFound)
}

func (r *memRoomRepository) matches(room *domain.ChatRoom, role domain.Role, profileID string) bool {
	switch role {
	case domain.RoleClient:
		return room.ClientID == profileID
	case domain.RoleLawyer:
		return room.LawyerID == profileID
	}
	return false
}

func (r *memRoomRepository) ListByParticipant(_ context.Context, role domain.Role, profileID string, activeOnly bool) ([]*domain.ChatRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.ChatRoom{}
	for _, room := range r.rooms {
		if !r.matches(room, role, profileID) || (activeOnly && !room.IsActive) {
			continue
		}
		cp := *room
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

func (r *memRoomRepository) CountByParticipant(_ context.Context, role domain.Role, profileID string) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total, active int64
	for _, room := range r.rooms {
		if !r.matches(room, role, profileID) {
			continue
		}
		total++
		if room.IsActive {
			active++
		}
	}
	return total, active, nil
}

func (r *memRoomRepository) TouchActivity(_ context.Context, roomID string, at int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok && at > room.UpdatedAt {
		room.UpdatedAt = at
	}
	return nil
}

func (r *memRoomRepository) SetActive(_ context.Context, roomID string, active bool, at int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrNotFound
	}
	room.IsActive = active
	if at > room.UpdatedAt {
		room.UpdatedAt = at
	}
	return nil
}

// memMessageRepository in-memory MessageRepository
type memMessageRepository struct {
	mu   sync.Mutex
	msgs map[string]*domain.Message
}

func newMemMessageRepository() *memMessageRepository {
	return &memMessageRepository{msgs: map[string]*domain.Message{}}
}

func (r *memMessageRepository) EnsureIndexes(context.Context) error { return nil }

func (r *memMessageRepository) Insert(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.msgs[msg.ID] = &cp
	return nil
}

func (r *memMessageRepository) FindByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (r *memMessageRepository) ListByRoom(_ context.Context, roomID string, includeDeleted bool) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Message{}
	for _, m := range r.msgs {
		if m.RoomID != roomID || (m.IsDeleted && !includeDeleted) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (r *memMessageRepository) LastCreatedAt(_ context.Context, roomID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last int64
	for _, m := range r.msgs {
		if m.RoomID == roomID && m.CreatedAt > last {
			last = m.CreatedAt
		}
	}
	return last, nil
}

func (r *memMessageRepository) ListUnreadFor(_ context.Context, roomID, readerID string) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Message{}
	for _, m := range r.msgs {
		if m.RoomID == roomID && m.SenderID != readerID && !m.IsRead && !m.IsDeleted {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (r *memMessageRepository) MarkRead(_ context.Context, id string, at int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if m.IsRead {
		return false, nil
	}
	m.IsRead = true
	m.ReadAt = at
	return true, nil
}

func (r *memMessageRepository) CountSentBy(_ context.Context, senderID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.msgs {
		if m.SenderID == senderID {
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepository) CountUnreadFor(_ context.Context, roomIDs []string, readerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := map[string]bool{}
	for _, id := range roomIDs {
		in[id] = true
	}
	var n int64
	for _, m := range r.msgs {
		if in[m.RoomID] && m.SenderID != readerID && m.Type != domain.MessageSystem && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *memMessageRepository) get(id string) domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.msgs[id]
}

// memReadStatusRepository in-memory ReadStatusRepository
type memReadStatusRepository struct {
	mu       sync.Mutex
	receipts map[string]*domain.MessageReadStatus
}

func newMemReadStatusRepository() *memReadStatusRepository {
	return &memReadStatusRepository{receipts: map[string]*domain.MessageReadStatus{}}
}

func (r *memReadStatusRepository) EnsureIndexes(context.Context) error { return nil }

func (r *memReadStatusRepository) Insert(_ context.Context, s *domain.MessageReadStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := s.MessageID + "|" + s.ReaderID
	if _, ok := r.receipts[key]; ok {
		return false, nil
	}
	cp := *s
	r.receipts[key] = &cp
	return true, nil
}

func (r *memReadStatusRepository) Exists(_ context.Context, messageID, readerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.receipts[messageID+"|"+readerID]
	return ok, nil
}

func (r *memReadStatusRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receipts)
}

// memNotificationRepository in-memory NotificationRepository
type memNotificationRepository struct {
	mu    sync.Mutex
	items []*domain.ChatNotification
}

func newMemNotificationRepository() *memNotificationRepository {
	return &memNotificationRepository{}
}

func (r *memNotificationRepository) EnsureIndexes(context.Context) error { return nil }

func (r *memNotificationRepository) Insert(_ context.Context, n *domain.ChatNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.items = append(r.items, &cp)
	return nil
}

func (r *memNotificationRepository) FindByID(_ context.Context, id string) (*domain.ChatNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.items {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
}

func (r *memNotificationRepository) ListByRecipient(_ context.Context, recipientID string, limit int64) ([]*domain.ChatNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.ChatNotification{}
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].RecipientID != recipientID {
			continue
		}
		cp := *r.items[i]
		out = append(out, &cp)
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (r *memNotificationRepository) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.items {
		if n.ID == id {
			n.IsRead = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memNotificationRepository) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, item := range r.items {
		if item.RecipientID == recipientID && !item.IsRead {
			item.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepository) CountUnread(_ context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, item := range r.items {
		if item.RecipientID == recipientID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepository) byType(recipientID string, t domain.NotificationType) []domain.ChatNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.ChatNotification{}
	for _, n := range r.items {
		if n.RecipientID == recipientID && n.Type == t {
			out = append(out, *n)
		}
	}
	return out
}

// memDirectory in-memory DirectoryRepository
type memDirectory struct {
	mu           sync.Mutex
	profiles     map[string]string
	participants map[string]*domain.Participant
	cases        map[string]*domain.CaseRef
	emails       map[string]string
	failWith     error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		profiles:     map[string]string{},
		participants: map[string]*domain.Participant{},
		cases:        map[string]*domain.CaseRef{},
		emails:       map[string]string{},
	}
}

func (d *memDirectory) addParticipant(role domain.Role, p domain.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[string(role)+":"+p.UserID] = p.ProfileID
	d.participants[string(role)+":"+p.ProfileID] = &p
	if p.Email != "" {
		d.emails[p.UserID] = p.Email
	}
}

func (d *memDirectory) addCase(c domain.CaseRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cases[c.CaseID] = &c
}

func (d *memDirectory) FindProfileID(_ context.Context, userID string, role domain.Role) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return "", d.failWith
	}
	id, ok := d.profiles[string(role)+":"+userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

func (d *memDirectory) FindParticipant(_ context.Context, role domain.Role, profileID string) (*domain.Participant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.participants[string(role)+":"+profileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *memDirectory) FindCase(_ context.Context, caseID string) (*domain.CaseRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cases[caseID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (d *memDirectory) FindEmail(_ context.Context, userID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.emails[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return e, nil
}

// recordingSubscriber collects every delivered frame
type recordingSubscriber struct {
	id     string
	userID string

	mu     sync.Mutex
	frames []domain.OutboundFrame
}

func newRecordingSubscriber(id, userID string) *recordingSubscriber {
	return &recordingSubscriber{id: id, userID: userID}
}

func (s *recordingSubscriber) ID() string     { return s.id }
func (s *recordingSubscriber) UserID() string { return s.userID }

func (s *recordingSubscriber) Deliver(f domain.OutboundFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return true
}

func (s *recordingSubscriber) Frames() []domain.OutboundFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboundFrame(nil), s.frames...)
}

func (s *recordingSubscriber) OfType(t domain.FrameType) []domain.OutboundFrame {
	out := []domain.OutboundFrame{}
	for _, f := range s.Frames() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

// MockNotifier mock Notifier
type MockNotifier struct {
	mock.Mock
}

// Notify mock notify
func (m *MockNotifier) Notify(ctx context.Context, req domain.NotifyRequest) (*domain.ChatNotification, error) {
	args := m.Called(ctx, req)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatNotification), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRoomOpener mock RoomOpener
type MockRoomOpener struct {
	mock.Mock
}

// CreateRoom mock create room
func (m *MockRoomOpener) CreateRoom(ctx context.Context, ref domain.CaseRef) (*domain.ChatRoom, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatRoom), args.Error(1)
	}
	return nil, args.Error(1)
}

// GetRoomByCase mock get room by case
func (m *MockRoomOpener) GetRoomByCase(ctx context.Context, caseID string) (*domain.ChatRoom, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ChatRoom), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockFailureRepository mock FailureRepository
type MockFailureRepository struct {
	mock.Mock
}

// AutoMigrate mock migrate
func (m *MockFailureRepository) AutoMigrate() error {
	return m.Called().Error(0)
}

// Record mock record
func (m *MockFailureRepository) Record(ctx context.Context, ev domain.CaseEvent, cause error) error {
	return m.Called(ctx, ev, cause).Error(0)
}

// ListPending mock list pending
func (m *MockFailureRepository) ListPending(ctx context.Context, maxAttempts, limit int) ([]domain.CaseEventFailure, error) {
	args := m.Called(ctx, maxAttempts, limit)
	return args.Get(0).([]domain.CaseEventFailure), args.Error(1)
}

// MarkResolved mock resolve
func (m *MockFailureRepository) MarkResolved(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

// MarkFailed mock failed
func (m *MockFailureRepository) MarkFailed(ctx context.Context, id uint, cause error) error {
	return m.Called(ctx, id, cause).Error(0)
}

// MockEmailSender mock EmailSender
type MockEmailSender struct {
	mock.Mock
}

// Send mock send
func (m *MockEmailSender) Send(ctx context.Context, toEmail, subject, body string) error {
	return m.Called(ctx, toEmail, subject, body).Error(0)
}

// memDeduper in-memory EventDeduper
type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemDeduper() *memDeduper {
	return &memDeduper{seen: map[string]bool{}}
}

func (d *memDeduper) FirstSeen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func (d *memDeduper) Forget(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}

// chatFixture 一組接好的 use case, client Kim (user-k) and lawyer Lee (user-l) on case C-001
type chatFixture struct {
	dir       *memDirectory
	rooms     *memRoomRepository
	msgs      *memMessageRepository
	reads     *memReadStatusRepository
	notifs    *memNotificationRepository
	hub       *Hub
	guard     *AccessGuard
	notifUC   *NotificationUseCase
	roomUC    *RoomUseCase
	messageUC *MessageUseCase
	statsUC   *StatsUseCase
}

var (
	clientIdentity = domain.Identity{ID: "user-k", Role: domain.RoleClient}
	lawyerIdentity = domain.Identity{ID: "user-l", Role: domain.RoleLawyer}
	otherLawyer    = domain.Identity{ID: "user-x", Role: domain.RoleLawyer}
	adminIdentity  = domain.Identity{ID: "user-a", Role: domain.RoleAdmin}

	testCase = domain.CaseRef{
		CaseID:     "case-1",
		CaseNumber: "C-001",
		ClientID:   "client-1",
		LawyerID:   "lawyer-1",
		Status:     string(domain.CaseAssigned),
	}
)

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	f := &chatFixture{
		dir:    newMemDirectory(),
		rooms:  newMemRoomRepository(),
		msgs:   newMemMessageRepository(),
		reads:  newMemReadStatusRepository(),
		notifs: newMemNotificationRepository(),
		hub:    NewHub(nil),
	}
	f.dir.addParticipant(domain.RoleClient, domain.Participant{ProfileID: "client-1", UserID: "user-k", Name: "Kim", Email: "kim@example.com"})
	f.dir.addParticipant(domain.RoleLawyer, domain.Participant{ProfileID: "lawyer-1", UserID: "user-l", Name: "Lee", Email: "lee@example.com"})
	f.dir.addParticipant(domain.RoleLawyer, domain.Participant{ProfileID: "lawyer-9", UserID: "user-x", Name: "Xu"})
	f.dir.addCase(testCase)

	f.guard = NewAccessGuard(f.dir)
	f.notifUC = NewNotificationUseCase(f.notifs, f.hub, nil)
	f.roomUC = NewRoomUseCase(f.rooms, f.dir, f.guard, f.notifUC)
	f.messageUC = NewMessageUseCase(f.rooms, f.msgs, f.reads, f.guard, f.notifUC, f.hub)
	f.statsUC = NewStatsUseCase(f.rooms, f.msgs, f.notifs, f.guard)
	return f
}

// openRoom create the room of testCase
func (f *chatFixture) openRoom(t *testing.T) *domain.ChatRoom {
	t.Helper()
	room, err := f.roomUC.CreateRoom(context.Background(), testCase)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}
