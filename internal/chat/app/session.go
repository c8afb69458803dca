package app

import (
	"encoding/json"
	"sync"
	"time"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// frameConn subset of *websocket.Conn used by a session
type frameConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
}

// session 單一連線, one writer goroutine owns all writes to the socket
type session struct {
	id       string
	identity domain.Identity
	username string

	conn      frameConn
	send      chan domain.OutboundFrame
	done      chan struct{}
	closeOnce sync.Once

	pingInterval time.Duration
	writeWait    time.Duration
}

func newSession(conn frameConn, identity domain.Identity, buffer int, pingInterval, writeWait time.Duration) *session {
	if buffer <= 0 {
		buffer = 1
	}
	return &session{
		id:           uuid.NewString(),
		identity:     identity,
		conn:         conn,
		send:         make(chan domain.OutboundFrame, buffer),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		writeWait:    writeWait,
	}
}

func (s *session) ID() string {
	return s.id
}

func (s *session) UserID() string {
	return s.identity.ID
}

// Deliver 非阻塞投遞, a full buffer or a closed session drops the frame
func (s *session) Deliver(frame domain.OutboundFrame) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- frame:
		return true
	case <-s.done:
		return false
	default:
		logger.Log.Warn("session send buffer full, frame dropped",
			zap.String("session", s.id),
			zap.String("userID", s.identity.ID),
			zap.String("type", string(frame.Type)),
		)
		return false
	}
}

// close stop the writer, safe to call more than once
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// writeLoop 負責所有寫入與定期 ping, returns when the session closes or a write fails
func (s *session) writeLoop() {
	var tick <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame := <-s.send:
			data, err := json.Marshal(frame)
			if err != nil {
				logger.Log.Errorf("marshal frame failed", err, zap.String("session", s.id))
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Log.Debug("websocket write failed", zap.String("session", s.id), zap.Error(err))
				s.close()
				return
			}
		case <-tick:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.writeWait)); err != nil {
				logger.Log.Debug("ping failed", zap.String("session", s.id), zap.Error(err))
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}
