package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fasthttp/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/dev-anas-tahir/Property-Hub/internal/apperrors"
	"github.com/dev-anas-tahir/Property-Hub/internal/auth"
	"github.com/dev-anas-tahir/Property-Hub/internal/events"
	"github.com/dev-anas-tahir/Property-Hub/internal/hub"
	"github.com/dev-anas-tahir/Property-Hub/internal/models"
	"github.com/dev-anas-tahir/Property-Hub/internal/ratelimit"
	"github.com/dev-anas-tahir/Property-Hub/internal/sanitize"
)

// transport is the slice of a websocket connection the session drives.
// *websocket.Conn (and the gofiber wrapper embedding it) satisfies it.
type transport interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	Close() error
}

// Store is the persistence gateway surface the session consumes.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateMessage(ctx context.Context, conversationID primitive.ObjectID, sender models.Participant, content string) (*models.Message, error)
}

// RateLimiter decides whether an identity may send another message.
type RateLimiter interface {
	Allow(ctx context.Context, identity string) (ratelimit.Decision, error)
}

// Broadcaster is the group fan-out the session joins for its conversation.
type Broadcaster interface {
	Join(group string, m hub.Member)
	Leave(group string, m hub.Member)
	Publish(ctx context.Context, group string, ev hub.Event) error
}

// EventSink receives message.sent events after persist+broadcast. May be nil.
type EventSink interface {
	MessageSent(ctx context.Context, ev events.MessageSent) error
}

// Options bound the session's resource use. Zero values pick the defaults
// the service ships with.
type Options struct {
	MaxMessageLength int
	SendBufferSize   int
	ReadLimitBytes   int
	PingInterval     time.Duration
}

func (o *Options) fill() {
	if o.MaxMessageLength == 0 {
		o.MaxMessageLength = 5000
	}
	if o.SendBufferSize == 0 {
		o.SendBufferSize = 256
	}
	if o.ReadLimitBytes == 0 {
		o.ReadLimitBytes = 64 * 1024
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
}

// Session owns one socket: it runs the handshake, dispatches inbound frames,
// and forwards group events back out. Post-handshake failures never close
// the socket; they surface as in-band error frames so the client can retry
// one message without reconnecting.
type Session struct {
	conn           transport
	identity       auth.Identity
	conversationID string

	store       Store
	limiter     RateLimiter
	broadcaster Broadcaster
	events      EventSink
	log         *zap.SugaredLogger
	opts        Options

	conversation *models.Conversation
	group        string
	joined       bool

	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewSession(conn transport, identity auth.Identity, conversationID string, store Store, limiter RateLimiter, broadcaster Broadcaster, sink EventSink, log *zap.SugaredLogger, opts Options) *Session {
	opts.fill()
	return &Session{
		conn:           conn,
		identity:       identity,
		conversationID: conversationID,
		store:          store,
		limiter:        limiter,
		broadcaster:    broadcaster,
		events:         sink,
		log:            log,
		opts:           opts,
		send:           make(chan []byte, opts.SendBufferSize),
		done:           make(chan struct{}),
	}
}

// Run performs the handshake and then blocks reading frames until the
// socket closes. Group departure is the one mandatory cleanup and runs on
// every exit path, abnormal ones included.
func (s *Session) Run() {
	defer s.teardown()

	ctx := context.Background()
	conversation, err := s.store.GetConversation(ctx, s.conversationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.closeWithCode(CloseConversationNotFound, "conversation not found")
			return
		}
		// A flaky store is not a missing conversation; the client may retry.
		s.log.Errorw("load conversation", "err", err, "conversation", s.conversationID)
		s.closeWithCode(websocket.CloseInternalServerErr, "internal error")
		return
	}
	if !conversation.HasParticipant(s.identity.ID) {
		s.closeWithCode(CloseForbidden, "not a conversation participant")
		return
	}

	// Cached for the lifetime of the socket; every send reuses it instead
	// of re-fetching the conversation.
	s.conversation = conversation
	s.group = hub.GroupName(s.conversationID)
	s.broadcaster.Join(s.group, s)
	s.joined = true

	// Unread history is delivered by the conversation page load, not here;
	// pushing it again on connect would duplicate delivery.

	go s.writePump()
	s.readLoop()
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(int64(s.opts.ReadLimitBytes))
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame routes one inbound frame. Nothing a handler does may kill the
// session: panics are converted into a generic error frame and the loop
// keeps reading.
func (s *Session) handleFrame(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("panic handling frame", "panic", r, "user", s.identity.ID)
			s.sendError("An error occurred while processing your message")
		}
	}()

	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError("Invalid message format")
		return
	}

	switch frame.Type {
	case TypePing:
		s.enqueue(pongFrame{Type: TypePong})
	case "", TypeChatMessage:
		s.handleChatMessage(frame.Message)
	default:
		s.sendError(fmt.Sprintf("Unknown message type: %s", frame.Type))
	}
}

// handleChatMessage runs the send pipeline in a fixed order: validate,
// rate-limit, sanitize, persist, broadcast. Each failure short-circuits with
// one frame to the sender and leaves no state behind, except that a rate-limit
// pass followed by a persistence failure still costs quota (deliberate: a
// failing backend must not invite retry storms).
func (s *Session) handleChatMessage(raw string) {
	ctx := context.Background()

	content := strings.TrimSpace(raw)
	if content == "" {
		s.sendError("Message content cannot be empty")
		return
	}
	if utf8.RuneCountInString(content) > s.opts.MaxMessageLength {
		s.sendError(fmt.Sprintf("Message exceeds maximum length of %d characters", s.opts.MaxMessageLength))
		return
	}

	decision, err := s.limiter.Allow(ctx, s.identity.ID)
	if err != nil {
		s.log.Errorw("rate limiter unavailable", "err", err, "user", s.identity.ID)
		s.sendError("An error occurred while processing your message")
		return
	}
	if !decision.Allowed {
		s.enqueue(rateLimitFrame{
			Type:            TypeRateLimitError,
			Message:         fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before sending another message.", decision.CooldownSeconds),
			CooldownSeconds: decision.CooldownSeconds,
			StatusCode:      429,
		})
		return
	}

	content = sanitize.Clean(content)

	recipient, ok := s.conversation.OtherParticipant(s.identity.ID)
	if !ok || recipient.ID == s.identity.ID {
		s.sendError("Cannot send messages to yourself")
		return
	}

	sender := models.Participant{ID: s.identity.ID, Email: s.identity.Email}
	msg, err := s.store.CreateMessage(ctx, s.conversation.ID, sender, content)
	if err != nil {
		s.log.Errorw("persist message failed", "err", err, "conversation", s.conversationID)
		s.sendError("Failed to save message")
		return
	}

	ev := hub.Event{
		Message:     content,
		SenderID:    sender.ID,
		SenderEmail: sender.Email,
		MessageID:   msg.ID.Hex(),
		CreatedAt:   msg.CreatedAt.Format(time.RFC3339),
	}
	if err := s.broadcaster.Publish(ctx, s.group, ev); err != nil {
		// The message is saved; the page-load path will still show it.
		s.log.Errorw("broadcast failed", "err", err, "conversation", s.conversationID)
		s.sendError("Failed to deliver message")
		return
	}

	if s.events != nil {
		sent := events.MessageSent{
			MessageID:      msg.ID.Hex(),
			ConversationID: s.conversationID,
			ListingID:      s.conversation.ListingID,
			SenderID:       sender.ID,
			RecipientID:    recipient.ID,
			CreatedAt:      msg.CreatedAt,
		}
		if err := s.events.MessageSent(ctx, sent); err != nil {
			s.log.Warnw("message.sent event not published", "err", err, "message", sent.MessageID)
		}
	}
}

// Deliver implements hub.Member: group events become message frames on this
// socket. The sender is an ordinary group member, so its own messages come
// back through here with the server-assigned id and timestamp.
func (s *Session) Deliver(ev hub.Event) bool {
	return s.enqueue(messageFrame{
		Type:        TypeMessage,
		Message:     ev.Message,
		SenderID:    ev.SenderID,
		SenderEmail: ev.SenderEmail,
		MessageID:   ev.MessageID,
		CreatedAt:   ev.CreatedAt,
	})
}

func (s *Session) sendError(msg string) {
	s.enqueue(errorFrame{Type: TypeError, Message: msg})
}

// enqueue hands a frame to the write pump without blocking. False means the
// session is gone or the client cannot keep up; the hub drops it then.
func (s *Session) enqueue(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Errorw("marshal outbound frame", "err", err)
		return true
	}
	select {
	case <-s.done:
		return false
	case s.send <- b:
		return true
	default:
		return false
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case b := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) closeWithCode(code int, reason string) {
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func (s *Session) teardown() {
	s.once.Do(func() {
		if s.joined {
			s.broadcaster.Leave(s.group, s)
		}
		close(s.done)
		_ = s.conn.Close()
	})
}
