// Package hub fans persisted chat messages out to every connection joined to
// a conversation's group, across all server processes. Publishes travel
// through one Redis channel and come back via the subscription, including to
// members on the publishing process, so every member observes the same order
// and the sender receives the authoritative persisted copy rather than an
// echo of its draft.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// GroupName derives the broadcast group for a conversation. Any process can
// recompute it from the conversation id alone.
func GroupName(conversationID string) string {
	return "chat_" + conversationID
}

// Event is the payload delivered to every member of a group.
type Event struct {
	Group       string `json:"group"`
	Message     string `json:"message"`
	SenderID    string `json:"sender_id"`
	SenderEmail string `json:"sender_email"`
	MessageID   string `json:"message_id"`
	CreatedAt   string `json:"created_at"`
}

// Member receives events for groups it has joined. Deliver must not block;
// it reports false when the member can no longer accept events, after which
// the hub drops it from the group.
type Member interface {
	Deliver(Event) bool
}

type Hub struct {
	rdb     *redis.Client
	channel string
	log     *zap.SugaredLogger

	mu     sync.RWMutex
	groups map[string]map[Member]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	pubsub *redis.PubSub
	done   chan struct{}
}

// New subscribes to the shared broadcast channel and starts routing. It does
// not return until the subscription is confirmed, so a Publish issued after
// New reaches local members.
func New(rdb *redis.Client, channel string, log *zap.SugaredLogger) (*Hub, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	h := &Hub{
		rdb:     rdb,
		channel: channel,
		log:     log,
		groups:  make(map[string]map[Member]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		pubsub:  pubsub,
		done:    make(chan struct{}),
	}
	go h.route()
	return h, nil
}

// Join adds m to a group. Membership is effective when Join returns.
func (h *Hub) Join(group string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[Member]struct{})
	}
	h.groups[group][m] = struct{}{}
}

// Leave removes m from a group. Leaving a group m never joined is a no-op.
func (h *Hub) Leave(group string, m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, m)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// Publish sends ev to every member of group on every process. Delivery is
// at-most-once per member; retrying on a member's dead transport is the
// transport's problem, not the hub's.
func (h *Hub) Publish(ctx context.Context, group string, ev Event) error {
	ev.Group = group
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.rdb.Publish(ctx, h.channel, b).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (h *Hub) route() {
	defer close(h.done)
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.Warnw("dropping undecodable broadcast", "err", err)
				continue
			}
			h.dispatch(ev)
		}
	}
}

func (h *Hub) dispatch(ev Event) {
	h.mu.RLock()
	members := make([]Member, 0, len(h.groups[ev.Group]))
	for m := range h.groups[ev.Group] {
		members = append(members, m)
	}
	h.mu.RUnlock()

	for _, m := range members {
		if !m.Deliver(ev) {
			h.Leave(ev.Group, m)
		}
	}
}

// Shutdown stops routing and closes the subscription.
func (h *Hub) Shutdown() {
	h.cancel()
	_ = h.pubsub.Close()
	<-h.done
}
