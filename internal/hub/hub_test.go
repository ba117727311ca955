package hub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingMember struct {
	events chan Event
	full   bool
}

func newRecordingMember() *recordingMember {
	return &recordingMember{events: make(chan Event, 16)}
}

func (m *recordingMember) Deliver(ev Event) bool {
	if m.full {
		return false
	}
	m.events <- ev
	return true
}

func (m *recordingMember) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-m.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h, err := New(rdb, "chat.broadcast", zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(h.Shutdown)
	return h
}

func TestGroupName(t *testing.T) {
	require.Equal(t, "chat_abc123", GroupName("abc123"))
}

func TestHub_PublishReachesAllMembersIncludingSender(t *testing.T) {
	h := newTestHub(t)
	sender := newRecordingMember()
	other := newRecordingMember()
	h.Join(GroupName("c1"), sender)
	h.Join(GroupName("c1"), other)

	ev := Event{Message: "hello", SenderID: "u1", SenderEmail: "u1@example.com", MessageID: "m1"}
	require.NoError(t, h.Publish(context.Background(), GroupName("c1"), ev))

	for _, m := range []*recordingMember{sender, other} {
		got := m.next(t)
		require.Equal(t, "hello", got.Message)
		require.Equal(t, "u1", got.SenderID)
		require.Equal(t, GroupName("c1"), got.Group)
	}
}

func TestHub_GroupsAreIsolated(t *testing.T) {
	h := newTestHub(t)
	inGroup := newRecordingMember()
	elsewhere := newRecordingMember()
	h.Join(GroupName("c1"), inGroup)
	h.Join(GroupName("c2"), elsewhere)

	require.NoError(t, h.Publish(context.Background(), GroupName("c1"), Event{Message: "hi"}))

	inGroup.next(t)
	select {
	case ev := <-elsewhere.events:
		t.Fatalf("member of another group received %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	h := newTestHub(t)
	m := newRecordingMember()
	h.Join(GroupName("c1"), m)
	h.Leave(GroupName("c1"), m)

	require.NoError(t, h.Publish(context.Background(), GroupName("c1"), Event{Message: "hi"}))

	select {
	case ev := <-m.events:
		t.Fatalf("departed member received %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_LeaveWithoutJoinIsNoop(t *testing.T) {
	h := newTestHub(t)
	h.Leave(GroupName("never-joined"), newRecordingMember())
}

func TestHub_UndeliverableMemberIsDropped(t *testing.T) {
	h := newTestHub(t)
	stuck := newRecordingMember()
	stuck.full = true
	healthy := newRecordingMember()
	h.Join(GroupName("c1"), stuck)
	h.Join(GroupName("c1"), healthy)

	require.NoError(t, h.Publish(context.Background(), GroupName("c1"), Event{Message: "one"}))
	healthy.next(t)

	// The stuck member was dropped on the first publish and stays gone.
	require.NoError(t, h.Publish(context.Background(), GroupName("c1"), Event{Message: "two"}))
	got := healthy.next(t)
	require.Equal(t, "two", got.Message)

	h.mu.RLock()
	_, stillMember := h.groups[GroupName("c1")][Member(stuck)]
	h.mu.RUnlock()
	require.False(t, stillMember)
}
