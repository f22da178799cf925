package eventbus

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/judgeboard/platform/internal/logging"
)

func newTestHub(t *testing.T) (*Hub, chan struct{}) {
	t.Helper()
	h := NewHub(logging.Nop())
	stop := make(chan struct{})
	go h.Run(stop)
	return h, stop
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for client count %d, got %d", want, h.ClientCount())
}

func TestBroadcastOnlyReachesRoomMembers(t *testing.T) {
	h, stop := newTestHub(t)
	defer close(stop)

	contestID := uuid.New()
	teamID := uuid.New()
	otherTeamID := uuid.New()

	inRoom := &Client{ID: uuid.New(), TeamID: teamID, Send: make(chan []byte, 1), Done: make(chan struct{}), rooms: []string{RoomContest(contestID), RoomTeam(teamID)}}
	outOfRoom := &Client{ID: uuid.New(), TeamID: otherTeamID, Send: make(chan []byte, 1), Done: make(chan struct{}), rooms: []string{RoomTeam(otherTeamID)}}

	h.register <- inRoom
	h.register <- outOfRoom
	waitForCount(t, h, 2)

	h.Broadcast(RoomContest(contestID), []byte("standings"))

	select {
	case msg := <-inRoom.Send:
		if string(msg) != "standings" {
			t.Fatalf("unexpected payload %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected room member to receive broadcast")
	}

	select {
	case msg := <-outOfRoom.Send:
		t.Fatalf("client outside room received broadcast: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterRemovesClientFromAllRooms(t *testing.T) {
	h, stop := newTestHub(t)
	defer close(stop)

	contestID := uuid.New()
	c := &Client{ID: uuid.New(), Send: make(chan []byte, 1), Done: make(chan struct{}), rooms: []string{RoomContest(contestID), RoomAdmins}}

	h.register <- c
	waitForCount(t, h, 1)

	h.unregister <- c
	waitForCount(t, h, 0)

	h.mu.RLock()
	_, hasContestRoom := h.rooms[RoomContest(contestID)]
	_, hasAdminRoom := h.rooms[RoomAdmins]
	h.mu.RUnlock()

	if hasContestRoom || hasAdminRoom {
		t.Fatal("expected empty rooms to be cleaned up after unregister")
	}
}
