package eventbus

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/judgeboard/platform/pkg/messaging"
)

// subjects the bridge relays from NATS onto hub rooms. serve and worker
// run as separate processes in production; worker publishes verdicts and
// leaderboard recomputes onto NATS, and every serve replica's Bridge
// relays them to its own locally-connected websockets.
var subjects = []string{
	messaging.EventTypeSubmissionQueued,
	messaging.EventTypeSubmissionJudging,
	messaging.EventTypeSubmissionVerdict,
	messaging.EventTypeLeaderboardUpdate,
	messaging.EventTypeLeaderboardFreeze,
	messaging.EventTypeLeaderboardThaw,
	messaging.EventTypeContestPhase,
}

// Bridge subscribes to the NATS subjects carrying judging and leaderboard
// events and republishes each one to the hub room its metadata names. A
// single-process deployment can skip the bridge entirely and have the
// worker call Hub.Broadcast directly, but wiring it unconditionally keeps
// serve and worker interchangeable.
type Bridge struct {
	hub    *Hub
	msg    *messaging.Client
	logger *zap.Logger
}

// NewBridge constructs a Bridge. Call Start to subscribe.
func NewBridge(hub *Hub, msg *messaging.Client, logger *zap.Logger) *Bridge {
	return &Bridge{hub: hub, msg: msg, logger: logger}
}

// Start subscribes to every relayed subject. It is not safe to call twice.
func (b *Bridge) Start() error {
	for _, subject := range subjects {
		subject := subject
		if err := b.msg.Subscribe(subject, b.relay); err != nil {
			return err
		}
	}
	return nil
}

// relay reads the Event envelope's Metadata — every subject the bridge
// relays is published through messaging.Client.Publish, which wraps it —
// to decide which rooms get a copy without depending on each event
// type's own shape.
func (b *Bridge) relay(msg *nats.Msg) {
	var envelope messaging.Event
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		b.logger.Warn("eventbus: dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	contestID, _ := uuid.Parse(envelope.Metadata.ContestID)
	teamID, _ := uuid.Parse(envelope.Metadata.TeamID)

	if contestID == uuid.Nil {
		b.hub.Broadcast(RoomAdmins, msg.Data)
		return
	}

	b.hub.Broadcast(RoomContest(contestID), msg.Data)

	if msg.Subject == messaging.EventTypeSubmissionVerdict && teamID != uuid.Nil {
		b.hub.Broadcast(RoomTeam(teamID), msg.Data)
	}
}
