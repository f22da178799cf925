package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event subject names used across the NATS backplane between serve and
// worker processes, and as room-routing hints in the event bus.
const (
	EventTypeSubmissionQueued   = "submission.queued"
	EventTypeSubmissionJudging  = "submission.judging"
	EventTypeSubmissionVerdict  = "submission.verdict"
	EventTypeSubmissionRejudge  = "submission.rejudge"

	EventTypeLeaderboardUpdate = "leaderboard.update"
	EventTypeLeaderboardFreeze = "leaderboard.freeze"
	EventTypeLeaderboardThaw   = "leaderboard.thaw"

	EventTypeContestPhase = "contest.phase"

	EventTypeQueueHeartbeat = "queue.heartbeat"
)

// Event is the base envelope published to NATS and relayed over the event
// bus's room-based websocket fan-out.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Data        json.RawMessage `json:"data"`
	Metadata    EventMetadata   `json:"metadata"`
}

// EventMetadata carries routing and tracing context alongside an event.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id"`
	ContestID     string `json:"contest_id,omitempty"`
	TeamID        string `json:"team_id,omitempty"`
	Source        string `json:"source"`
}

// SubmissionEvent contains submission lifecycle data.
type SubmissionEvent struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	ContestID    uuid.UUID `json:"contest_id"`
	TeamID       uuid.UUID `json:"team_id"`
	ProblemID    uuid.UUID `json:"problem_id"`
	Language     string    `json:"language"`
	Status       string    `json:"status"`
	Verdict      string    `json:"verdict,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// VerdictEvent contains a finalized judging result.
type VerdictEvent struct {
	SubmissionID  uuid.UUID `json:"submission_id"`
	ContestID     uuid.UUID `json:"contest_id"`
	TeamID        uuid.UUID `json:"team_id"`
	ProblemID     uuid.UUID `json:"problem_id"`
	Verdict       string    `json:"verdict"`
	PointsEarned  string    `json:"points_earned,omitempty"`
	PenaltyAdded  string    `json:"penalty_added,omitempty"`
	TestsPassed   int       `json:"tests_passed"`
	TestsTotal    int       `json:"tests_total"`
	JudgedAt      time.Time `json:"judged_at"`
}

// LeaderboardEvent contains a recomputed standing, or a freeze/thaw
// notice with no rows attached.
type LeaderboardEvent struct {
	ContestID uuid.UUID        `json:"contest_id"`
	Frozen    bool             `json:"frozen"`
	Standings []StandingsEntry `json:"standings,omitempty"`
}

// StandingsEntry is one team's row on the leaderboard.
type StandingsEntry struct {
	TeamID       uuid.UUID `json:"team_id"`
	Rank         int       `json:"rank"`
	Solved       int       `json:"solved"`
	PenaltyOrPts string    `json:"penalty_or_points"`
}

// ContestPhaseEvent announces a lifecycle transition.
type ContestPhaseEvent struct {
	ContestID uuid.UUID `json:"contest_id"`
	Phase     string    `json:"phase"`
	At        time.Time `json:"at"`
}

// Routable lets Client.Publish wrap a domain event in the Event envelope
// without every publisher constructing the envelope by hand: it derives
// the aggregate ID and routing metadata straight from the event's own
// fields.
type Routable interface {
	AggregateID() uuid.UUID
	Routing() EventMetadata
}

func (e SubmissionEvent) AggregateID() uuid.UUID { return e.SubmissionID }
func (e SubmissionEvent) Routing() EventMetadata {
	return EventMetadata{ContestID: e.ContestID.String(), TeamID: e.TeamID.String()}
}

func (e VerdictEvent) AggregateID() uuid.UUID { return e.SubmissionID }
func (e VerdictEvent) Routing() EventMetadata {
	return EventMetadata{ContestID: e.ContestID.String(), TeamID: e.TeamID.String()}
}

func (e LeaderboardEvent) AggregateID() uuid.UUID { return e.ContestID }
func (e LeaderboardEvent) Routing() EventMetadata {
	return EventMetadata{ContestID: e.ContestID.String()}
}

func (e ContestPhaseEvent) AggregateID() uuid.UUID { return e.ContestID }
func (e ContestPhaseEvent) Routing() EventMetadata {
	return EventMetadata{ContestID: e.ContestID.String()}
}

// NewEvent creates a new Event, marshaling data into its Data field.
func NewEvent(eventType string, aggregateID uuid.UUID, data interface{}, metadata EventMetadata) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now(),
		Version:     1,
		Data:        dataBytes,
		Metadata:    metadata,
	}, nil
}

// ParseEventData unmarshals an event's Data field into T.
func ParseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
