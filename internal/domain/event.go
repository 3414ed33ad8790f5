package domain

import "time"

type EventType string

const (
	EventVersionCreated  EventType = "version_created"
	EventVersionDeleted  EventType = "version_deleted"
	EventVersionRestored EventType = "version_restored"
	EventStateUpdated    EventType = "state_updated"
)

// VentureEvent is pushed to everyone watching a venture.
type VentureEvent struct {
	Type          EventType `json:"type"`
	VentureID     string    `json:"venture_id"`
	ActorID       string    `json:"actor_id"`
	VersionID     string    `json:"version_id,omitempty"`
	VersionNumber int64     `json:"version_number,omitempty"`
	Label         string    `json:"label,omitempty"`
	At            time.Time `json:"at"`
}
