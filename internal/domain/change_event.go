package domain

import (
	"strings"
	"time"
)

// ChangeOperation describes a persisted activity operation for a work item.
type ChangeOperation string

// ChangeOperation values used by the local activity ledger.
const (
	ChangeOperationCreate ChangeOperation = "create"
	ChangeOperationUpdate ChangeOperation = "update"
	ChangeOperationMove   ChangeOperation = "move"
	ChangeOperationDelete ChangeOperation = "delete"
)

// ActorType identifies who made a change.
type ActorType string

// ActorType values.
const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAgent  ActorType = "agent"
	ActorTypeSystem ActorType = "system"
)

// NormalizeActorType canonicalizes actor types; unknown values fall back to user.
func NormalizeActorType(actorType ActorType) ActorType {
	switch t := ActorType(strings.TrimSpace(strings.ToLower(string(actorType)))); t {
	case ActorTypeUser, ActorTypeAgent, ActorTypeSystem:
		return t
	default:
		return ActorTypeUser
	}
}

// ChangeEvent represents a single activity-log entry for a work item.
type ChangeEvent struct {
	ID         int64
	WorkItemID string
	Operation  ChangeOperation
	ActorID    string
	ActorType  ActorType
	Metadata   map[string]string
	OccurredAt time.Time
}
