package entity

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventJobPosted    EventKind = "JobPosted"
	EventJobTaken     EventKind = "JobTaken"
	EventJobCompleted EventKind = "JobCompleted"
)

// Event is emitted once per successful state transition. ID is stable across
// redeliveries so consumers can dedupe; Seq is the position in the feed.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Seq         uint64    `json:"seq"`
	Kind        EventKind `json:"kind"`
	JobID       JobID     `json:"job_id"`
	Client      Actor     `json:"client,omitempty"`
	Freelancer  Actor     `json:"freelancer,omitempty"`
	Description string    `json:"description,omitempty"`
	Budget      uint64    `json:"budget,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewJobPosted(j Job) Event {
	return Event{
		ID:          uuid.New(),
		Kind:        EventJobPosted,
		JobID:       j.ID,
		Client:      j.Client,
		Description: j.Description,
		Budget:      j.Budget,
		OccurredAt:  j.UpdatedAt,
	}
}

func NewJobTaken(j Job) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       EventJobTaken,
		JobID:      j.ID,
		Freelancer: j.Freelancer,
		OccurredAt: j.UpdatedAt,
	}
}

func NewJobCompleted(j Job) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       EventJobCompleted,
		JobID:      j.ID,
		OccurredAt: j.UpdatedAt,
	}
}
