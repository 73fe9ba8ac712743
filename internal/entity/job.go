package entity

import (
	"fmt"
	"strings"
	"time"
)

// JobID is assigned sequentially by the ledger and never reused.
type JobID uint64

// Actor is an opaque participant identifier, usually a hex account address.
// Only string equality is meaningful.
type Actor string

// NoActor is the freelancer of a job that has not been accepted yet.
const NoActor Actor = ""

func (a Actor) IsNone() bool {
	return strings.TrimSpace(string(a)) == ""
}

type JobStatus int

const (
	StatusOpen JobStatus = iota
	StatusInProgress
	StatusCompleted
)

var statusNames = [...]string{
	StatusOpen:       "open",
	StatusInProgress: "in_progress",
	StatusCompleted:  "completed",
}

func (s JobStatus) String() string {
	if s < StatusOpen || s > StatusCompleted {
		return fmt.Sprintf("unknown(%d)", int(s))
	}
	return statusNames[s]
}

func (s JobStatus) Valid() bool {
	return s >= StatusOpen && s <= StatusCompleted
}

// CanAdvanceTo reports whether to is the immediate successor of s.
// Statuses only move forward one step at a time.
func (s JobStatus) CanAdvanceTo(to JobStatus) bool {
	return s.Valid() && to.Valid() && to == s+1
}

func (s JobStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid job status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *JobStatus) UnmarshalText(b []byte) error {
	st, err := ParseJobStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func ParseJobStatus(v string) (JobStatus, error) {
	for i, name := range statusNames {
		if name == v {
			return JobStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", v)
}

type Job struct {
	ID          JobID     `json:"id"`
	Client      Actor     `json:"client"`
	Freelancer  Actor     `json:"freelancer"`
	Description string    `json:"description"`
	Budget      uint64    `json:"budget"`
	Status      JobStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CheckConsistency verifies the record-local invariants: the freelancer is
// bound iff the job has left Open, and never equals the client.
func (j Job) CheckConsistency() error {
	if !j.Status.Valid() {
		return fmt.Errorf("job %d: invalid status %d", j.ID, int(j.Status))
	}
	if j.Status == StatusOpen && !j.Freelancer.IsNone() {
		return fmt.Errorf("job %d: open job has freelancer %q", j.ID, j.Freelancer)
	}
	if j.Status != StatusOpen && j.Freelancer.IsNone() {
		return fmt.Errorf("job %d: %s job has no freelancer", j.ID, j.Status)
	}
	if !j.Freelancer.IsNone() && j.Freelancer == j.Client {
		return fmt.Errorf("job %d: freelancer equals client", j.ID)
	}
	return nil
}
