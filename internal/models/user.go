package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RefreshRun is one recorded refresh or import cycle.
type RefreshRun struct {
	ID             uuid.UUID  `json:"id"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	BidsFound      int        `json:"bids_found"`
	AgreementsSeen int        `json:"agreements_seen"`
	Projects       int        `json:"projects"`
	Rejected       int        `json:"rejected"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}
