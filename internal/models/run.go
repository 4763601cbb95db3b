package models

import (
	"time"
)

// RunStatus represents the state of a recorded round
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Terminal reports whether no further updates will follow
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one round as recorded in the run ledger
type Run struct {
	ID           string     `json:"id" db:"id"`
	Task         string     `json:"task" db:"task"`
	Round        int        `json:"round" db:"round"`
	Email        string     `json:"email" db:"email"`
	Nonce        string     `json:"nonce" db:"nonce"`
	Contract     string     `json:"contract" db:"contract"`
	Status       RunStatus  `json:"status" db:"status"`
	Stage        string     `json:"stage" db:"stage"`
	Error        *string    `json:"error,omitempty" db:"error"`
	Files        []string   `json:"files" db:"files"`
	Flagged      []string   `json:"flagged" db:"flagged"`
	Fallback     bool       `json:"fallback" db:"fallback"`
	RepoURL      *string    `json:"repo_url,omitempty" db:"repo_url"`
	PagesURL     *string    `json:"pages_url,omitempty" db:"pages_url"`
	CommitSHA    *string    `json:"commit_sha,omitempty" db:"commit_sha"`
	NotifyStatus *int       `json:"notify_status,omitempty" db:"notify_status"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
