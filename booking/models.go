package booking

import (
	"time"

	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusPending   AppointmentStatus = "pending"
	StatusCancelled AppointmentStatus = "cancelled"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// User is identified by a normalized phone number (digits only). A name, once
// set to a non-empty value, is never overwritten; callers fill it only when
// absent.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Phone     string    `bun:"phone,notnull,unique" json:"phone"`
	Name      string    `bun:"name" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Appointment occupies one catalog slot. At most one non-cancelled appointment
// may hold a given (date, time) pair across all users; cancellation is a
// status transition, never a delete.
type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID          int64             `bun:"id,pk,autoincrement" json:"id"`
	UserID      int64             `bun:"user_id,notnull" json:"user_id"`
	Date        string            `bun:"date,notnull" json:"date"` // ISO calendar date, e.g. "2026-01-28"
	Time        string            `bun:"time,notnull" json:"time"` // catalog slot label, e.g. "09:00 AM"
	Description string            `bun:"description" json:"description"`
	Status      AppointmentStatus `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time         `bun:"created_at,notnull" json:"created_at"`
}

func (a *Appointment) Active() bool {
	return a != nil && a.Status != StatusCancelled
}

// CallSession is one live conversational session. It may exist before the
// caller is identified; EndCallSession finalizes it exactly once (the
// duplicate-side-effect guard lives in the summarizer, not here).
type CallSession struct {
	bun.BaseModel `bun:"table:call_sessions,alias:cs"`

	ID           string        `bun:"id,pk" json:"id"`
	UserID       *int64        `bun:"user_id" json:"user_id,omitempty"`
	Phone        string        `bun:"phone" json:"phone,omitempty"`
	Status       SessionStatus `bun:"status,notnull" json:"status"`
	Transcript   string        `bun:"transcript" json:"transcript,omitempty"`
	Summary      string        `bun:"summary" json:"summary,omitempty"`
	Appointments string        `bun:"appointments_json" json:"appointments_json,omitempty"`
	Preferences  string        `bun:"preferences_json" json:"preferences_json,omitempty"`
	StartedAt    time.Time     `bun:"started_at,notnull" json:"started_at"`
	EndedAt      *time.Time    `bun:"ended_at" json:"ended_at,omitempty"`
}

// ToolCallLog is an append-only audit record, never mutated after creation.
type ToolCallLog struct {
	bun.BaseModel `bun:"table:tool_call_logs,alias:tcl"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	SessionID string    `bun:"session_id,notnull" json:"session_id"`
	Tool      string    `bun:"tool,notnull" json:"tool"`
	Args      string    `bun:"args_json" json:"args_json"`
	Result    string    `bun:"result_json" json:"result_json,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
