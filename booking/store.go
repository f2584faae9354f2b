package booking

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is a normal miss (unknown phone, unknown id), not a storage
	// failure; callers branch on it rather than failing the request.
	ErrNotFound = errors.New("booking: not found")

	// ErrSlotTaken reports that a non-cancelled appointment already occupies
	// the target (date, time) pair.
	ErrSlotTaken = errors.New("booking: slot already booked")

	// ErrStorage wraps infrastructure failures; they surface as request
	// failures, never as silently-empty results.
	ErrStorage = errors.New("booking: storage failure")
)

// UserPatch replaces only the fields that are set.
type UserPatch struct {
	Name *string
}

// AppointmentPatch replaces only the fields that are set.
type AppointmentPatch struct {
	Date        *string
	Time        *string
	Description *string
	Status      *AppointmentStatus
}

// CallSessionPatch replaces only the fields that are set.
type CallSessionPatch struct {
	UserID     *int64
	Phone      *string
	Transcript *string
}

// SessionClose carries the finalize payload for EndCallSession.
type SessionClose struct {
	Summary      string
	Appointments string
	Preferences  string
	Transcript   string
}

// Store is the persistence contract shared by the tool executor, the
// conversation loop, and the summarizer. Operations are atomic per entity
// write; the double-booking guard is enforced by the store itself
// (ErrSlotTaken), with the executor's availability re-check serving as the
// fast path.
type Store interface {
	FindUserByPhone(ctx context.Context, phone string) (*User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, phone, name string) (*User, error)
	UpdateUser(ctx context.Context, id int64, patch UserPatch) (*User, error)

	CreateAppointment(ctx context.Context, userID int64, date, slotTime, description string, status AppointmentStatus) (*Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id int64, patch AppointmentPatch) (*Appointment, error)
	// CancelAppointment sets status cancelled; cancelling an already-cancelled
	// appointment returns it unchanged.
	CancelAppointment(ctx context.Context, id int64) (*Appointment, error)
	// ListAppointmentsByUser returns the user's appointments newest-created-first.
	ListAppointmentsByUser(ctx context.Context, userID int64) ([]Appointment, error)
	// ListActiveBookedSlots is the global (all users) set of occupied slot
	// keys; this is what double-booking checks consult.
	ListActiveBookedSlots(ctx context.Context) (map[string]struct{}, error)

	CreateCallSession(ctx context.Context, id, phone string) (*CallSession, error)
	GetCallSession(ctx context.Context, id string) (*CallSession, error)
	UpdateCallSession(ctx context.Context, id string, patch CallSessionPatch) (*CallSession, error)
	// EndCallSession sets status ended and the end timestamp. Calling it on an
	// already-ended session overwrites fields; duplicate-side-effect
	// protection lives in the summarizer.
	EndCallSession(ctx context.Context, id string, fin SessionClose) (*CallSession, error)

	AppendToolCallLog(ctx context.Context, sessionID, tool, argsJSON, resultJSON string) error
	ListToolCallLogs(ctx context.Context, sessionID string) ([]ToolCallLog, error)
}
