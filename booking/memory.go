package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store used by tests and dev mode.
// It enforces the same active-slot uniqueness invariant as the Postgres store
// so double-booking properties hold against either implementation.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[int64]*User
	appointments map[int64]*Appointment
	sessions     map[string]*CallSession
	logs         map[string][]ToolCallLog

	nextUserID int64
	nextApptID int64
	nextLogID  int64

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[int64]*User),
		appointments: make(map[int64]*Appointment),
		sessions:     make(map[string]*CallSession),
		logs:         make(map[string][]ToolCallLog),
		clock:        time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) FindUserByPhone(ctx context.Context, phone string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, phone, name string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	u := &User{
		ID:        s.nextUserID,
		Phone:     phone,
		Name:      name,
		CreatedAt: s.clock().UTC(),
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id int64, patch UserPatch) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateAppointment(ctx context.Context, userID int64, date, slotTime, description string, status AppointmentStatus) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status != StatusCancelled && s.slotOccupiedLocked(date, slotTime, 0) {
		return nil, ErrSlotTaken
	}
	s.nextApptID++
	a := &Appointment{
		ID:          s.nextApptID,
		UserID:      userID,
		Date:        date,
		Time:        slotTime,
		Description: description,
		Status:      status,
		CreatedAt:   s.clock().UTC(),
	}
	s.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpdateAppointment(ctx context.Context, id int64, patch AppointmentPatch) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}

	date, slotTime := a.Date, a.Time
	if patch.Date != nil {
		date = *patch.Date
	}
	if patch.Time != nil {
		slotTime = *patch.Time
	}
	status := a.Status
	if patch.Status != nil {
		status = *patch.Status
	}
	if status != StatusCancelled && s.slotOccupiedLocked(date, slotTime, id) {
		return nil, ErrSlotTaken
	}

	a.Date, a.Time, a.Status = date, slotTime, status
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = StatusCancelled
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAppointmentsByUser(ctx context.Context, userID int64) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListActiveBookedSlots(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	booked := make(map[string]struct{})
	for _, a := range s.appointments {
		if a.Status != StatusCancelled {
			booked[SlotKey(a.Date, a.Time)] = struct{}{}
		}
	}
	return booked, nil
}

func (s *MemoryStore) CreateCallSession(ctx context.Context, id, phone string) (*CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	cs := &CallSession{
		ID:        id,
		Phone:     phone,
		Status:    SessionActive,
		StartedAt: s.clock().UTC(),
	}
	s.sessions[cs.ID] = cs
	cp := *cs
	return &cp, nil
}

func (s *MemoryStore) GetCallSession(ctx context.Context, id string) (*CallSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cs
	return &cp, nil
}

func (s *MemoryStore) UpdateCallSession(ctx context.Context, id string, patch CallSessionPatch) (*CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.UserID != nil {
		cs.UserID = patch.UserID
	}
	if patch.Phone != nil {
		cs.Phone = *patch.Phone
	}
	if patch.Transcript != nil {
		cs.Transcript = *patch.Transcript
	}
	cp := *cs
	return &cp, nil
}

func (s *MemoryStore) EndCallSession(ctx context.Context, id string, fin SessionClose) (*CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.clock().UTC()
	cs.Status = SessionEnded
	cs.Summary = fin.Summary
	cs.Appointments = fin.Appointments
	cs.Preferences = fin.Preferences
	if fin.Transcript != "" {
		cs.Transcript = fin.Transcript
	}
	cs.EndedAt = &now
	cp := *cs
	return &cp, nil
}

func (s *MemoryStore) AppendToolCallLog(ctx context.Context, sessionID, tool, argsJSON, resultJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	s.logs[sessionID] = append(s.logs[sessionID], ToolCallLog{
		ID:        s.nextLogID,
		SessionID: sessionID,
		Tool:      tool,
		Args:      argsJSON,
		Result:    resultJSON,
		CreatedAt: s.clock().UTC(),
	})
	return nil
}

func (s *MemoryStore) ListToolCallLogs(ctx context.Context, sessionID string) ([]ToolCallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ToolCallLog(nil), s.logs[sessionID]...), nil
}

func (s *MemoryStore) slotOccupiedLocked(date, slotTime string, excludeID int64) bool {
	for _, a := range s.appointments {
		if a.ID == excludeID {
			continue
		}
		if a.Status != StatusCancelled && a.Date == date && a.Time == slotTime {
			return true
		}
	}
	return false
}
