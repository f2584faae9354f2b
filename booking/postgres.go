package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// PostgresStore implements Store over bun. The double-booking invariant is
// guaranteed by a partial unique index over (date, time) among non-cancelled
// appointments; the executor's availability re-check is only the fast path
// with the friendlier message.
type PostgresStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: ping database: %v", ErrStorage, err)
	}

	s := &PostgresStore{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	models := []any{
		(*User)(nil),
		(*Appointment)(nil),
		(*CallSession)(nil),
		(*ToolCallLog)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("%w: create table: %v", ErrStorage, err)
		}
	}
	// Correctness backstop for the check-then-act window on slot booking:
	// at most one non-cancelled appointment per (date, time) across all users.
	if _, err := s.db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_uniq
		 ON appointments (date, time) WHERE status <> 'cancelled'`); err != nil {
		return fmt.Errorf("%w: create slot index: %v", ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) FindUserByPhone(ctx context.Context, phone string) (*User, error) {
	u := new(User)
	err := s.db.NewSelect().Model(u).Where("phone = ?", phone).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find user by phone: %v", ErrStorage, err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	u := new(User)
	err := s.db.NewSelect().Model(u).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %v", ErrStorage, err)
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, phone, name string) (*User, error) {
	u := &User{
		Phone:     phone,
		Name:      name,
		CreatedAt: s.clock().UTC(),
	}
	if _, err := s.db.NewInsert().Model(u).Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: create user: %v", ErrStorage, err)
	}
	return u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id int64, patch UserPatch) (*User, error) {
	q := s.db.NewUpdate().Model((*User)(nil)).Where("id = ?", id)
	if patch.Name != nil {
		q = q.Set("name = ?", *patch.Name)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: update user: %v", ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	u := new(User)
	if err := s.db.NewSelect().Model(u).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: reload user: %v", ErrStorage, err)
	}
	return u, nil
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, userID int64, date, slotTime, description string, status AppointmentStatus) (*Appointment, error) {
	a := &Appointment{
		UserID:      userID,
		Date:        date,
		Time:        slotTime,
		Description: description,
		Status:      status,
		CreatedAt:   s.clock().UTC(),
	}
	if _, err := s.db.NewInsert().Model(a).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("%w: create appointment: %v", ErrStorage, err)
	}
	return a, nil
}

func (s *PostgresStore) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	a := new(Appointment)
	err := s.db.NewSelect().Model(a).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get appointment: %v", ErrStorage, err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, id int64, patch AppointmentPatch) (*Appointment, error) {
	q := s.db.NewUpdate().Model((*Appointment)(nil)).Where("id = ?", id)
	set := false
	if patch.Date != nil {
		q, set = q.Set("date = ?", *patch.Date), true
	}
	if patch.Time != nil {
		q, set = q.Set("time = ?", *patch.Time), true
	}
	if patch.Description != nil {
		q, set = q.Set("description = ?", *patch.Description), true
	}
	if patch.Status != nil {
		q, set = q.Set("status = ?", *patch.Status), true
	}
	if !set {
		return s.GetAppointment(ctx, id)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("%w: update appointment: %v", ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetAppointment(ctx, id)
}

func (s *PostgresStore) CancelAppointment(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusCancelled {
		return a, nil
	}
	cancelled := StatusCancelled
	return s.UpdateAppointment(ctx, id, AppointmentPatch{Status: &cancelled})
}

func (s *PostgresStore) ListAppointmentsByUser(ctx context.Context, userID int64) ([]Appointment, error) {
	var out []Appointment
	err := s.db.NewSelect().Model(&out).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list appointments: %v", ErrStorage, err)
	}
	return out, nil
}

func (s *PostgresStore) ListActiveBookedSlots(ctx context.Context) (map[string]struct{}, error) {
	var rows []Appointment
	err := s.db.NewSelect().Model(&rows).
		Column("date", "time").
		Where("status <> ?", StatusCancelled).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list booked slots: %v", ErrStorage, err)
	}
	booked := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		booked[SlotKey(r.Date, r.Time)] = struct{}{}
	}
	return booked, nil
}

func (s *PostgresStore) CreateCallSession(ctx context.Context, id, phone string) (*CallSession, error) {
	if id == "" {
		id = uuid.NewString()
	}
	cs := &CallSession{
		ID:        id,
		Phone:     phone,
		Status:    SessionActive,
		StartedAt: s.clock().UTC(),
	}
	if _, err := s.db.NewInsert().Model(cs).Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: create call session: %v", ErrStorage, err)
	}
	return cs, nil
}

func (s *PostgresStore) GetCallSession(ctx context.Context, id string) (*CallSession, error) {
	cs := new(CallSession)
	err := s.db.NewSelect().Model(cs).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get call session: %v", ErrStorage, err)
	}
	return cs, nil
}

func (s *PostgresStore) UpdateCallSession(ctx context.Context, id string, patch CallSessionPatch) (*CallSession, error) {
	q := s.db.NewUpdate().Model((*CallSession)(nil)).Where("id = ?", id)
	set := false
	if patch.UserID != nil {
		q, set = q.Set("user_id = ?", *patch.UserID), true
	}
	if patch.Phone != nil {
		q, set = q.Set("phone = ?", *patch.Phone), true
	}
	if patch.Transcript != nil {
		q, set = q.Set("transcript = ?", *patch.Transcript), true
	}
	if set {
		res, err := q.Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: update call session: %v", ErrStorage, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetCallSession(ctx, id)
}

func (s *PostgresStore) EndCallSession(ctx context.Context, id string, fin SessionClose) (*CallSession, error) {
	now := s.clock().UTC()
	q := s.db.NewUpdate().Model((*CallSession)(nil)).
		Set("status = ?", SessionEnded).
		Set("summary = ?", fin.Summary).
		Set("appointments_json = ?", fin.Appointments).
		Set("preferences_json = ?", fin.Preferences).
		Set("ended_at = ?", now).
		Where("id = ?", id)
	if fin.Transcript != "" {
		q = q.Set("transcript = ?", fin.Transcript)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: end call session: %v", ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetCallSession(ctx, id)
}

func (s *PostgresStore) AppendToolCallLog(ctx context.Context, sessionID, tool, argsJSON, resultJSON string) error {
	entry := &ToolCallLog{
		SessionID: sessionID,
		Tool:      tool,
		Args:      argsJSON,
		Result:    resultJSON,
		CreatedAt: s.clock().UTC(),
	}
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("%w: append tool call log: %v", ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) ListToolCallLogs(ctx context.Context, sessionID string) ([]ToolCallLog, error) {
	var out []ToolCallLog
	err := s.db.NewSelect().Model(&out).
		Where("session_id = ?", sessionID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tool call logs: %v", ErrStorage, err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
