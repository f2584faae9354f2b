package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/jirapatw/voicebook/agent/contract"
	"github.com/jirapatw/voicebook/booking"
)

const (
	fallbackSummary    = "Call completed. A detailed summary could not be generated."
	defaultDescription = "General appointment"
)

// Result is the structured payload a finalize run returns to its caller.
type Result struct {
	Summary                string                `json:"summary"`
	Appointments           []booking.Appointment `json:"appointments"`
	Preferences            []string              `json:"preferences"`
	CallerName             string                `json:"caller_name,omitempty"`
	CallerPhone            string                `json:"caller_phone,omitempty"`
	NewAppointmentsCreated int                   `json:"new_appointments_created"`
}

// Summarizer reconciles a finished call: it extracts confirmed booking and
// cancellation intents from the transcript, applies them with an exact
// (date, normalized time) duplicate guard so reruns are safe, and finalizes
// the session record. Finalize is never skipped: extraction and intent
// application failures both degrade to a minimal finalize instead of leaving
// the session open.
type Summarizer struct {
	store     booking.Store
	extractor contractx.Extractor
}

func New(store booking.Store, extractor contractx.Extractor) (*Summarizer, error) {
	if store == nil {
		return nil, errors.New("booking store is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	return &Summarizer{store: store, extractor: extractor}, nil
}

// Finalize runs once per session at call end. transcript may be empty, in
// which case the session's own stored transcript is used.
func (s *Summarizer) Finalize(ctx context.Context, sessionID, transcript string) (Result, error) {
	sess, err := s.store.GetCallSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(transcript) == "" {
		transcript = sess.Transcript
	}

	var linked *booking.User
	if sess.UserID != nil {
		linked, err = s.store.GetUser(ctx, *sess.UserID)
		if err != nil && !errors.Is(err, booking.ErrNotFound) {
			return Result{}, err
		}
	}

	// The log is informational only; decisions below are driven by the
	// transcript.
	if logs, err := s.store.ListToolCallLogs(ctx, sessionID); err == nil {
		log.Debug().Str("session_id", sessionID).Int("tool_calls", len(logs)).Msg("finalizing session")
	}

	extraction, err := s.extractor.ExtractCallFacts(ctx, transcript)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("extraction failed, minimal finalize")
		return s.minimalFinalize(ctx, sessionID, transcript, linked)
	}

	user, err := s.resolveUser(ctx, linked, extraction)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("user resolution failed, minimal finalize")
		return s.minimalFinalize(ctx, sessionID, transcript, linked)
	}

	var (
		active  []booking.Appointment
		created int
	)
	if user != nil {
		active, err = s.activeAppointments(ctx, user.ID)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("appointment load failed, minimal finalize")
			return s.minimalFinalize(ctx, sessionID, transcript, user)
		}

		created, active, err = s.applyBookings(ctx, user.ID, extraction.Bookings, active)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("booking application failed, minimal finalize")
			return s.minimalFinalize(ctx, sessionID, transcript, user)
		}

		active, err = s.applyCancellations(ctx, sessionID, extraction.Cancellations, active)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("cancellation application failed, minimal finalize")
			return s.minimalFinalize(ctx, sessionID, transcript, user)
		}
	} else if len(extraction.Cancellations) > 0 {
		// Never invent a cancellation against the wrong user.
		log.Warn().Str("session_id", sessionID).Int("count", len(extraction.Cancellations)).
			Msg("cancellation requests left unresolved: no identified user")
	}

	summaryText := strings.TrimSpace(extraction.Summary)
	if summaryText == "" {
		summaryText = fallbackSummary
	}
	if created > 0 {
		summaryText = fmt.Sprintf("%s (%d appointment(s) were booked from this call.)", summaryText, created)
	}

	if _, err := s.store.EndCallSession(ctx, sessionID, booking.SessionClose{
		Summary:      summaryText,
		Appointments: marshalAppointments(active),
		Preferences:  marshalPreferences(extraction.Preferences),
		Transcript:   transcript,
	}); err != nil {
		return Result{}, err
	}

	res := Result{
		Summary:                summaryText,
		Appointments:           active,
		Preferences:            extraction.Preferences,
		CallerName:             extraction.CallerName,
		NewAppointmentsCreated: created,
	}
	if user != nil {
		res.CallerPhone = user.Phone
		if res.CallerName == "" {
			res.CallerName = user.Name
		}
	}
	return res, nil
}

// resolveUser applies the same lookup-or-create and name-fill-if-absent rules
// as identify_user, from the extracted phone and name. Without a usable
// extracted phone it falls back to the session's linked user.
func (s *Summarizer) resolveUser(ctx context.Context, linked *booking.User, extraction contractx.CallExtraction) (*booking.User, error) {
	phone, err := booking.NormalizePhone(extraction.CallerPhone)
	if err != nil {
		return linked, nil
	}
	name := strings.TrimSpace(extraction.CallerName)

	user, err := s.store.FindUserByPhone(ctx, phone)
	if errors.Is(err, booking.ErrNotFound) {
		return s.store.CreateUser(ctx, phone, name)
	}
	if err != nil {
		return nil, err
	}
	if name != "" && user.Name == "" {
		return s.store.UpdateUser(ctx, user.ID, booking.UserPatch{Name: &name})
	}
	return user, nil
}

// applyBookings creates each confirmed booking that is not an exact
// (date, normalized time) duplicate of an already-active appointment. The
// active list is kept current in memory as rows are added, which is what
// makes a rerun over the same transcript create nothing.
func (s *Summarizer) applyBookings(ctx context.Context, userID int64, intents []contractx.BookingIntent, active []booking.Appointment) (int, []booking.Appointment, error) {
	created := 0
	for _, intent := range intents {
		date := strings.TrimSpace(intent.Date)
		if date == "" || strings.TrimSpace(intent.Time) == "" {
			continue
		}
		slotTime, err := booking.NormalizeClockTime(intent.Time)
		if err != nil {
			log.Warn().Str("time", intent.Time).Msg("skipping booking intent with unparseable time")
			continue
		}
		if hasActiveSlot(active, date, slotTime) {
			continue
		}

		description := strings.TrimSpace(intent.Description)
		if description == "" {
			description = defaultDescription
		}
		appt, err := s.store.CreateAppointment(ctx, userID, date, slotTime, description, booking.StatusPending)
		if errors.Is(err, booking.ErrSlotTaken) {
			log.Warn().Str("date", date).Str("time", slotTime).Msg("skipping booking intent: slot taken")
			continue
		}
		if err != nil {
			return created, active, err
		}
		created++
		active = append([]booking.Appointment{*appt}, active...)
	}
	return created, active, nil
}

func (s *Summarizer) applyCancellations(ctx context.Context, sessionID string, intents []contractx.CancellationIntent, active []booking.Appointment) ([]booking.Appointment, error) {
	for _, intent := range intents {
		date := strings.TrimSpace(intent.Date)
		slotTime, err := booking.NormalizeClockTime(intent.Time)
		if err != nil {
			log.Warn().Str("time", intent.Time).Msg("skipping cancellation intent with unparseable time")
			continue
		}

		idx := -1
		for i, a := range active {
			if a.Date == date && a.Time == slotTime {
				idx = i
				break
			}
		}
		if idx < 0 {
			log.Warn().Str("session_id", sessionID).Str("date", date).Str("time", slotTime).
				Msg("cancellation intent matched no active appointment")
			continue
		}

		if _, err := s.store.CancelAppointment(ctx, active[idx].ID); err != nil {
			return active, err
		}
		active = append(active[:idx], active[idx+1:]...)
	}
	return active, nil
}

// minimalFinalize is the degraded path for extraction or application
// failures: a generic summary, whatever appointments already exist, empty
// preferences, but the session still ends durably.
func (s *Summarizer) minimalFinalize(ctx context.Context, sessionID, transcript string, linked *booking.User) (Result, error) {
	var active []booking.Appointment
	if linked != nil {
		var err error
		active, err = s.activeAppointments(ctx, linked.ID)
		if err != nil {
			// The snapshot is best-effort; ending the session durably matters
			// more than the appointment list inside it.
			log.Error().Err(err).Str("session_id", sessionID).Msg("appointment snapshot unavailable during minimal finalize")
			active = nil
		}
	}

	if _, err := s.store.EndCallSession(ctx, sessionID, booking.SessionClose{
		Summary:      fallbackSummary,
		Appointments: marshalAppointments(active),
		Preferences:  marshalPreferences(nil),
		Transcript:   transcript,
	}); err != nil {
		return Result{}, err
	}

	res := Result{Summary: fallbackSummary, Appointments: active, Preferences: nil}
	if linked != nil {
		res.CallerPhone = linked.Phone
		res.CallerName = linked.Name
	}
	return res, nil
}

func (s *Summarizer) activeAppointments(ctx context.Context, userID int64) ([]booking.Appointment, error) {
	all, err := s.store.ListAppointmentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := make([]booking.Appointment, 0, len(all))
	for _, a := range all {
		if a.Active() {
			active = append(active, a)
		}
	}
	return active, nil
}

func hasActiveSlot(active []booking.Appointment, date, slotTime string) bool {
	for _, a := range active {
		if a.Date == date && a.Time == slotTime {
			return true
		}
	}
	return false
}

func marshalAppointments(appts []booking.Appointment) string {
	if appts == nil {
		appts = []booking.Appointment{}
	}
	raw, err := json.Marshal(appts)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func marshalPreferences(prefs []string) string {
	if prefs == nil {
		prefs = []string{}
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
