package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/jirapatw/voicebook/agent/contract"
	"github.com/jirapatw/voicebook/booking"
)

// Executor runs the seven tools against shared booking state. Validation,
// precondition, and conflict problems come back as guiding result text (never
// as errors); only collaborator failures return an error, and those propagate
// to the loop's terminal handler.
type Executor struct {
	store   booking.Store
	catalog *booking.Catalog
}

func NewExecutor(store booking.Store, catalog *booking.Catalog) (*Executor, error) {
	if store == nil {
		return nil, errors.New("booking store is required")
	}
	if catalog == nil {
		return nil, errors.New("slot catalog is required")
	}
	return &Executor{store: store, catalog: catalog}, nil
}

const (
	msgRepeatPhone   = "I'm sorry, I didn't catch a valid phone number. Could you repeat it? I need all ten digits."
	msgNotIdentified = "I don't have your phone number yet. Could you tell me your ten digit phone number first?"
)

// Execute dispatches one parsed tool call, mutating the session context in
// place. Tool i's context mutations are visible to tool i+1 within a turn
// because the loop runs invocations sequentially.
func (e *Executor) Execute(ctx context.Context, sess *contractx.Session, call contractx.Call) (contractx.Outcome, error) {
	switch c := call.(type) {
	case contractx.IdentifyUser:
		return e.identifyUser(ctx, sess, c)
	case contractx.FetchSlots:
		return e.fetchSlots(ctx, c)
	case contractx.BookAppointment:
		return e.bookAppointment(ctx, sess, c)
	case contractx.RetrieveAppointments:
		return e.retrieveAppointments(ctx, sess)
	case contractx.CancelAppointment:
		return e.cancelAppointment(ctx, sess, c)
	case contractx.ModifyAppointment:
		return e.modifyAppointment(ctx, sess, c)
	case contractx.EndConversation:
		return contractx.Outcome{Text: "Thanks for calling. Goodbye!", EndCall: true}, nil
	}
	return contractx.Outcome{}, fmt.Errorf("%w: unhandled call type %T", contractx.ErrSchemaViolation, call)
}

func (e *Executor) identifyUser(ctx context.Context, sess *contractx.Session, c contractx.IdentifyUser) (contractx.Outcome, error) {
	phone, err := booking.NormalizePhone(c.PhoneNumber)
	if err != nil {
		return contractx.Outcome{Text: msgRepeatPhone}, nil
	}

	user, err := e.store.FindUserByPhone(ctx, phone)
	switch {
	case errors.Is(err, booking.ErrNotFound):
		user, err = e.store.CreateUser(ctx, phone, strings.TrimSpace(c.Name))
		if err != nil {
			return contractx.Outcome{}, err
		}
		log.Info().Str("session_id", sess.ID).Str("phone", phone).Msg("created user during identification")
	case err != nil:
		return contractx.Outcome{}, err
	default:
		// Fill the name only when absent; an existing name is never
		// overwritten.
		if name := strings.TrimSpace(c.Name); name != "" && user.Name == "" {
			user, err = e.store.UpdateUser(ctx, user.ID, booking.UserPatch{Name: &name})
			if err != nil {
				return contractx.Outcome{}, err
			}
		}
	}

	sess.UserID = user.ID
	sess.Phone = user.Phone
	sess.Name = user.Name
	if _, err := e.store.UpdateCallSession(ctx, sess.ID, booking.CallSessionPatch{
		UserID: &user.ID,
		Phone:  &user.Phone,
	}); err != nil && !errors.Is(err, booking.ErrNotFound) {
		return contractx.Outcome{}, err
	}

	appts, err := e.activeAppointments(ctx, user.ID)
	if err != nil {
		return contractx.Outcome{}, err
	}

	greeting := "Welcome"
	if user.Name != "" {
		greeting = "Welcome, " + user.Name
	}
	if len(appts) == 0 {
		return contractx.Outcome{Text: greeting + "! I found your account. You have no upcoming appointments."}, nil
	}
	return contractx.Outcome{Text: fmt.Sprintf("%s! I found your account. You have %d upcoming appointment(s): %s.",
		greeting, len(appts), describeAppointments(appts))}, nil
}

func (e *Executor) fetchSlots(ctx context.Context, c contractx.FetchSlots) (contractx.Outcome, error) {
	booked, err := e.store.ListActiveBookedSlots(ctx)
	if err != nil {
		return contractx.Outcome{}, err
	}
	slots := e.catalog.Available(booked, strings.TrimSpace(c.Date))
	if len(slots) == 0 {
		if c.Date != "" {
			return contractx.Outcome{Text: fmt.Sprintf("There are no open slots on %s. Would another day work?", c.Date)}, nil
		}
		return contractx.Outcome{Text: "I'm sorry, there are no open slots right now."}, nil
	}

	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, s.Date+" at "+s.Time)
	}
	return contractx.Outcome{Text: "Here are the open slots: " + strings.Join(parts, ", ") + "."}, nil
}

func (e *Executor) bookAppointment(ctx context.Context, sess *contractx.Session, c contractx.BookAppointment) (contractx.Outcome, error) {
	if !sess.Identified() {
		return contractx.Outcome{Text: msgNotIdentified}, nil
	}
	if !e.catalog.Contains(c.Date, c.Time) {
		return contractx.Outcome{Text: fmt.Sprintf("%s at %s isn't a time I can offer. Would you like to hear the open slots?", c.Date, c.Time)}, nil
	}

	// Availability is re-checked here, at execution time, because slot state
	// can change between the model's decision and this call. The store's
	// unique index remains the authoritative guard.
	booked, err := e.store.ListActiveBookedSlots(ctx)
	if err != nil {
		return contractx.Outcome{}, err
	}
	if _, taken := booked[booking.SlotKey(c.Date, c.Time)]; taken {
		return contractx.Outcome{Text: fmt.Sprintf("I'm sorry, %s at %s was just taken. Would another time work?", c.Date, c.Time)}, nil
	}

	appt, err := e.store.CreateAppointment(ctx, sess.UserID, c.Date, c.Time, strings.TrimSpace(c.Description), booking.StatusScheduled)
	if errors.Is(err, booking.ErrSlotTaken) {
		return contractx.Outcome{Text: fmt.Sprintf("I'm sorry, %s at %s was just taken. Would another time work?", c.Date, c.Time)}, nil
	}
	if err != nil {
		return contractx.Outcome{}, err
	}

	log.Info().Str("session_id", sess.ID).Int64("appointment_id", appt.ID).
		Str("date", appt.Date).Str("time", appt.Time).Msg("appointment booked")
	return contractx.Outcome{Text: fmt.Sprintf("You're all set! I've booked %s at %s. Your confirmation number is %d.",
		appt.Date, appt.Time, appt.ID)}, nil
}

func (e *Executor) retrieveAppointments(ctx context.Context, sess *contractx.Session) (contractx.Outcome, error) {
	if !sess.Identified() {
		return contractx.Outcome{Text: msgNotIdentified}, nil
	}
	appts, err := e.activeAppointments(ctx, sess.UserID)
	if err != nil {
		return contractx.Outcome{}, err
	}
	if len(appts) == 0 {
		return contractx.Outcome{Text: "You have no upcoming appointments."}, nil
	}
	return contractx.Outcome{Text: fmt.Sprintf("You have %d upcoming appointment(s): %s.", len(appts), describeAppointments(appts))}, nil
}

func (e *Executor) cancelAppointment(ctx context.Context, sess *contractx.Session, c contractx.CancelAppointment) (contractx.Outcome, error) {
	if !sess.Identified() {
		return contractx.Outcome{Text: msgNotIdentified}, nil
	}
	appt, err := e.store.GetAppointment(ctx, c.AppointmentID)
	if errors.Is(err, booking.ErrNotFound) {
		return contractx.Outcome{Text: "I couldn't find that appointment. Could you double-check the confirmation number?"}, nil
	}
	if err != nil {
		return contractx.Outcome{}, err
	}
	if appt.UserID != sess.UserID {
		return contractx.Outcome{Text: "That appointment doesn't belong to your account, so I can't cancel it."}, nil
	}
	if appt.Status == booking.StatusCancelled {
		return contractx.Outcome{Text: fmt.Sprintf("Your appointment on %s at %s was already cancelled.", appt.Date, appt.Time)}, nil
	}

	appt, err = e.store.CancelAppointment(ctx, appt.ID)
	if err != nil {
		return contractx.Outcome{}, err
	}
	log.Info().Str("session_id", sess.ID).Int64("appointment_id", appt.ID).Msg("appointment cancelled")
	return contractx.Outcome{Text: fmt.Sprintf("Done. I've cancelled your appointment on %s at %s.", appt.Date, appt.Time)}, nil
}

func (e *Executor) modifyAppointment(ctx context.Context, sess *contractx.Session, c contractx.ModifyAppointment) (contractx.Outcome, error) {
	if !sess.Identified() {
		return contractx.Outcome{Text: msgNotIdentified}, nil
	}
	if c.NewDate == "" && c.NewTime == "" {
		return contractx.Outcome{Text: "What would you like to change the appointment to? I need a new date or time."}, nil
	}
	appt, err := e.store.GetAppointment(ctx, c.AppointmentID)
	if errors.Is(err, booking.ErrNotFound) {
		return contractx.Outcome{Text: "I couldn't find that appointment. Could you double-check the confirmation number?"}, nil
	}
	if err != nil {
		return contractx.Outcome{}, err
	}
	if appt.UserID != sess.UserID {
		return contractx.Outcome{Text: "That appointment doesn't belong to your account, so I can't change it."}, nil
	}

	targetDate, targetTime := appt.Date, appt.Time
	if c.NewDate != "" {
		targetDate = strings.TrimSpace(c.NewDate)
	}
	if c.NewTime != "" {
		targetTime = strings.TrimSpace(c.NewTime)
	}
	if !e.catalog.Contains(targetDate, targetTime) {
		return contractx.Outcome{Text: fmt.Sprintf("%s at %s isn't a time I can offer. Would you like to hear the open slots?", targetDate, targetTime)}, nil
	}

	// Re-check the target slot at execution time, excluding the appointment's
	// own current slot so moving onto itself stays a no-op.
	booked, err := e.store.ListActiveBookedSlots(ctx)
	if err != nil {
		return contractx.Outcome{}, err
	}
	delete(booked, booking.SlotKey(appt.Date, appt.Time))
	if _, taken := booked[booking.SlotKey(targetDate, targetTime)]; taken {
		return contractx.Outcome{Text: fmt.Sprintf("I'm sorry, %s at %s is already booked. Would another time work?", targetDate, targetTime)}, nil
	}

	scheduled := booking.StatusScheduled
	appt, err = e.store.UpdateAppointment(ctx, appt.ID, booking.AppointmentPatch{
		Date:   &targetDate,
		Time:   &targetTime,
		Status: &scheduled,
	})
	if errors.Is(err, booking.ErrSlotTaken) {
		return contractx.Outcome{Text: fmt.Sprintf("I'm sorry, %s at %s is already booked. Would another time work?", targetDate, targetTime)}, nil
	}
	if err != nil {
		return contractx.Outcome{}, err
	}

	log.Info().Str("session_id", sess.ID).Int64("appointment_id", appt.ID).
		Str("date", appt.Date).Str("time", appt.Time).Msg("appointment moved")
	return contractx.Outcome{Text: fmt.Sprintf("Done. Your appointment is now on %s at %s.", appt.Date, appt.Time)}, nil
}

func (e *Executor) activeAppointments(ctx context.Context, userID int64) ([]booking.Appointment, error) {
	all, err := e.store.ListAppointmentsByUser(ctx, userID)
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

func describeAppointments(appts []booking.Appointment) string {
	parts := make([]string, 0, len(appts))
	for _, a := range appts {
		desc := a.Description
		if desc == "" {
			desc = "appointment"
		}
		parts = append(parts, fmt.Sprintf("%s on %s at %s (confirmation %d)", desc, a.Date, a.Time, a.ID))
	}
	return strings.Join(parts, "; ")
}
