package tools

import (
	"context"
	"strings"
	"testing"

	contractx "github.com/jirapatw/voicebook/agent/contract"
	"github.com/jirapatw/voicebook/booking"
)

func newTestExecutor(t *testing.T) (*Executor, *booking.MemoryStore) {
	t.Helper()
	store := booking.NewMemoryStore()
	catalog := booking.NewCatalog([]string{"2026-01-06", "2026-01-07"})
	exec, err := NewExecutor(store, catalog)
	if err != nil {
		t.Fatalf("NewExecutor error = %v", err)
	}
	return exec, store
}

func newTestSession(t *testing.T, store booking.Store, id string) *contractx.Session {
	t.Helper()
	cs, err := store.CreateCallSession(context.Background(), id, "")
	if err != nil {
		t.Fatalf("CreateCallSession error = %v", err)
	}
	return &contractx.Session{ID: cs.ID}
}

func identify(t *testing.T, exec *Executor, sess *contractx.Session, phone, name string) contractx.Outcome {
	t.Helper()
	out, err := exec.Execute(context.Background(), sess, contractx.IdentifyUser{PhoneNumber: phone, Name: name})
	if err != nil {
		t.Fatalf("identify_user error = %v", err)
	}
	return out
}

func TestIdentifyUserCreatesAndGreets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")

	out := identify(t, exec, sess, "(555) 123-4567", "Alice")
	if !sess.Identified() {
		t.Fatal("expected session to be identified")
	}
	if sess.Phone != "5551234567" || sess.Name != "Alice" {
		t.Fatalf("unexpected session context: phone=%q name=%q", sess.Phone, sess.Name)
	}
	if !strings.Contains(out.Text, "Alice") || !strings.Contains(out.Text, "no upcoming appointments") {
		t.Fatalf("unexpected greeting %q", out.Text)
	}

	// The normalized phone, not the spoken form, is persisted.
	user, err := store.FindUserByPhone(ctx, "5551234567")
	if err != nil {
		t.Fatalf("FindUserByPhone error = %v", err)
	}
	if user.Name != "Alice" {
		t.Fatalf("expected stored name Alice, got %q", user.Name)
	}

	cs, err := store.GetCallSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetCallSession error = %v", err)
	}
	if cs.UserID == nil || *cs.UserID != user.ID {
		t.Fatalf("expected call session linked to user %d, got %v", user.ID, cs.UserID)
	}
}

func TestIdentifyUserBadPhoneAsksAgain(t *testing.T) {
	t.Parallel()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")

	out := identify(t, exec, sess, "555-1234", "")
	if sess.Identified() {
		t.Fatal("expected session to stay unidentified")
	}
	if !strings.Contains(out.Text, "ten digits") {
		t.Fatalf("expected re-prompt for the phone number, got %q", out.Text)
	}
}

func TestIdentifyUserNeverOverwritesName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)

	// First caller has no name on file; a later call fills it.
	if _, err := store.CreateUser(ctx, "5551234567", ""); err != nil {
		t.Fatalf("CreateUser error = %v", err)
	}
	sess := newTestSession(t, store, "s1")
	identify(t, exec, sess, "5551234567", "Alice")

	user, _ := store.FindUserByPhone(ctx, "5551234567")
	if user.Name != "Alice" {
		t.Fatalf("expected empty name to be filled, got %q", user.Name)
	}

	// A different spoken name on a later call must not replace it.
	sess2 := newTestSession(t, store, "s2")
	identify(t, exec, sess2, "5551234567", "Alicia")

	user, _ = store.FindUserByPhone(ctx, "5551234567")
	if user.Name != "Alice" {
		t.Fatalf("expected existing name preserved, got %q", user.Name)
	}
}

func TestBookAppointmentRequiresIdentification(t *testing.T) {
	t.Parallel()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")

	out, err := exec.Execute(context.Background(), sess, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM"})
	if err != nil {
		t.Fatalf("book_appointment error = %v", err)
	}
	if !strings.Contains(out.Text, "phone number") {
		t.Fatalf("expected identification guidance, got %q", out.Text)
	}
	if appts, _ := store.ListAppointmentsByUser(context.Background(), 1); len(appts) != 0 {
		t.Fatal("unidentified caller must not create appointments")
	}
}

func TestBookAppointmentHappyPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")
	identify(t, exec, sess, "5551234567", "Alice")

	out, err := exec.Execute(ctx, sess, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM", Description: "checkup"})
	if err != nil {
		t.Fatalf("book_appointment error = %v", err)
	}
	if !strings.Contains(out.Text, "confirmation number") {
		t.Fatalf("expected confirmation in %q", out.Text)
	}

	appts, _ := store.ListAppointmentsByUser(ctx, sess.UserID)
	if len(appts) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(appts))
	}
	if appts[0].Status != booking.StatusScheduled {
		t.Fatalf("expected scheduled status, got %s", appts[0].Status)
	}
	if appts[0].Description != "checkup" {
		t.Fatalf("expected description preserved, got %q", appts[0].Description)
	}
}

func TestBookAppointmentConflictGuidance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)

	alice := newTestSession(t, store, "s1")
	identify(t, exec, alice, "5551234567", "Alice")
	if _, err := exec.Execute(ctx, alice, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM"}); err != nil {
		t.Fatalf("first booking error = %v", err)
	}

	bob := newTestSession(t, store, "s2")
	identify(t, exec, bob, "5559876543", "Bob")
	out, err := exec.Execute(ctx, bob, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM"})
	if err != nil {
		t.Fatalf("conflicting booking must not error, got %v", err)
	}
	if !strings.Contains(out.Text, "just taken") {
		t.Fatalf("expected conflict guidance, got %q", out.Text)
	}
	if appts, _ := store.ListAppointmentsByUser(ctx, bob.UserID); len(appts) != 0 {
		t.Fatal("conflicting booking must not create an appointment")
	}
}

func TestBookAppointmentRejectsOffCatalogSlot(t *testing.T) {
	t.Parallel()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")
	identify(t, exec, sess, "5551234567", "")

	out, err := exec.Execute(context.Background(), sess, contractx.BookAppointment{Date: "2026-01-06", Time: "09:30 AM"})
	if err != nil {
		t.Fatalf("book_appointment error = %v", err)
	}
	if !strings.Contains(out.Text, "isn't a time I can offer") {
		t.Fatalf("expected off-grid guidance, got %q", out.Text)
	}
}

func TestFetchSlotsReflectsBookings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")
	identify(t, exec, sess, "5551234567", "")
	exec.Execute(ctx, sess, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM"})

	out, err := exec.Execute(ctx, sess, contractx.FetchSlots{Date: "2026-01-06"})
	if err != nil {
		t.Fatalf("fetch_slots error = %v", err)
	}
	if strings.Contains(out.Text, "2026-01-06 at 09:00 AM") {
		t.Fatalf("booked slot offered as open: %q", out.Text)
	}
	if !strings.Contains(out.Text, "2026-01-06 at 10:00 AM") {
		t.Fatalf("expected open slot listed, got %q", out.Text)
	}
}

func TestRetrieveAppointmentsSkipsCancelled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")
	identify(t, exec, sess, "5551234567", "Alice")

	exec.Execute(ctx, sess, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM", Description: "checkup"})
	exec.Execute(ctx, sess, contractx.BookAppointment{Date: "2026-01-07", Time: "10:00 AM"})

	appts, _ := store.ListAppointmentsByUser(ctx, sess.UserID)
	exec.Execute(ctx, sess, contractx.CancelAppointment{AppointmentID: appts[0].ID})

	out, err := exec.Execute(ctx, sess, contractx.RetrieveAppointments{})
	if err != nil {
		t.Fatalf("retrieve_appointments error = %v", err)
	}
	if !strings.Contains(out.Text, "1 upcoming appointment") {
		t.Fatalf("expected one active appointment, got %q", out.Text)
	}
	if !strings.Contains(out.Text, "checkup on 2026-01-06 at 09:00 AM") {
		t.Fatalf("expected surviving appointment listed, got %q", out.Text)
	}
}

func TestCancelAppointmentGuards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)

	alice := newTestSession(t, store, "s1")
	identify(t, exec, alice, "5551234567", "Alice")
	exec.Execute(ctx, alice, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM"})
	appts, _ := store.ListAppointmentsByUser(ctx, alice.UserID)
	apptID := appts[0].ID

	// Unknown confirmation number.
	out, err := exec.Execute(ctx, alice, contractx.CancelAppointment{AppointmentID: 999})
	if err != nil {
		t.Fatalf("cancel_appointment error = %v", err)
	}
	if !strings.Contains(out.Text, "couldn't find") {
		t.Fatalf("expected not-found guidance, got %q", out.Text)
	}

	// Another caller's appointment.
	bob := newTestSession(t, store, "s2")
	identify(t, exec, bob, "5559876543", "Bob")
	out, _ = exec.Execute(ctx, bob, contractx.CancelAppointment{AppointmentID: apptID})
	if !strings.Contains(out.Text, "doesn't belong") {
		t.Fatalf("expected ownership guidance, got %q", out.Text)
	}
	if got, _ := store.GetAppointment(ctx, apptID); got.Status != booking.StatusScheduled {
		t.Fatalf("foreign cancel mutated appointment: %s", got.Status)
	}

	// Owner cancels; a repeat cancel reports the earlier cancellation.
	out, _ = exec.Execute(ctx, alice, contractx.CancelAppointment{AppointmentID: apptID})
	if !strings.Contains(out.Text, "cancelled") {
		t.Fatalf("expected cancellation confirmation, got %q", out.Text)
	}
	out, _ = exec.Execute(ctx, alice, contractx.CancelAppointment{AppointmentID: apptID})
	if !strings.Contains(out.Text, "already cancelled") {
		t.Fatalf("expected already-cancelled guidance, got %q", out.Text)
	}
}

func TestModifyAppointmentConflictLeavesTargetUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")
	identify(t, exec, sess, "5551234567", "Alice")

	exec.Execute(ctx, sess, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM"})
	exec.Execute(ctx, sess, contractx.BookAppointment{Date: "2026-01-06", Time: "10:00 AM"})
	appts, _ := store.ListAppointmentsByUser(ctx, sess.UserID)
	// Newest-first: appts[0] is the 10:00 AM booking.
	moving := appts[0]

	out, err := exec.Execute(ctx, sess, contractx.ModifyAppointment{AppointmentID: moving.ID, NewTime: "09:00 AM"})
	if err != nil {
		t.Fatalf("modify_appointment error = %v", err)
	}
	if !strings.Contains(out.Text, "already booked") {
		t.Fatalf("expected conflict guidance, got %q", out.Text)
	}
	got, _ := store.GetAppointment(ctx, moving.ID)
	if got.Time != "10:00 AM" || got.Date != "2026-01-06" {
		t.Fatalf("failed move mutated appointment: %s %s", got.Date, got.Time)
	}
}

func TestModifyAppointmentOntoOwnSlotSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")
	identify(t, exec, sess, "5551234567", "Alice")

	exec.Execute(ctx, sess, contractx.BookAppointment{Date: "2026-01-06", Time: "09:00 AM"})
	appts, _ := store.ListAppointmentsByUser(ctx, sess.UserID)

	out, err := exec.Execute(ctx, sess, contractx.ModifyAppointment{AppointmentID: appts[0].ID, NewTime: "09:00 AM"})
	if err != nil {
		t.Fatalf("modify_appointment error = %v", err)
	}
	if !strings.Contains(out.Text, "now on 2026-01-06 at 09:00 AM") {
		t.Fatalf("expected no-op move to succeed, got %q", out.Text)
	}
}

func TestModifyAppointmentNeedsSomethingToChange(t *testing.T) {
	t.Parallel()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")
	identify(t, exec, sess, "5551234567", "")

	out, err := exec.Execute(context.Background(), sess, contractx.ModifyAppointment{AppointmentID: 1})
	if err != nil {
		t.Fatalf("modify_appointment error = %v", err)
	}
	if !strings.Contains(out.Text, "new date or time") {
		t.Fatalf("expected change guidance, got %q", out.Text)
	}
}

func TestEndConversationSignalsEndCall(t *testing.T) {
	t.Parallel()
	exec, store := newTestExecutor(t)
	sess := newTestSession(t, store, "s1")

	out, err := exec.Execute(context.Background(), sess, contractx.EndConversation{})
	if err != nil {
		t.Fatalf("end_conversation error = %v", err)
	}
	if !out.EndCall {
		t.Fatal("expected EndCall set")
	}
	if out.Text == "" {
		t.Fatal("expected a farewell line")
	}
}
