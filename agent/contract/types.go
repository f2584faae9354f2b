package contract

// Role values for conversation history messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the per-session conversation history exchanged with
// the model. Assistant messages may carry tool calls; tool messages answer
// them by ToolCallID.
type Message struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// ToolCallRef is a model-requested tool invocation: id, tool name, raw JSON
// arguments.
type ToolCallRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// Completion is the first-round-trip result: either a direct textual reply or
// a set of tool invocations (never both meaningfully).
type Completion struct {
	Content   string
	ToolCalls []ToolCallRef
}

// Tool names exposed to the model.
const (
	ToolIdentifyUser         = "identify_user"
	ToolFetchSlots           = "fetch_slots"
	ToolBookAppointment      = "book_appointment"
	ToolRetrieveAppointments = "retrieve_appointments"
	ToolCancelAppointment    = "cancel_appointment"
	ToolModifyAppointment    = "modify_appointment"
	ToolEndConversation      = "end_conversation"
)

// Call is the tagged union of the seven tool-call variants, validated at the
// boundary before dispatch.
type Call interface {
	Tool() string
}

type IdentifyUser struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name,omitempty"`
}

type FetchSlots struct {
	Date string `json:"date,omitempty"`
}

type BookAppointment struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
}

type RetrieveAppointments struct{}

type CancelAppointment struct {
	AppointmentID int64 `json:"appointment_id"`
}

type ModifyAppointment struct {
	AppointmentID int64  `json:"appointment_id"`
	NewDate       string `json:"new_date,omitempty"`
	NewTime       string `json:"new_time,omitempty"`
}

type EndConversation struct{}

func (IdentifyUser) Tool() string         { return ToolIdentifyUser }
func (FetchSlots) Tool() string           { return ToolFetchSlots }
func (BookAppointment) Tool() string      { return ToolBookAppointment }
func (RetrieveAppointments) Tool() string { return ToolRetrieveAppointments }
func (CancelAppointment) Tool() string    { return ToolCancelAppointment }
func (ModifyAppointment) Tool() string    { return ToolModifyAppointment }
func (EndConversation) Tool() string      { return ToolEndConversation }

// Outcome is what a tool execution hands back to the loop: a natural-language
// result for the model to speak from, and whether this turn ends the call.
type Outcome struct {
	Text    string
	EndCall bool
}

// EventKind tags the entries of a turn's streamed event sequence.
type EventKind string

const (
	EventToolStarted EventKind = "tool_started"
	EventToolEnded   EventKind = "tool_ended"
	EventTranscript  EventKind = "transcript"
	EventAudio       EventKind = "audio"
	EventError       EventKind = "error"
	EventDone        EventKind = "done"
)

// Event is one element of the lazy, finite, non-restartable sequence a turn
// produces. The last event is always EventDone or EventError.
type Event struct {
	Kind    EventKind
	Tool    string // tool lifecycle events
	CallID  string // tool lifecycle events
	Text    string // transcript fragment, tool result, or error message
	Audio   []byte // audio fragment
	EndCall bool   // set on EventDone when end_conversation fired
}

// BookingIntent is one booking the caller explicitly confirmed in transcript.
type BookingIntent struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description,omitempty"`
}

// CancellationIntent is one cancellation the caller explicitly confirmed.
type CancellationIntent struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// CallExtraction is the structured payload the summarizer asks the model to
// produce from a raw transcript.
type CallExtraction struct {
	CallerName    string               `json:"caller_name,omitempty"`
	CallerPhone   string               `json:"caller_phone,omitempty"`
	Bookings      []BookingIntent      `json:"bookings,omitempty"`
	Cancellations []CancellationIntent `json:"cancellations,omitempty"`
	Summary       string               `json:"summary"`
	Preferences   []string             `json:"preferences,omitempty"`
}
