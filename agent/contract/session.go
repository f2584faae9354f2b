package contract

// Session is the in-memory per-call conversation context: the session id, the
// identified caller if known, and the ordered message history. It is owned by
// the conversation loop for the lifetime of the call and mutated in place by
// tool executions within a turn; it is never shared across sessions and is
// discarded on eviction. A crash loses in-flight context but not persisted
// bookings.
type Session struct {
	ID     string
	UserID int64 // 0 until identify_user succeeds
	Phone  string
	Name   string

	History []Message
}

func (s *Session) Identified() bool {
	return s != nil && s.UserID != 0
}

func (s *Session) Append(msg Message) {
	s.History = append(s.History, msg)
}
