package convo

import (
	"fmt"
	"strings"

	"github.com/jirapatw/voicebook/booking"
)

// JustInTimeContext renders a caller snapshot for providers without native
// tool calling: the per-call system prompt they receive carries the caller's
// current appointments instead.
func JustInTimeContext(user *booking.User, appts []booking.Appointment) string {
	var b strings.Builder
	if user != nil {
		name := user.Name
		if name == "" {
			name = "the caller"
		}
		fmt.Fprintf(&b, "You are speaking with %s (phone %s).\n", name, user.Phone)
	}

	active := 0
	for _, a := range appts {
		if a.Active() {
			active++
		}
	}
	if active == 0 {
		b.WriteString("They have no upcoming appointments.")
		return b.String()
	}

	b.WriteString("Their upcoming appointments:\n")
	for _, a := range appts {
		if !a.Active() {
			continue
		}
		desc := a.Description
		if desc == "" {
			desc = "appointment"
		}
		fmt.Fprintf(&b, "- %s on %s at %s (confirmation %d, %s)\n", desc, a.Date, a.Time, a.ID, a.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}
