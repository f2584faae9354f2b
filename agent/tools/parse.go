package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/jirapatw/voicebook/agent/contract"
)

// ParseCall validates a raw model tool call at the boundary and returns the
// typed variant. Unknown tools and missing required arguments are schema
// violations; the loop turns those into guidance results rather than failures.
func ParseCall(name string, rawArgs string) (contractx.Call, error) {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(rawArgs); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return nil, fmt.Errorf("%w: invalid args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
		}
	}

	switch name {
	case contractx.ToolIdentifyUser:
		phone := stringArg(args, "phone_number")
		if phone == "" {
			return nil, fmt.Errorf("%w: identify_user requires phone_number", contractx.ErrSchemaViolation)
		}
		return contractx.IdentifyUser{PhoneNumber: phone, Name: stringArg(args, "name")}, nil

	case contractx.ToolFetchSlots:
		return contractx.FetchSlots{Date: stringArg(args, "date")}, nil

	case contractx.ToolBookAppointment:
		call := contractx.BookAppointment{
			Date:        stringArg(args, "date"),
			Time:        stringArg(args, "time"),
			Description: stringArg(args, "description"),
		}
		if call.Date == "" || call.Time == "" {
			return nil, fmt.Errorf("%w: book_appointment requires date and time", contractx.ErrSchemaViolation)
		}
		return call, nil

	case contractx.ToolRetrieveAppointments:
		return contractx.RetrieveAppointments{}, nil

	case contractx.ToolCancelAppointment:
		id, ok := intArg(args, "appointment_id")
		if !ok {
			return nil, fmt.Errorf("%w: cancel_appointment requires appointment_id", contractx.ErrSchemaViolation)
		}
		return contractx.CancelAppointment{AppointmentID: id}, nil

	case contractx.ToolModifyAppointment:
		id, ok := intArg(args, "appointment_id")
		if !ok {
			return nil, fmt.Errorf("%w: modify_appointment requires appointment_id", contractx.ErrSchemaViolation)
		}
		return contractx.ModifyAppointment{
			AppointmentID: id,
			NewDate:       stringArg(args, "new_date"),
			NewTime:       stringArg(args, "new_time"),
		}, nil

	case contractx.ToolEndConversation:
		return contractx.EndConversation{}, nil
	}

	return nil, fmt.Errorf("%w: unknown tool=%s", contractx.ErrSchemaViolation, name)
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// intArg tolerates the id arriving as a JSON number or a numeric string; the
// model produces both.
func intArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
