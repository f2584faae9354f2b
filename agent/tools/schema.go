package tools

import (
	"github.com/openai/openai-go/v2"

	contractx "github.com/jirapatw/voicebook/agent/contract"
)

// Schemas is the tool surface declared to the model on every turn.
func Schemas() []openai.ChatCompletionToolUnionParam {
	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        contractx.ToolIdentifyUser,
			Description: openai.String("Identify the caller by their 10 digit phone number, creating a new account if needed."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"phone_number": map[string]any{"type": "string", "description": "Caller phone number; punctuation is allowed"},
					"name":         map[string]any{"type": "string", "description": "Caller name, if they shared it"},
				},
				"required": []string{"phone_number"},
			},
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        contractx.ToolFetchSlots,
			Description: openai.String("List open appointment slots, optionally for one date."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"date": map[string]any{"type": "string", "description": "ISO date (YYYY-MM-DD) to filter by"},
				},
			},
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        contractx.ToolBookAppointment,
			Description: openai.String("Book an appointment for the identified caller at an open slot."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"date":        map[string]any{"type": "string", "description": "ISO date (YYYY-MM-DD)"},
					"time":        map[string]any{"type": "string", "description": "Slot time label, e.g. 09:00 AM"},
					"description": map[string]any{"type": "string", "description": "What the appointment is for"},
				},
				"required": []string{"date", "time"},
			},
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        contractx.ToolRetrieveAppointments,
			Description: openai.String("List the identified caller's upcoming appointments."),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": map[string]any{},
			},
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        contractx.ToolCancelAppointment,
			Description: openai.String("Cancel one of the identified caller's appointments by id."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"appointment_id": map[string]any{"type": "integer", "description": "Appointment id from retrieve_appointments"},
				},
				"required": []string{"appointment_id"},
			},
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        contractx.ToolModifyAppointment,
			Description: openai.String("Move one of the identified caller's appointments to a new date and/or time."),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"appointment_id": map[string]any{"type": "integer", "description": "Appointment id from retrieve_appointments"},
					"new_date":       map[string]any{"type": "string", "description": "New ISO date, if changing"},
					"new_time":       map[string]any{"type": "string", "description": "New slot time label, if changing"},
				},
				"required": []string{"appointment_id"},
			},
		}),
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        contractx.ToolEndConversation,
			Description: openai.String("End the call after the caller says goodbye."),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": map[string]any{},
			},
		}),
	}
}
