package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"

	contractx "github.com/jirapatw/voicebook/agent/contract"
	toolsx "github.com/jirapatw/voicebook/agent/tools"
)

type Config struct {
	ChatModel       string  `envconfig:"CHAT_MODEL" split_words:"true" default:"gpt-4o"`
	ExtractModel    string  `envconfig:"EXTRACT_MODEL" split_words:"true"`
	SpeechModel     string  `envconfig:"SPEECH_MODEL" split_words:"true" default:"tts-1"`
	SpeechVoice     string  `envconfig:"SPEECH_VOICE" split_words:"true" default:"alloy"`
	TranscribeModel string  `envconfig:"TRANSCRIBE_MODEL" split_words:"true" default:"whisper-1"`
	Temperature     float64 `envconfig:"TEMPERATURE" split_words:"true" default:"0.4"`
}

// Model adapts the OpenAI SDK to the agent's ChatModel, Extractor, and
// Transcriber contracts.
type Model struct {
	client           *openaisdk.Client
	cfg              Config
	summarizerPrompt string
}

func NewModel(client *openaisdk.Client, cfg Config, summarizerPrompt string) (*Model, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil openai client", contractx.ErrValidation)
	}
	return &Model{
		client:           client,
		cfg:              cfg,
		summarizerPrompt: strings.TrimSpace(summarizerPrompt),
	}, nil
}

var (
	_ contractx.ChatModel   = (*Model)(nil)
	_ contractx.Extractor   = (*Model)(nil)
	_ contractx.Transcriber = (*Model)(nil)
)

// Complete runs the tool-choosing round trip: full history plus the declared
// tool surface; the model answers with either text or tool invocations.
func (m *Model) Complete(ctx context.Context, msgs []contractx.Message) (contractx.Completion, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(m.cfg.ChatModel),
		Messages:    toSDKMessages(msgs),
		Tools:       toolsx.Schemas(),
		Temperature: openaisdk.Float(m.cfg.Temperature),
	})
	if err != nil {
		return contractx.Completion{}, fmt.Errorf("%w: completion: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return contractx.Completion{}, fmt.Errorf("%w: completion has no choices", contractx.ErrSchemaViolation)
	}

	choice := resp.Choices[0].Message
	out := contractx.Completion{Content: strings.TrimSpace(choice.Content)}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, contractx.ToolCallRef{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return out, nil
}

// StreamReply runs the second round trip without tools and streams transcript
// fragments as they arrive, returning the assembled reply.
func (m *Model) StreamReply(ctx context.Context, msgs []contractx.Message, emit func(fragment string)) (string, error) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(m.cfg.ChatModel),
		Messages:    toSDKMessages(msgs),
		Temperature: openaisdk.Float(m.cfg.Temperature),
	})
	defer stream.Close()

	var b strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		b.WriteString(delta)
		if emit != nil {
			emit(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("%w: streaming reply: %v", contractx.ErrModelInvoke, err)
	}

	reply := strings.TrimSpace(b.String())
	if reply == "" {
		return "", fmt.Errorf("%w: empty streamed reply", contractx.ErrSchemaViolation)
	}
	return reply, nil
}

// Synthesize streams speech audio for a reply in fixed-size chunks.
func (m *Model) Synthesize(ctx context.Context, text string, emit func(chunk []byte)) error {
	resp, err := m.client.Audio.Speech.New(ctx, openaisdk.AudioSpeechNewParams{
		Model: openaisdk.SpeechModel(m.cfg.SpeechModel),
		Voice: openaisdk.AudioSpeechNewParamsVoice(m.cfg.SpeechVoice),
		Input: text,
	})
	if err != nil {
		return fmt.Errorf("%w: speech synthesis: %v", contractx.ErrModelInvoke, err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 && emit != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			emit(chunk)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read speech stream: %v", contractx.ErrModelInvoke, err)
		}
	}
}

// ExtractCallFacts asks for strict JSON and validates it locally; anything
// unparseable is a schema violation the summarizer degrades on.
func (m *Model) ExtractCallFacts(ctx context.Context, transcript string) (contractx.CallExtraction, error) {
	model := strings.TrimSpace(m.cfg.ExtractModel)
	if model == "" {
		model = m.cfg.ChatModel
	}

	resp, err := m.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(m.summarizerPrompt),
			openaisdk.UserMessage("Transcript:\n" + transcript),
		},
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openaisdk.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return contractx.CallExtraction{}, fmt.Errorf("%w: extraction: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return contractx.CallExtraction{}, fmt.Errorf("%w: extraction has no choices", contractx.ErrSchemaViolation)
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	var extraction contractx.CallExtraction
	if err := json.Unmarshal([]byte(raw), &extraction); err != nil {
		return contractx.CallExtraction{}, fmt.Errorf("%w: parse extraction: %v", contractx.ErrSchemaViolation, err)
	}
	return extraction, nil
}

// Transcribe converts uploaded caller audio into an utterance string.
func (m *Model) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := m.client.Audio.Transcriptions.New(ctx, openaisdk.AudioTranscriptionNewParams{
		Model: openaisdk.AudioModel(m.cfg.TranscribeModel),
		File:  openaisdk.File(audio, filename, "application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: transcription: %v", contractx.ErrModelInvoke, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func toSDKMessages(msgs []contractx.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case contractx.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case contractx.RoleUser:
			out = append(out, openaisdk.UserMessage(msg.Content))
		case contractx.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openaisdk.AssistantMessage(msg.Content))
				continue
			}
			assistant := openaisdk.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openaisdk.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openaisdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Args,
						},
					},
				})
			}
			out = append(out, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case contractx.RoleTool:
			out = append(out, openaisdk.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}
