package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/jirapatw/voicebook/agent/contract"
	toolsx "github.com/jirapatw/voicebook/agent/tools"
	"github.com/jirapatw/voicebook/booking"
)

const errTurnFailed = "I'm sorry, something went wrong on my end. Could you try that again?"

// Loop drives one conversational turn: a tool-choosing model round trip,
// sequential tool execution, and a second round trip that streams the spoken
// reply. Nothing in a turn runs in parallel with itself; the shared session
// context is mutated in place across tool calls within the turn.
type Loop struct {
	model        contractx.ChatModel
	executor     *toolsx.Executor
	store        booking.Store
	cache        *Cache
	systemPrompt string
}

func NewLoop(model contractx.ChatModel, executor *toolsx.Executor, store booking.Store, cache *Cache, systemPrompt string) (*Loop, error) {
	if model == nil {
		return nil, errors.New("chat model is required")
	}
	if executor == nil {
		return nil, errors.New("tool executor is required")
	}
	if store == nil {
		return nil, errors.New("booking store is required")
	}
	if cache == nil {
		cache = NewCache()
	}
	return &Loop{
		model:        model,
		executor:     executor,
		store:        store,
		cache:        cache,
		systemPrompt: strings.TrimSpace(systemPrompt),
	}, nil
}

// StartSession creates the durable call session record and its in-memory
// context. An empty id lets the store assign one.
func (l *Loop) StartSession(ctx context.Context, id, phone string) (*contractx.Session, error) {
	cs, err := l.store.CreateCallSession(ctx, id, phone)
	if err != nil {
		return nil, err
	}
	sess := &contractx.Session{ID: cs.ID, Phone: cs.Phone}
	l.cache.Put(sess)
	log.Info().Str("session_id", cs.ID).Msg("session started")
	return sess, nil
}

// EndSession drops the in-memory context. The durable finalize is the
// summarizer's job and must already have happened.
func (l *Loop) EndSession(id string) {
	l.cache.Evict(id)
}

// HandleUtterance runs one turn and returns its event sequence. The channel
// carries tool lifecycle, transcript-fragment, and audio-fragment events and
// is closed after a single terminal EventDone or EventError. The session
// stays usable after an errored turn. Cancelling ctx releases a turn whose
// consumer stopped draining: undelivered events are dropped and the channel
// still closes.
func (l *Loop) HandleUtterance(ctx context.Context, sessionID, text string) (<-chan contractx.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: utterance is empty", contractx.ErrValidation)
	}
	ent, ok := l.cache.acquire(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrUnknownSession, sessionID)
	}

	events := make(chan contractx.Event, 16)
	go func() {
		ent.mu.Lock()
		defer ent.mu.Unlock()
		defer close(events)
		l.runTurn(ctx, ent.sess, text, events)
	}()
	return events, nil
}

func (l *Loop) runTurn(ctx context.Context, sess *contractx.Session, text string, events chan<- contractx.Event) {
	sess.Append(contractx.Message{Role: contractx.RoleUser, Content: text})

	endCall, err := l.turn(ctx, sess, events)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn().Str("session_id", sess.ID).Msg("turn abandoned, context cancelled")
			return
		}
		log.Error().Err(err).Str("session_id", sess.ID).Msg("turn failed")
		emitEvent(ctx, events, contractx.Event{Kind: contractx.EventError, Text: errTurnFailed})
		return
	}

	if err := l.persistTranscript(ctx, sess); err != nil {
		// Already-spoken reply stands; transcript persistence failing is not a
		// turn failure, but it must not pass silently.
		log.Error().Err(err).Str("session_id", sess.ID).Msg("persist transcript failed")
	}

	emitEvent(ctx, events, contractx.Event{Kind: contractx.EventDone, EndCall: endCall})
}

// emitEvent delivers one event unless the turn's context is cancelled. A
// consumer that walks away mid-turn must not leave the turn goroutine blocked
// on a send while it holds the session entry mutex.
func emitEvent(ctx context.Context, events chan<- contractx.Event, ev contractx.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Loop) turn(ctx context.Context, sess *contractx.Session, events chan<- contractx.Event) (bool, error) {
	msgs := l.withSystem(sess.History)
	completion, err := l.model.Complete(ctx, msgs)
	if err != nil {
		return false, err
	}

	var (
		endCall bool
		reply   string
	)

	if len(completion.ToolCalls) > 0 {
		turnMsgs := append(msgs, contractx.Message{
			Role:      contractx.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		// Tools run strictly in request order: later tools may depend on
		// context mutations from earlier ones (identify_user before
		// book_appointment in the same turn).
		for _, tc := range completion.ToolCalls {
			if !emitEvent(ctx, events, contractx.Event{Kind: contractx.EventToolStarted, Tool: tc.Name, CallID: tc.ID}) {
				return false, ctx.Err()
			}
			if err := l.store.AppendToolCallLog(ctx, sess.ID, tc.Name, tc.Args, ""); err != nil {
				return false, err
			}

			outcome, err := l.executeCall(ctx, sess, tc)
			if err != nil {
				return false, err
			}
			endCall = endCall || outcome.EndCall

			if !emitEvent(ctx, events, contractx.Event{Kind: contractx.EventToolEnded, Tool: tc.Name, CallID: tc.ID, Text: outcome.Text}) {
				return false, ctx.Err()
			}
			turnMsgs = append(turnMsgs, contractx.Message{
				Role:       contractx.RoleTool,
				Content:    outcome.Text,
				ToolCallID: tc.ID,
			})
		}

		reply, err = l.model.StreamReply(ctx, turnMsgs, func(fragment string) {
			emitEvent(ctx, events, contractx.Event{Kind: contractx.EventTranscript, Text: fragment})
		})
		if err != nil {
			return false, err
		}
	} else {
		reply = completion.Content
		if !emitEvent(ctx, events, contractx.Event{Kind: contractx.EventTranscript, Text: reply}) {
			return false, ctx.Err()
		}
	}

	if err := l.model.Synthesize(ctx, reply, func(chunk []byte) {
		emitEvent(ctx, events, contractx.Event{Kind: contractx.EventAudio, Audio: chunk})
	}); err != nil {
		return false, err
	}

	sess.Append(contractx.Message{Role: contractx.RoleAssistant, Content: reply})
	return endCall, nil
}

// executeCall parses and runs one invocation. Schema violations come back as
// a guiding tool result so the model can recover; only collaborator failures
// return an error.
func (l *Loop) executeCall(ctx context.Context, sess *contractx.Session, tc contractx.ToolCallRef) (contractx.Outcome, error) {
	call, err := toolsx.ParseCall(tc.Name, tc.Args)
	if err != nil {
		if errors.Is(err, contractx.ErrSchemaViolation) {
			log.Warn().Err(err).Str("session_id", sess.ID).Str("tool", tc.Name).Msg("rejected tool call at boundary")
			return contractx.Outcome{Text: "I'm sorry, I couldn't process that request. Could you rephrase it?"}, nil
		}
		return contractx.Outcome{}, err
	}
	return l.executor.Execute(ctx, sess, call)
}

func (l *Loop) withSystem(history []contractx.Message) []contractx.Message {
	msgs := make([]contractx.Message, 0, len(history)+1)
	if l.systemPrompt != "" {
		msgs = append(msgs, contractx.Message{Role: contractx.RoleSystem, Content: l.systemPrompt})
	}
	return append(msgs, history...)
}

func (l *Loop) persistTranscript(ctx context.Context, sess *contractx.Session) error {
	transcript := RenderTranscript(sess.History)
	_, err := l.store.UpdateCallSession(ctx, sess.ID, booking.CallSessionPatch{Transcript: &transcript})
	return err
}

// RenderTranscript flattens a message history into the plain-text transcript
// form the summarizer consumes.
func RenderTranscript(history []contractx.Message) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role != contractx.RoleUser && m.Role != contractx.RoleAssistant {
			continue
		}
		if m.Content == "" {
			continue
		}
		label := "User"
		if m.Role == contractx.RoleAssistant {
			label = "Assistant"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
