package contract

import (
	"context"
	"io"
)

// ChatModel is the LLM collaborator for the conversation loop. Complete is the
// tool-choosing round trip; StreamReply streams the spoken reply's transcript
// and returns the full text; Synthesize streams speech audio for a reply.
type ChatModel interface {
	Complete(ctx context.Context, msgs []Message) (Completion, error)
	StreamReply(ctx context.Context, msgs []Message, emit func(fragment string)) (string, error)
	Synthesize(ctx context.Context, text string, emit func(chunk []byte)) error
}

// Extractor is the post-call collaborator that turns a raw transcript into
// the structured reconciliation payload.
type Extractor interface {
	ExtractCallFacts(ctx context.Context, transcript string) (CallExtraction, error)
}

// Transcriber converts uploaded caller audio into an utterance string.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}
