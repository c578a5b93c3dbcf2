package call

import (
	"context"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// MessageType tags transport messages; only transcripts matter to the controller.
type MessageType string

const MessageTranscript MessageType = "transcript"

// TranscriptType distinguishes revisable results from finalized ones.
type TranscriptType string

const (
	TranscriptPartial TranscriptType = "partial"
	TranscriptFinal   TranscriptType = "final"
)

// Message is a "message" event from the transport.
type Message struct {
	Type           MessageType    `json:"type"`
	Role           string         `json:"role"`
	TranscriptType TranscriptType `json:"transcriptType"`
	Transcript     string         `json:"transcript"`
}

// IsFinalTranscript reports whether m carries a finalized utterance.
func (m Message) IsFinalTranscript() bool {
	return m.Type == MessageTranscript && m.TranscriptType == TranscriptFinal
}

// Listener receives transport events. Implementations must tolerate calls
// from any goroutine.
type Listener interface {
	OnCallStart()
	OnCallEnd()
	OnMessage(Message)
	OnSpeechStart()
	OnSpeechEnd()
	OnError(error)
}

// Transport is the real-time voice service. Start returns once the start
// request is sent; the call is only live after OnCallStart. Stop must be safe
// to call more than once. Subscribe registers every event callback at once and
// returns the function that removes them all.
type Transport interface {
	Start(ctx context.Context, target string, params map[string]any) error
	Stop() error
	Subscribe(l Listener) (unsubscribe func())
}

// FeedbackGenerator turns a finished interview transcript into stored feedback.
type FeedbackGenerator interface {
	CreateFeedback(ctx context.Context, req domain.FeedbackRequest) (domain.FeedbackResult, error)
}

// Navigator redirects the user after the call is over.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }
