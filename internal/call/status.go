// Package call drives one voice interview call from the moment the user asks
// for it until the terminal navigation has happened.
//
// A Controller subscribes to a Transport's lifecycle events, keeps the
// transcript of finalized utterances, watches for user inactivity and, once
// the call is Finished, dispatches exactly one terminal action: submit the
// transcript for feedback (interview mode) and navigate the user.
package call

import "fmt"

// Status is the lifecycle state of a call.
type Status int

const (
	StatusInactive Status = iota
	StatusConnecting
	StatusActive
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status for JSON snapshots.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Reason records which trigger moved the call to Finished.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonCallEnded      Reason = "call_ended"
	ReasonSessionEnded   Reason = "session_ended"
	ReasonInactivity     Reason = "inactivity"
	ReasonDisconnected   Reason = "disconnected"
	ReasonStartFailed    Reason = "start_failed"
	ReasonConnectTimeout Reason = "connect_timeout"
)
