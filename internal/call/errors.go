package call

import (
	"errors"
	"strings"
)

// DefaultSessionEndedMarker is what the transport reports when the remote
// side closed the meeting.
const DefaultSessionEndedMarker = "Meeting has ended"

// TransportError is an error frame reported by the transport. Message is the
// human readable part, Raw the frame as received.
type TransportError struct {
	Type    string
	Message string
	Raw     []byte
}

func (e *TransportError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case len(e.Raw) > 0:
		return string(e.Raw)
	case e.Type != "":
		return "transport error: " + e.Type
	default:
		return "transport error"
	}
}

// ErrorMessage normalizes a transport error into the single string that is
// matched against session-ended markers.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *TransportError
	if errors.As(err, &te) {
		return strings.TrimSpace(te.Message + " " + string(te.Raw))
	}
	return err.Error()
}

// IsSessionEnded reports whether err signals a normal end of the call.
func IsSessionEnded(err error, markers []string) bool {
	msg := strings.ToLower(ErrorMessage(err))
	if msg == "" {
		return false
	}
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" && strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
