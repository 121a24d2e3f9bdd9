package xmppclient

import (
	"github.com/pkg/errors"
)

var (
	ErrAlreadyOpen        = errors.New("xmppclient: connection is not closed")
	ErrNotConnected       = errors.New("xmppclient: not connected")
	ErrTransportLost      = errors.New("xmppclient: transport connection lost")
	ErrStreamClosedByPeer = errors.New("xmppclient: stream closed by the server")
)

// ProtocolError is a fatal violation of the negotiation: a stream error,
// a STARTTLS failure or an element the client cannot accept in its
// current state.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "xmpp protocol error: " + e.Reason + ": " + e.Err.Error()
	}
	return "xmpp protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }
func (e *ProtocolError) Cause() error  { return e.Err }

type AuthFailureCause int

const (
	// The server answered with <failure/>.
	AuthFailureServerRejected AuthFailureCause = iota + 1
	// The server claimed success but could not prove it knows the
	// credentials.
	AuthFailureVerificationFailed
	// The mechanism could not process a challenge.
	AuthFailureMechanismError
	// None of the offered mechanisms is usable with the credentials.
	AuthFailureNoMechanism
)

func (c AuthFailureCause) String() string {
	switch c {
	case AuthFailureServerRejected:
		return "server_rejected"
	case AuthFailureVerificationFailed:
		return "verification_failed"
	case AuthFailureMechanismError:
		return "mechanism_error"
	case AuthFailureNoMechanism:
		return "no_mechanism"
	}
	return "unknown"
}

// AuthenticationError is published on the authentication-failure topic and
// recorded as the client's terminal error.
type AuthenticationError struct {
	Cause     AuthFailureCause
	Mechanism string
	Reason    string
	Err       error
}

func (e *AuthenticationError) Error() string {
	return e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
