package xmppclient

// State of the connection as seen by the application.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateAuthenticating
	StateAuthenticated
	StateOpen
	StateAuthenticationFailure
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	case StateAuthenticationFailure:
		return "authentication_failure"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}
