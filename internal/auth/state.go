package auth

// AttemptState is the state of one authentication attempt.
type AttemptState int

const (
	StateIdle AttemptState = iota
	StateDiscoveringServer
	StateAwaitingCallback
	StateExchangingCode
	StateAuthenticated
	StateFailed
)

func (s AttemptState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscoveringServer:
		return "discovering-server"
	case StateAwaitingCallback:
		return "awaiting-callback"
	case StateExchangingCode:
		return "exchanging-code"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the attempt is over.
func (s AttemptState) IsTerminal() bool {
	return s == StateAuthenticated || s == StateFailed
}
