package session

// Status is the lifecycle state of a login session.
type Status string

const (
	StatusPending       Status = "pending"
	StatusScanned       Status = "scanned"
	StatusAuthenticated Status = "authenticated"
	StatusExpired       Status = "expired"
	StatusCancelled     Status = "cancelled"
)

// transitions is the forward-only graph. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending: {StatusScanned, StatusAuthenticated, StatusExpired, StatusCancelled},
	StatusScanned: {StatusAuthenticated, StatusExpired, StatusCancelled},
}

// CanTransitionTo reports whether s -> next is an edge of the graph.
// PENDING -> AUTHENTICATED exists only for ConfirmDirect.
func (s Status) CanTransitionTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusAuthenticated, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScanned, StatusAuthenticated, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string { return string(s) }
