package cas

// SessionStore provides an interface for storing and retrieving the
// ticket associated with a cookie session identifier.
type SessionStore interface {
	// Read returns the ticket identifier associated with a session id.
	Read(id string) (string, error)

	// Write stores the ticket identifier for a session id.
	Write(id, ticket string) error

	// Delete removes the entry for a session id.
	Delete(id string) error

	// Clear removes all session data.
	Clear() error

	// DeleteFromTicket removes any session associated with the ticket.
	DeleteFromTicket(ticket string) error
}
