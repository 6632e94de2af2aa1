package ports

import "context"

// SessionManager is the external session collaborator. This cluster never
// stores sessions itself; it only asks for revocation by user.
type SessionManager interface {
	TerminateSessions(ctx context.Context, userID, reason string) error
}
