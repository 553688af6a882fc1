package orchestrator

import "context"

// Authenticator is the external auth service contract (spec.md §4.6
// "Authentication boundary"). Absence of a token is allowed and yields an
// anonymous session; a nil Authenticator has the same effect (every call
// succeeds anonymously).
type Authenticator interface {
	// VerifyToken resolves a token to user info, or ok=false if invalid.
	VerifyToken(ctx context.Context, token string) (userInfo map[string]any, ok bool, err error)
	// CheckPermission reports whether token grants permission, a string of
	// the form "service:<prefix>".
	CheckPermission(ctx context.Context, token, permission string) (bool, error)
}

// NoopAuthenticator grants every request; used when no auth service is
// configured.
type NoopAuthenticator struct{}

// VerifyToken always succeeds with no user info attached.
func (NoopAuthenticator) VerifyToken(ctx context.Context, token string) (map[string]any, bool, error) {
	return nil, true, nil
}

// CheckPermission always allows.
func (NoopAuthenticator) CheckPermission(ctx context.Context, token, permission string) (bool, error) {
	return true, nil
}
