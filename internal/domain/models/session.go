// internal/domain/models/session.go
package models

// Session is the durable record of an authenticated principal.
//
// Presence of a non-empty Token is sufficient for route-gating purposes,
// even when the cached Profile is stale. A Session is created by whichever
// credential-acquisition path succeeds and destroyed only on explicit
// sign-out.
type Session struct {
	Token   string      `json:"token"`
	Profile UserProfile `json:"profile"`
}

// Authenticated reports whether the session carries a usable credential.
func (s Session) Authenticated() bool {
	return s.Token != ""
}
