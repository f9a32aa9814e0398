// Package auth carries the authenticated user identity through the
// system as explicit state rather than an ambient singleton.
package auth

// Session binds the local user to the bearer token used for metadata
// service calls. It is constructed at login (request authentication) and
// passed to every component that needs it; clearing it is simply letting
// it go out of scope.
type Session struct {
	UserID string
	Token  string
}

// Valid reports whether the session identifies a user.
func (s Session) Valid() bool {
	return s.UserID != "" && s.Token != ""
}
