// Package navigation defines the route contract between the engine and
// its host.
//
// The wizard and the session gate never touch a concrete router; they
// depend on the Navigator interface, and each host context supplies an
// implementation. Route-parameter payloads cross the boundary as string
// maps with a fallible decoder, so callers are forced to handle the
// malformed case instead of falling back to an uninitialized value.
package navigation

import (
	"encoding/json"
	"fmt"
)

// Target is a top-level route in the host application.
type Target string

const (
	RouteSignIn        Target = "signin"
	RouteOnboarding    Target = "onboarding"
	RouteHome          Target = "home"
	RouteNotifications Target = "notifications"
)

// unauthenticated is the route set the session gate treats specially:
// an authenticated principal landing on one of these is redirected home.
var unauthenticated = map[Target]bool{
	RouteSignIn:     true,
	RouteOnboarding: true,
}

// IsUnauthenticatedRoute reports whether t belongs to the set of routes
// reserved for principals without a session.
func IsUnauthenticatedRoute(t Target) bool {
	return unauthenticated[t]
}

// Params carries route parameters as string key/value pairs.
type Params map[string]string

// Navigator is the minimal capability set the engine requires of a host
// router.
type Navigator interface {
	// GoBack returns to the previous screen.
	GoBack()
	// Navigate pushes target with the given parameters.
	Navigate(target Target, params Params)
	// Replace swaps the current entry for target, so the user cannot
	// navigate back into it.
	Replace(target Target, params Params)
}

// ParseParams decodes a serialized route-parameter payload. It returns an
// error for anything that is not a flat JSON object of strings; callers
// must handle that branch rather than proceed with a zero value.
func ParseParams(raw string) (Params, error) {
	if raw == "" {
		return Params{}, nil
	}
	var p Params
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("navigation: malformed params: %w", err)
	}
	return p, nil
}

// EncodeParams serializes params for hosts that thread payloads through
// string route parameters.
func EncodeParams(p Params) string {
	if len(p) == 0 {
		return ""
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(raw)
}
