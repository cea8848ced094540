// Package dispatch selects which configured identity provider, if any,
// handles an incoming request. Registrations are assembled once at startup
// and the registry is read-only afterwards.
package dispatch

import (
	"net/http"
	"strings"
)

// RoutePredicate decides whether a registration intercepts a request.
type RoutePredicate interface {
	Matches(r *http.Request) bool
}

type anyRequest struct{}

func (anyRequest) Matches(*http.Request) bool { return true }

// Any matches every request. Useful as a catch-all registered after
// path-scoped providers.
func Any() RoutePredicate { return anyRequest{} }

type predicateFunc func(*http.Request) bool

func (f predicateFunc) Matches(r *http.Request) bool { return f(r) }

// Predicate adapts a function into a RoutePredicate.
func Predicate(fn func(*http.Request) bool) RoutePredicate {
	return predicateFunc(fn)
}

type pathPattern struct {
	segments []string
}

// PathPattern matches the request path against an ant-style pattern:
// literal segments match exactly, "*" matches exactly one segment, and a
// trailing "**" matches any remainder including none.
//
//	PathPattern("/login/oidc")    matches only that path
//	PathPattern("/tenants/*/sso") matches /tenants/acme/sso
//	PathPattern("/private/**")    matches /private and everything below
func PathPattern(pattern string) RoutePredicate {
	return pathPattern{segments: splitPath(pattern)}
}

func (p pathPattern) Matches(r *http.Request) bool {
	return matchSegments(p.segments, splitPath(r.URL.Path))
}

func splitPath(s string) []string {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}

func matchSegments(pattern, path []string) bool {
	for i, seg := range pattern {
		if seg == "**" {
			return true
		}
		if i >= len(path) {
			return false
		}
		if seg != "*" && seg != path[i] {
			return false
		}
	}
	return len(pattern) == len(path)
}
