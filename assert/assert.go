// Package assert evaluates an ordered sequence of predicate rules over a
// decoded claim set. Evaluation is fail-fast: the first violated rule
// stops the chain and names itself in the returned Violation.
package assert

import (
	"errors"
	"fmt"

	"github.com/open-rails/oidcgate/claims"
)

// Assertion is a named predicate over a claim set. Implementations must be
// pure functions of the claims and their configured expectation, with no
// side effects.
type Assertion interface {
	Name() string
	Check(c claims.Claims) error
}

// Violation reports which assertion failed and why. The reason is meant
// for logs and diagnostics, not for end users.
type Violation struct {
	Assertion string
	Reason    string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("assert: %s: %s", v.Assertion, v.Reason)
}

// violationf builds a Violation for the given assertion name.
func violationf(name, format string, args ...any) error {
	return &Violation{Assertion: name, Reason: fmt.Sprintf(format, args...)}
}

type named struct {
	name string
	fn   func(claims.Claims) error
}

func (a named) Name() string                { return a.name }
func (a named) Check(c claims.Claims) error { return a.fn(c) }

// Named adapts a plain predicate function into an Assertion.
func Named(name string, fn func(claims.Claims) error) Assertion {
	return named{name: name, fn: fn}
}

// Chain is an ordered assertion sequence. Order is significant: it fixes
// both short-circuit behavior and which violation gets reported when
// several rules would fail.
type Chain struct {
	assertions []Assertion
}

// NewChain builds a chain from a baseline sequence plus caller-appended
// extras. The baseline keeps its order; extras run after it.
func NewChain(baseline []Assertion, extras ...Assertion) *Chain {
	all := make([]Assertion, 0, len(baseline)+len(extras))
	all = append(all, baseline...)
	all = append(all, extras...)
	return &Chain{assertions: all}
}

// Assert runs every assertion in order and returns the first violation,
// or nil when all pass. Errors that are not already Violations are
// wrapped with the failing assertion's name.
func (ch *Chain) Assert(c claims.Claims) error {
	for _, a := range ch.assertions {
		if err := a.Check(c); err != nil {
			var v *Violation
			if errors.As(err, &v) {
				return v
			}
			return &Violation{Assertion: a.Name(), Reason: err.Error()}
		}
	}
	return nil
}

// Len returns the number of assertions in the chain.
func (ch *Chain) Len() int { return len(ch.assertions) }
