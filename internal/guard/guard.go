// Package guard holds the controller identity that gates named registry
// mutations.
//
// The controller is fixed when the process starts (whoever initialized the
// service) and there is no way to change it afterwards. A guard without a
// controller is a broken startup invariant: IsController panics rather than
// answering.
package guard

import (
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
)

// Guard decides whether a caller may mutate the named registry.
type Guard struct {
	controller id.Identity
}

// New returns a guard for the given controller.
func New(controller id.Identity) (*Guard, error) {
	if controller.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "cannot set a default controller")
	}
	return &Guard{controller: controller}, nil
}

// MustNew is New for process initialization, where a missing controller
// must abort startup.
func MustNew(controller id.Identity) *Guard {
	g, err := New(controller)
	if err != nil {
		panic(err)
	}
	return g
}

// IsController reports whether caller is the controller.
func (g *Guard) IsController(caller id.Identity) bool {
	return caller == g.Controller()
}

// Controller returns the controller identity.
func (g *Guard) Controller() id.Identity {
	if g == nil || g.controller.IsNil() {
		panic("guard: controller accessed before initialization")
	}
	return g.controller
}
