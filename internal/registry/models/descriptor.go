package models

import (
	"unicode/utf8"

	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
)

// MaxNameLength is the longest canister name the registry accepts, in characters.
const MaxNameLength = 120

// CanisterDescriptor is one named registry entry.
//
// Invariants:
//   - Name is the registry key and at most MaxNameLength characters
//   - Name is unique across the registry at any instant (enforced by stores)
type CanisterDescriptor struct {
	TargetID id.Identity `json:"principal_id"`
	Name     string      `json:"name"`
	Standard string      `json:"standard"`
}

// Validate checks the name bound. An empty name is a legal key.
func (d *CanisterDescriptor) Validate() error {
	if utf8.RuneCountInString(d.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"The name of this canister has exceeded the limitation of 120 characters.")
	}
	return nil
}

// Clone returns a copy so callers never alias stored entries.
func (d *CanisterDescriptor) Clone() *CanisterDescriptor {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// EditRequest carries the optional fields of an edit.
//
// At most one field is applied: TargetID wins when both are set.
type EditRequest struct {
	TargetID *id.Identity
	Standard *string
}

// IsEmpty reports whether neither field was supplied.
func (r EditRequest) IsEmpty() bool {
	return r.TargetID == nil && r.Standard == nil
}

// ApplyTo updates d in place. Callers must reject empty requests first.
func (r EditRequest) ApplyTo(d *CanisterDescriptor) {
	if r.TargetID != nil {
		d.TargetID = *r.TargetID
		return
	}
	if r.Standard != nil {
		d.Standard = *r.Standard
	}
}
