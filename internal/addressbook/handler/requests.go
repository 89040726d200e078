package handler

import (
	"strings"

	"dab/internal/addressbook/models"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
)

// AddAddressRequest is the body of PUT /address-book/{name}.
type AddAddressRequest struct {
	CanisterID string `json:"canister_id"`

	target id.Identity
}

func (r *AddAddressRequest) Validate() error {
	target, err := id.ParseIdentity(strings.TrimSpace(r.CanisterID))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid canister_id")
	}
	r.target = target
	return nil
}

type NameResponse struct {
	Name string `json:"name"`
}

type RemoveAllResponse struct {
	Removed int `json:"removed"`
}

// EntryResponse is one address book entry without its owner, which is always
// the caller.
type EntryResponse struct {
	Name     string      `json:"canister_name"`
	TargetID id.Identity `json:"canister_id"`
}

func toEntryResponses(entries []*models.AddressEntry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{Name: e.Name, TargetID: e.TargetID})
	}
	return out
}
