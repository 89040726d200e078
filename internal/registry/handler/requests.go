package handler

import (
	"strings"

	"dab/internal/registry/models"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
)

// AddCanisterRequest is the body of POST /registry/canisters.
type AddCanisterRequest struct {
	Name        string `json:"name"`
	PrincipalID string `json:"principal_id"`
	Standard    string `json:"standard"`

	target id.Identity
}

// Validate parses the target identity and rejects the empty name, which no
// /canisters/{name} route could address. The length bound is enforced by the
// service after authorization.
func (r *AddCanisterRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	target, err := id.ParseIdentity(strings.TrimSpace(r.PrincipalID))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid principal_id")
	}
	r.target = target
	return nil
}

func (r *AddCanisterRequest) Descriptor() *models.CanisterDescriptor {
	return &models.CanisterDescriptor{Name: r.Name, TargetID: r.target, Standard: r.Standard}
}

// EditCanisterRequest is the body of PATCH /registry/canisters/{name}.
// Absent fields stay nil.
type EditCanisterRequest struct {
	PrincipalID *string `json:"principal_id"`
	Standard    *string `json:"standard"`

	target *id.Identity
}

func (r *EditCanisterRequest) Validate() error {
	if r.PrincipalID == nil {
		return nil
	}
	target, err := id.ParseIdentity(strings.TrimSpace(*r.PrincipalID))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid principal_id")
	}
	r.target = &target
	return nil
}

func (r *EditCanisterRequest) EditRequest() models.EditRequest {
	return models.EditRequest{TargetID: r.target, Standard: r.Standard}
}

type MessageResponse struct {
	Message string `json:"message"`
}

type NameResponse struct {
	Name string `json:"name"`
}
