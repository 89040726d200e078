package audit

import (
	"context"
	"time"

	id "dab/pkg/domain"
)

// EventCategory classifies audit events for routing and retention.
type EventCategory string

const (
	// CategorySecurity covers authorization outcomes worth alerting on.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine registry and address book changes.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from services to capture state changes. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// Actor is the caller that performed the action.
	Actor     id.Identity `json:"actor"`
	Action    string      `json:"action"`
	Subject   string      `json:"subject"`
	Reason    string      `json:"reason,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	// Named registry events
	EventCanisterAdded   AuditEvent = "canister_added"
	EventCanisterRemoved AuditEvent = "canister_removed"
	EventCanisterEdited  AuditEvent = "canister_edited"
	EventMutationDenied  AuditEvent = "registry_mutation_denied"

	// Address book events
	EventAddressAdded       AuditEvent = "address_added"
	EventAddressRemoved     AuditEvent = "address_removed"
	EventAddressBookCleared AuditEvent = "address_book_cleared"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventMutationDenied: CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Sink accepts events for persistence or forwarding.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a Sink that can also be queried.
type Store interface {
	Sink
	ListByActor(ctx context.Context, actor id.Identity) ([]Event, error)
}
