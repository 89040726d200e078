package models

import (
	id "dab/pkg/domain"
)

// Key addresses one entry. Entries order by owner and then name, so all of
// one owner's entries are contiguous.
type Key struct {
	Owner id.Identity
	Name  string
}

// Less orders keys by (Owner, Name).
func (k Key) Less(other Key) bool {
	if k.Owner != other.Owner {
		return k.Owner < other.Owner
	}
	return k.Name < other.Name
}

// AddressEntry maps a caller-chosen name to a target identity within the
// owner's book.
type AddressEntry struct {
	Owner    id.Identity `json:"owner"`
	Name     string      `json:"canister_name"`
	TargetID id.Identity `json:"canister_id"`
}

func (e AddressEntry) Key() Key {
	return Key{Owner: e.Owner, Name: e.Name}
}

// AddressLookup is the result of a lookup. TargetID is nil when the owner has
// no entry under Name; Name is always echoed back.
type AddressLookup struct {
	Name     string       `json:"canister_name"`
	TargetID *id.Identity `json:"canister_id"`
}

// Found reports whether the lookup hit an entry.
func (l AddressLookup) Found() bool {
	return l.TargetID != nil
}
