// Package snapshot exports and restores the whole persisted state: the
// controller, the named registry and every address book.
//
// The server captures a snapshot on graceful shutdown and restores it on the
// next start, so state survives a restart even on the in-memory stores.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bookmodels "dab/internal/addressbook/models"
	registrymodels "dab/internal/registry/models"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
)

// Version is bumped when the file layout changes incompatibly.
const Version = 1

// Snapshot is the serialized state.
type Snapshot struct {
	Version     int                                  `json:"version"`
	CapturedAt  time.Time                            `json:"captured_at"`
	Controller  id.Identity                          `json:"controller"`
	Registry    []*registrymodels.CanisterDescriptor `json:"registry"`
	AddressBook []*bookmodels.AddressEntry           `json:"address_book"`
}

type ControllerSource interface {
	Controller() id.Identity
}

type RegistryStore interface {
	ListAll(ctx context.Context) ([]*registrymodels.CanisterDescriptor, error)
	Replace(ctx context.Context, descriptors []*registrymodels.CanisterDescriptor) error
	Count(ctx context.Context) (int, error)
}

type BookStore interface {
	ListAll(ctx context.Context) ([]*bookmodels.AddressEntry, error)
	Replace(ctx context.Context, entries []*bookmodels.AddressEntry) error
	Count(ctx context.Context) (int, error)
}

// Capture reads the full state from the stores.
func Capture(ctx context.Context, guard ControllerSource, registry RegistryStore, book BookStore) (*Snapshot, error) {
	descriptors, err := registry.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture registry: %w", err)
	}
	entries, err := book.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture address book: %w", err)
	}
	return &Snapshot{
		Version:     Version,
		CapturedAt:  time.Now().UTC(),
		Controller:  guard.Controller(),
		Registry:    descriptors,
		AddressBook: entries,
	}, nil
}

// Restore replaces the store contents with the snapshot. The caller checks
// the controller against configuration first (see CheckController).
func Restore(ctx context.Context, snap *Snapshot, registry RegistryStore, book BookStore) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if err := registry.Replace(ctx, snap.Registry); err != nil {
		return fmt.Errorf("restore registry: %w", err)
	}
	if err := book.Replace(ctx, snap.AddressBook); err != nil {
		return fmt.Errorf("restore address book: %w", err)
	}
	return nil
}

// RestoreIfEmpty restores snap only when both stores are empty and reports
// whether it did. A durable backend that already holds rows is newer than
// any snapshot of it, so replacing its contents would lose writes made after
// the last capture.
func RestoreIfEmpty(ctx context.Context, snap *Snapshot, registry RegistryStore, book BookStore) (bool, error) {
	if err := snap.Validate(); err != nil {
		return false, err
	}
	regCount, err := registry.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count registry: %w", err)
	}
	bookCount, err := book.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count address book: %w", err)
	}
	if regCount > 0 || bookCount > 0 {
		return false, nil
	}
	if err := Restore(ctx, snap, registry, book); err != nil {
		return false, err
	}
	return true, nil
}

// Validate checks the snapshot is loadable: known version, a controller,
// unique registry names within bounds and unique address book keys.
func (s *Snapshot) Validate() error {
	if s.Version != Version {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unsupported snapshot version %d", s.Version))
	}
	if s.Controller.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "snapshot has no controller")
	}
	names := make(map[string]struct{}, len(s.Registry))
	for _, d := range s.Registry {
		if d == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "snapshot contains an empty registry entry")
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if _, dup := names[d.Name]; dup {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("duplicate registry name %q", d.Name))
		}
		names[d.Name] = struct{}{}
	}
	keys := make(map[bookmodels.Key]struct{}, len(s.AddressBook))
	for _, e := range s.AddressBook {
		if e == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "snapshot contains an empty address book entry")
		}
		if _, dup := keys[e.Key()]; dup {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("duplicate address book key %s/%q", e.Owner, e.Name))
		}
		keys[e.Key()] = struct{}{}
	}
	return nil
}

// CheckController resolves which controller the process runs with. The
// controller never changes, so a snapshot taken under a different one is
// rejected. An empty configured controller adopts the snapshot's.
func CheckController(configured id.Identity, snap *Snapshot) (id.Identity, error) {
	if snap == nil {
		return configured, nil
	}
	if configured.IsNil() || configured == snap.Controller {
		return snap.Controller, nil
	}
	return "", dErrors.New(dErrors.CodeInvariantViolation,
		fmt.Sprintf("snapshot controller %s does not match configured controller %s", snap.Controller, configured))
}

// Save writes the snapshot atomically: a temp file in the same directory is
// renamed over path.
func Save(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ErrNoSnapshot is returned by Load when path does not exist.
var ErrNoSnapshot = errors.New("no snapshot file")

func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Registry == nil {
		snap.Registry = []*registrymodels.CanisterDescriptor{}
	}
	if snap.AddressBook == nil {
		snap.AddressBook = []*bookmodels.AddressEntry{}
	}
	return &snap, nil
}
