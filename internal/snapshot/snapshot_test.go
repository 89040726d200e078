package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookmodels "dab/internal/addressbook/models"
	bookstore "dab/internal/addressbook/store"
	"dab/internal/guard"
	registrymodels "dab/internal/registry/models"
	registrystore "dab/internal/registry/store"
	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
)

const controller id.Identity = "alice"

func seeded(t *testing.T) (*registrystore.InMemory, *bookstore.InMemory) {
	t.Helper()
	ctx := context.Background()
	reg := registrystore.NewInMemory()
	book := bookstore.NewInMemory()
	require.NoError(t, reg.Save(ctx, &registrymodels.CanisterDescriptor{Name: "xtc", TargetID: "aanaa-xaaaa", Standard: "Dank"}))
	require.NoError(t, reg.Save(ctx, &registrymodels.CanisterDescriptor{Name: "wicp", TargetID: "utozz-siaaa", Standard: "DIP20"}))
	require.NoError(t, book.Put(ctx, &bookmodels.AddressEntry{Owner: "alice", Name: "x", TargetID: "t1"}))
	require.NoError(t, book.Put(ctx, &bookmodels.AddressEntry{Owner: "bob", Name: "x", TargetID: "t2"}))
	return reg, book
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	reg, book := seeded(t)

	snap, err := Capture(ctx, guard.MustNew(controller), reg, book)
	require.NoError(t, err)
	assert.Equal(t, controller, snap.Controller)
	assert.Len(t, snap.Registry, 2)
	assert.Len(t, snap.AddressBook, 2)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, snap))

	loaded, err := Load(path)
	require.NoError(t, err)

	freshReg := registrystore.NewInMemory()
	freshBook := bookstore.NewInMemory()
	require.NoError(t, Restore(ctx, loaded, freshReg, freshBook))

	wantReg, err := reg.ListAll(ctx)
	require.NoError(t, err)
	gotReg, err := freshReg.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantReg, gotReg)

	wantBook, err := book.ListAll(ctx)
	require.NoError(t, err)
	gotBook, err := freshBook.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantBook, gotBook)
}

func TestRestoreReplacesExistingState(t *testing.T) {
	ctx := context.Background()
	reg, book := seeded(t)
	snap := &Snapshot{Version: Version, Controller: controller}

	require.NoError(t, Restore(ctx, snap, reg, book))

	n, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = book.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRestoreIfEmpty(t *testing.T) {
	ctx := context.Background()
	stale := &Snapshot{
		Version:    Version,
		Controller: controller,
		Registry: []*registrymodels.CanisterDescriptor{
			{Name: "old", TargetID: "aaaaa-aa", Standard: "Dank"},
		},
		AddressBook: []*bookmodels.AddressEntry{
			{Owner: "alice", Name: "old", TargetID: "t0"},
		},
	}

	t.Run("fresh stores are restored", func(t *testing.T) {
		reg := registrystore.NewInMemory()
		book := bookstore.NewInMemory()

		restored, err := RestoreIfEmpty(ctx, stale, reg, book)
		require.NoError(t, err)
		assert.True(t, restored)
		n, err := reg.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("stores holding newer rows are left alone", func(t *testing.T) {
		reg, book := seeded(t)

		restored, err := RestoreIfEmpty(ctx, stale, reg, book)
		require.NoError(t, err)
		assert.False(t, restored)

		_, err = reg.FindByName(ctx, "xtc")
		require.NoError(t, err)
		_, err = reg.FindByName(ctx, "old")
		assert.Error(t, err)
		n, err := book.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("address book rows alone block the restore", func(t *testing.T) {
		reg := registrystore.NewInMemory()
		book := bookstore.NewInMemory()
		require.NoError(t, book.Put(ctx, &bookmodels.AddressEntry{Owner: "bob", Name: "x", TargetID: "t9"}))

		restored, err := RestoreIfEmpty(ctx, stale, reg, book)
		require.NoError(t, err)
		assert.False(t, restored)
		n, err := reg.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("invalid snapshot fails before touching stores", func(t *testing.T) {
		reg := registrystore.NewInMemory()
		book := bookstore.NewInMemory()
		_, err := RestoreIfEmpty(ctx, &Snapshot{Version: Version + 1, Controller: controller}, reg, book)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"unknown version", Snapshot{Version: 99, Controller: controller}},
		{"missing controller", Snapshot{Version: Version}},
		{"name too long", Snapshot{Version: Version, Controller: controller, Registry: []*registrymodels.CanisterDescriptor{
			{Name: strings.Repeat("n", 121)},
		}}},
		{"duplicate registry name", Snapshot{Version: Version, Controller: controller, Registry: []*registrymodels.CanisterDescriptor{
			{Name: "xtc"}, {Name: "xtc"},
		}}},
		{"duplicate address key", Snapshot{Version: Version, Controller: controller, AddressBook: []*bookmodels.AddressEntry{
			{Owner: "alice", Name: "x"}, {Owner: "alice", Name: "x"},
		}}},
		{"nil entry", Snapshot{Version: Version, Controller: controller, AddressBook: []*bookmodels.AddressEntry{nil}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}

	t.Run("same name under different owners is fine", func(t *testing.T) {
		snap := Snapshot{Version: Version, Controller: controller, AddressBook: []*bookmodels.AddressEntry{
			{Owner: "alice", Name: "x"}, {Owner: "bob", Name: "x"},
		}}
		assert.NoError(t, snap.Validate())
	})
}

func TestCheckController(t *testing.T) {
	snap := &Snapshot{Version: Version, Controller: controller}

	got, err := CheckController("alice", snap)
	require.NoError(t, err)
	assert.Equal(t, controller, got)

	got, err = CheckController("", snap)
	require.NoError(t, err)
	assert.Equal(t, controller, got, "empty configuration adopts the snapshot controller")

	got, err = CheckController("bob", nil)
	require.NoError(t, err)
	assert.Equal(t, id.Identity("bob"), got)

	_, err = CheckController("bob", snap)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestLoad(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		require.ErrorIs(t, err, ErrNoSnapshot)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
		_, err := Load(path)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrNoSnapshot)
	})

	t.Run("empty collections decode as empty slices", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"controller":"alice"}`), 0o600))
		snap, err := Load(path)
		require.NoError(t, err)
		assert.NotNil(t, snap.Registry)
		assert.NotNil(t, snap.AddressBook)
	})
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, "state.json"), &Snapshot{Version: Version, Controller: controller}))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "state.json", files[0].Name())
}
