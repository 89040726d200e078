package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookmodels "dab/internal/addressbook/models"
	jwttoken "dab/internal/jwt_token"
	registrymodels "dab/internal/registry/models"
	"dab/internal/snapshot"
	id "dab/pkg/domain"
	audit "dab/pkg/platform/audit"
	auditmemory "dab/pkg/platform/audit/store/memory"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		snapshotVerbose = false
		tokenCaller = ""
		tokenTTL = time.Hour
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--caller", "alice", "--key", "k", "--issuer", "dab-test")
	require.NoError(t, err)

	claims, err := jwttoken.NewJWTService("k", "dab-test").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

func TestTokenCommand_RejectsMalformedCaller(t *testing.T) {
	_, err := execute(t, "token", "--caller", "not valid")
	assert.Error(t, err)
}

func TestSnapshotInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, snapshot.Save(path, &snapshot.Snapshot{
		Version:    snapshot.Version,
		CapturedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Controller: "alice",
		Registry: []*registrymodels.CanisterDescriptor{
			{Name: "xtc", TargetID: "aanaa-xaaaa", Standard: "Dank"},
		},
		AddressBook: []*bookmodels.AddressEntry{
			{Owner: "bob", Name: "wallet", TargetID: "t1"},
			{Owner: "alice", Name: "wallet", TargetID: "t2"},
			{Owner: "bob", Name: "nft", TargetID: "t3"},
		},
	}))

	out, err := execute(t, "snapshot", "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "controller:      alice")
	assert.Contains(t, out, "registry:        1 entries")
	assert.Contains(t, out, "address book:    3 entries across 2 owners")
	assert.NotContains(t, out, "PRINCIPAL")

	out, err = execute(t, "snapshot", "inspect", "-v", path)
	require.NoError(t, err)
	assert.Contains(t, out, "xtc")
	// entries are listed by owner, then name
	assert.Less(t, strings.Index(out, "t2\n"), strings.Index(out, "t3\n"))
	assert.Less(t, strings.Index(out, "t3\n"), strings.Index(out, "t1\n"))
}

func TestSnapshotInspect_Missing(t *testing.T) {
	_, err := execute(t, "snapshot", "inspect", filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, snapshot.ErrNoSnapshot)
}

func TestAuditList_RequiresDatabase(t *testing.T) {
	t.Cleanup(func() { auditDatabaseURL = "" })
	auditDatabaseURL = ""
	_, err := execute(t, "audit", "list", "--database-url", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestListAudit(t *testing.T) {
	ctx := context.Background()
	store := auditmemory.NewInMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, e := range []audit.Event{
		{Actor: "alice", Action: string(audit.EventCanisterAdded), Subject: "xtc"},
		{Actor: "bob", Action: string(audit.EventMutationDenied), Subject: "xtc", Reason: "add"},
		{Actor: "alice", Action: string(audit.EventCanisterEdited), Subject: "xtc"},
	} {
		e.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Append(ctx, e))
	}

	byActor, err := listAudit(ctx, store, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	recent, err := listAudit(ctx, store, "", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, id.Identity("alice"), recent[0].Actor)

	var out bytes.Buffer
	require.NoError(t, printAudit(&out, recent))
	assert.Contains(t, out.String(), "canister_edited")
	assert.Contains(t, out.String(), "2024-05-01T12:00:02Z")
}

func TestDurationEnvOr(t *testing.T) {
	t.Setenv("JWT_TOKEN_TTL", "15m")
	assert.Equal(t, 15*time.Minute, durationEnvOr("JWT_TOKEN_TTL", time.Hour))

	t.Setenv("JWT_TOKEN_TTL", "soon")
	assert.Equal(t, time.Hour, durationEnvOr("JWT_TOKEN_TTL", time.Hour))

	t.Setenv("JWT_TOKEN_TTL", "")
	assert.Equal(t, time.Hour, durationEnvOr("JWT_TOKEN_TTL", time.Hour))
}
