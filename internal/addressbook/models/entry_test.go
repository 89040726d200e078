package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dab/pkg/domain"
)

func TestKeyLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want bool
	}{
		{"owner dominates", Key{Owner: "alice", Name: "z"}, Key{Owner: "bob", Name: "a"}, true},
		{"same owner by name", Key{Owner: "alice", Name: "a"}, Key{Owner: "alice", Name: "b"}, true},
		{"equal keys", Key{Owner: "alice", Name: "a"}, Key{Owner: "alice", Name: "a"}, false},
		{"empty name sorts first", Key{Owner: "alice", Name: ""}, Key{Owner: "alice", Name: "a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Less(tt.b))
		})
	}
}

func TestAddressLookupJSON(t *testing.T) {
	t.Run("miss renders null target", func(t *testing.T) {
		out, err := json.Marshal(AddressLookup{Name: "xtc"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"canister_name":"xtc","canister_id":null}`, string(out))
	})

	t.Run("hit renders target", func(t *testing.T) {
		target := id.Identity("aanaa-xaaaa")
		lookup := AddressLookup{Name: "xtc", TargetID: &target}
		assert.True(t, lookup.Found())
		out, err := json.Marshal(lookup)
		require.NoError(t, err)
		assert.JSONEq(t, `{"canister_name":"xtc","canister_id":"aanaa-xaaaa"}`, string(out))
	})
}
