package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "dab/pkg/domain"
	dErrors "dab/pkg/domain-errors"
)

func TestCanisterDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		keyName string
		wantErr bool
	}{
		{"name at the limit", strings.Repeat("n", MaxNameLength), false},
		{"name over the limit", strings.Repeat("n", MaxNameLength+1), true},
		{"counts characters not bytes", strings.Repeat("é", MaxNameLength), false},
		{"empty name", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &CanisterDescriptor{Name: tt.keyName, TargetID: "xtc", Standard: "Dank"}
			err := d.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func TestEditRequest_ApplyTo(t *testing.T) {
	newTarget := id.Identity("wicp")
	newStandard := "DIP721"

	t.Run("target only", func(t *testing.T) {
		d := &CanisterDescriptor{Name: "xtc", TargetID: "xtc", Standard: "Dank"}
		EditRequest{TargetID: &newTarget}.ApplyTo(d)
		assert.Equal(t, newTarget, d.TargetID)
		assert.Equal(t, "Dank", d.Standard)
	})

	t.Run("standard only", func(t *testing.T) {
		d := &CanisterDescriptor{Name: "xtc", TargetID: "xtc", Standard: "Dank"}
		EditRequest{Standard: &newStandard}.ApplyTo(d)
		assert.Equal(t, id.Identity("xtc"), d.TargetID)
		assert.Equal(t, newStandard, d.Standard)
	})

	t.Run("target wins when both are set", func(t *testing.T) {
		d := &CanisterDescriptor{Name: "xtc", TargetID: "xtc", Standard: "Dank"}
		EditRequest{TargetID: &newTarget, Standard: &newStandard}.ApplyTo(d)
		assert.Equal(t, newTarget, d.TargetID)
		assert.Equal(t, "Dank", d.Standard)
	})

	t.Run("empty", func(t *testing.T) {
		assert.True(t, EditRequest{}.IsEmpty())
		assert.False(t, EditRequest{Standard: &newStandard}.IsEmpty())
	})
}

func TestClone(t *testing.T) {
	d := &CanisterDescriptor{Name: "xtc", TargetID: "xtc", Standard: "Dank"}
	c := d.Clone()
	c.Standard = "changed"
	assert.Equal(t, "Dank", d.Standard)

	var nilDescriptor *CanisterDescriptor
	assert.Nil(t, nilDescriptor.Clone())
}
