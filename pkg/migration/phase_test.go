package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePhase(t *testing.T) {
	for _, valid := range []string{
		"primary_only", "dual_write_primary_read",
		"dual_write_secondary_read", "secondary_only",
	} {
		p, err := ParsePhase(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, p.String())
	}

	_, err := ParsePhase("dual_write")
	assert.Error(t, err)
	_, err = ParsePhase("")
	assert.Error(t, err)
}

func TestPhaseRouting(t *testing.T) {
	tests := []struct {
		phase           Phase
		writesPrimary   bool
		writesSecondary bool
		dualWrite       bool
		readsSecondary  bool
	}{
		{PrimaryOnly, true, false, false, false},
		{DualWritePrimaryRead, true, true, true, false},
		{DualWriteSecondaryRead, true, true, true, true},
		{SecondaryOnly, false, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.phase.String(), func(t *testing.T) {
			assert.Equal(t, tt.writesPrimary, tt.phase.WritesPrimary())
			assert.Equal(t, tt.writesSecondary, tt.phase.WritesSecondary())
			assert.Equal(t, tt.dualWrite, tt.phase.DualWrite())
			assert.Equal(t, tt.readsSecondary, tt.phase.ReadsSecondary())
		})
	}
}

func TestControllerTransitions(t *testing.T) {
	c := NewController(PrimaryOnly)
	assert.Equal(t, PrimaryOnly, c.Phase())

	c.SetPhase(DualWritePrimaryRead)
	assert.Equal(t, DualWritePrimaryRead, c.Phase())

	// Rollback is allowed.
	c.SetPhase(PrimaryOnly)
	assert.Equal(t, PrimaryOnly, c.Phase())
}
