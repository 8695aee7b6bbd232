package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_Next(t *testing.T) {
	tests := []struct {
		phase    Phase
		wantNext Phase
		wantOK   bool
	}{
		{Phase1, Phase2, true},
		{Phase2, PhaseFunded, true},
		{PhaseFunded, "", false},
		{Phase("PHASE_9"), "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			next, ok := tt.phase.Next()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantNext, next)
			assert.Equal(t, !tt.wantOK, tt.phase.IsTerminal())
		})
	}
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase(" phase_2 ")
	require.NoError(t, err)
	assert.Equal(t, Phase2, p)

	_, err = ParsePhase("evaluation")
	assert.Error(t, err)
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide("sell")
	require.NoError(t, err)
	assert.Equal(t, Sell, side)

	_, err = ParseSide("balance")
	assert.Error(t, err)
}

func TestPhases_ReturnsCopy(t *testing.T) {
	ps := Phases()
	ps[0] = PhaseFunded
	assert.Equal(t, []Phase{Phase1, Phase2, PhaseFunded}, Phases())
}
