package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	s, err := ParseState("shipped")
	require.NoError(t, err)
	assert.Equal(t, StateShipped, s)

	s, err = ParseState(" Refunded ")
	require.NoError(t, err)
	assert.Equal(t, StateRefunded, s)

	_, err = ParseState("LOST")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]State]bool{
		{StatePending, StateConfirmed}:    true,
		{StatePending, StateCancelled}:    true,
		{StateConfirmed, StateProcessing}: true,
		{StateConfirmed, StateCancelled}:  true,
		{StateProcessing, StateShipped}:   true,
		{StateProcessing, StateCancelled}: true,
		{StateShipped, StateDelivered}:    true,
		{StateDelivered, StateRefunded}:   true,
	}

	for _, from := range AllStates() {
		for _, to := range AllStates() {
			want := allowed[[2]State{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesNeverRegress(t *testing.T) {
	for _, from := range []State{StateCancelled, StateRefunded} {
		for _, to := range AllStates() {
			assert.False(t, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StateDelivered.IsTerminal())
	assert.False(t, StateShipped.IsTerminal())
}
