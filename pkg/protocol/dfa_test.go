package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuitAcceptedEverywhere(t *testing.T) {
	states := []State{
		StateVersion, StateUsername, StatePassword, StateAccount,
		StateInProgress, StateEnterBets, StateWaitForTurn, StateTurn,
		StateWaitForDealer,
	}
	for _, s := range states {
		assert.True(t, Accepts(s, Quit{}), "Quit in %v", s)
	}
}

func TestCommandGate(t *testing.T) {
	tests := []struct {
		state State
		cmd   Command
		want  bool
	}{
		{StateVersion, Version{Version: 1}, true},
		{StateVersion, User{Name: "foo"}, false},
		{StateUsername, User{Name: "foo"}, true},
		{StateUsername, Pass{Password: "bar"}, false},
		{StatePassword, Pass{Password: "bar"}, true},
		{StatePassword, GetBalance{}, false},
		{StateAccount, GetBalance{}, true},
		{StateAccount, UpdateBalance{Delta: 5}, true},
		{StateAccount, GetTables{}, true},
		{StateAccount, AddTable{}, true},
		{StateAccount, RemoveTable{TableID: 1}, true},
		{StateAccount, JoinTable{TableID: 0}, true},
		{StateAccount, Bet{Amount: 1}, false},
		{StateAccount, LeaveTable{}, false},
		{StateInProgress, LeaveTable{}, true},
		{StateInProgress, Chat{Message: "hi"}, true},
		{StateInProgress, Bet{Amount: 1}, false},
		{StateEnterBets, Bet{Amount: 1}, true},
		{StateEnterBets, Hit{}, false},
		{StateWaitForTurn, GetBalance{}, true},
		{StateWaitForTurn, Hit{}, false},
		{StateTurn, Hit{}, true},
		{StateTurn, Stand{}, true},
		{StateTurn, DoubleDown{}, true},
		{StateTurn, JoinTable{TableID: 0}, false},
		{StateWaitForDealer, Chat{Message: "gg"}, true},
		{StateWaitForDealer, Stand{}, false},
		// Insurance/split/surrender decode but no state accepts them.
		{StateTurn, Insurance{Accept: 1}, false},
		{StateTurn, Split{}, false},
		{StateTurn, Surrender{}, false},
	}
	for _, tt := range tests {
		got := Accepts(tt.state, tt.cmd)
		assert.Equal(t, tt.want, got, "%v / %T", tt.state, tt.cmd)
	}
}

func TestClientNextHappyPath(t *testing.T) {
	s := StateVersion
	s = ClientNext(s, RCVersionOK)
	assert.Equal(t, StateUsername, s)
	s = ClientNext(s, RCNeedPassword)
	assert.Equal(t, StatePassword, s)
	s = ClientNext(s, RCAuthOK)
	assert.Equal(t, StateAccount, s)
	s = ClientNext(s, RCJoinedTable)
	assert.Equal(t, StateEnterBets, s)
	s = ClientNext(s, RCActionOK)
	assert.Equal(t, StateWaitForTurn, s)
	s = ClientNext(s, RCYourTurn)
	assert.Equal(t, StateTurn, s)
	s = ClientNext(s, RCCardDealt)
	assert.Equal(t, StateTurn, s, "non-terminal hit stays in TURN")
	s = ClientNext(s, RCCardBust)
	assert.Equal(t, StateWaitForDealer, s)
	s = ClientNext(s, RCWinnings)
	assert.Equal(t, StateEnterBets, s)
}

func TestClientNextAuthFailure(t *testing.T) {
	assert.Equal(t, StateUsername, ClientNext(StatePassword, RCAuthFailed))
	assert.Equal(t, StateClosed, ClientNext(StateVersion, RCVersionBad))
}

func TestClientNextKickedFromAnyTableState(t *testing.T) {
	for _, s := range []State{StateInProgress, StateEnterBets, StateWaitForTurn, StateTurn, StateWaitForDealer} {
		assert.Equal(t, StateAccount, ClientNext(s, RCTableClosing), "kicked from %v", s)
		assert.Equal(t, StateAccount, ClientNext(s, RCLeftTable), "left from %v", s)
	}
}

func TestClientNextBetTimeout(t *testing.T) {
	assert.Equal(t, StateInProgress, ClientNext(StateEnterBets, RCTimeout))
	// Re-admitted at the next round.
	assert.Equal(t, StateEnterBets, ClientNext(StateInProgress, RCJoinedTable))
}

func TestClientNextBlackjackSkipsTurn(t *testing.T) {
	assert.Equal(t, StateWaitForDealer, ClientNext(StateWaitForTurn, RCCardBlackjack))
}

func TestClientNextIgnoresUnrelatedReplies(t *testing.T) {
	// Balance queries are legal mid-game and must not disturb the DFA.
	for _, s := range []State{StateAccount, StateEnterBets, StateTurn, StateWaitForDealer} {
		assert.Equal(t, s, ClientNext(s, RCBalance))
		assert.Equal(t, s, ClientNext(s, RCBalanceUpdated))
	}
}
