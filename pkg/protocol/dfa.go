package protocol

// State is one state of the per-connection protocol DFA. The server and the
// client each track their own copy of the conversation state: the server
// transitions on the replies it sends, the client on the replies it receives.
type State uint8

const (
	StateVersion State = iota
	StateUsername
	StatePassword
	StateAccount
	StateInProgress
	StateEnterBets
	StateWaitForTurn
	StateTurn
	StateWaitForDealer

	// StateClosed is the terminal pseudo-state entered when the
	// connection is torn down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateVersion:
		return "VERSION"
	case StateUsername:
		return "USERNAME"
	case StatePassword:
		return "PASSWORD"
	case StateAccount:
		return "ACCOUNT"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateEnterBets:
		return "ENTER_BETS"
	case StateWaitForTurn:
		return "WAIT_FOR_TURN"
	case StateTurn:
		return "TURN"
	case StateWaitForDealer:
		return "WAIT_FOR_DEALER"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// AtTable reports whether s is one of the seated (game) states.
func (s State) AtTable() bool {
	switch s {
	case StateInProgress, StateEnterBets, StateWaitForTurn, StateTurn, StateWaitForDealer:
		return true
	}
	return false
}

// Accepts reports whether cmd is legal in state s. Quit is legal everywhere.
// Commands outside the gate draw a 5-0-0 or 5-1-0 reply and no state change.
func Accepts(s State, cmd Command) bool {
	if _, ok := cmd.(Quit); ok {
		return true
	}
	switch s {
	case StateVersion:
		_, ok := cmd.(Version)
		return ok
	case StateUsername:
		_, ok := cmd.(User)
		return ok
	case StatePassword:
		_, ok := cmd.(Pass)
		return ok
	case StateAccount:
		switch cmd.(type) {
		case GetBalance, UpdateBalance, GetTables, AddTable, RemoveTable, JoinTable:
			return true
		}
	case StateInProgress, StateWaitForTurn, StateWaitForDealer:
		switch cmd.(type) {
		case GetBalance, UpdateBalance, LeaveTable, Chat:
			return true
		}
	case StateEnterBets:
		switch cmd.(type) {
		case GetBalance, UpdateBalance, LeaveTable, Chat, Bet:
			return true
		}
	case StateTurn:
		switch cmd.(type) {
		case GetBalance, UpdateBalance, LeaveTable, Chat, Hit, Stand, DoubleDown:
			return true
		}
	}
	return false
}

// ClientNext returns the state a client moves to after receiving a response
// with reply code rc while in state s. The same transition table drives the
// server side, inverted: the server applies it to the replies it sends.
func ClientNext(s State, rc ReplyCode) State {
	// Being kicked or leaving the table applies from every seated state.
	if s.AtTable() && (rc == RCLeftTable || rc == RCTableClosing) {
		return StateAccount
	}

	switch s {
	case StateVersion:
		switch rc {
		case RCVersionOK:
			return StateUsername
		case RCVersionBad:
			return StateClosed
		}
	case StateUsername:
		if rc == RCNeedPassword {
			return StatePassword
		}
	case StatePassword:
		switch rc {
		case RCAuthOK:
			return StateAccount
		case RCAuthFailed:
			return StateUsername
		}
	case StateAccount:
		switch rc {
		case RCJoinedTable:
			return StateEnterBets
		case RCRoundInfo:
			return StateInProgress
		}
	case StateInProgress:
		if rc == RCJoinedTable {
			return StateEnterBets
		}
	case StateEnterBets:
		switch rc {
		case RCActionOK:
			return StateWaitForTurn
		case RCTimeout:
			return StateInProgress
		}
	case StateWaitForTurn:
		switch rc {
		case RCYourTurn:
			return StateTurn
		case RCCardBlackjack:
			return StateWaitForDealer
		}
	case StateTurn:
		switch rc {
		case RCActionOK, RCCardBust, RCCardDoubleDown, RCCardBlackjack, RCCardTwentyOne, RCTimeout:
			return StateWaitForDealer
		}
	case StateWaitForDealer:
		switch rc {
		case RCRoundOver, RCWinnings:
			return StateEnterBets
		}
	}
	return s
}
