package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
)

// Command category codes.
const (
	CategoryGeneral   uint8 = 0
	CategoryBlackjack uint8 = 1
)

// General (category 0) command codes.
const (
	CmdVersion       uint8 = 0
	CmdUser          uint8 = 1
	CmdPass          uint8 = 2
	CmdGetBalance    uint8 = 3
	CmdUpdateBalance uint8 = 4
	CmdQuit          uint8 = 5
)

// Blackjack (category 1) command codes.
const (
	CmdGetTables   uint8 = 0
	CmdAddTable    uint8 = 1
	CmdRemoveTable uint8 = 2
	CmdJoinTable   uint8 = 3
	CmdLeaveTable  uint8 = 4
	CmdBet         uint8 = 5
	CmdInsurance   uint8 = 6
	CmdHit         uint8 = 7
	CmdStand       uint8 = 8
	CmdDoubleDown  uint8 = 9
	CmdSplit       uint8 = 10
	CmdSurrender   uint8 = 11
	CmdChat        uint8 = 12
)

// Maximum lengths for the variable-length command bodies, not counting the
// terminating newline(s).
const (
	MaxUserLen     = 32
	MaxPassLen     = 32
	MaxChatLen     = 128
	MaxSettingsLen = 1024
)

var (
	// ErrUnknownCommand is returned when the two-byte header does not name
	// a command this codec knows. The stream cannot be re-synchronized
	// after this error.
	ErrUnknownCommand = errors.New("protocol: unknown command header")

	// ErrFieldTooLong is returned when a newline-terminated field exceeds
	// its maximum length. The offending bytes are consumed through the
	// terminator, so the stream stays usable.
	ErrFieldTooLong = errors.New("protocol: field exceeds maximum length")
)

// Command is a single client-to-server PDU. The set of implementations in
// this package is closed; dispatch is always a type switch.
type Command interface {
	// Header returns the category and command codes for the PDU.
	Header() (category, code uint8)

	// appendBody appends the command body wire encoding to buf.
	appendBody(buf []byte) []byte
}

// Version announces the client's protocol version. First PDU on every
// connection.
type Version struct {
	Version uint32
}

// User carries the username during authentication.
type User struct {
	Name string
}

// Pass carries the password during authentication.
type Pass struct {
	Password string
}

// GetBalance requests the account balance.
type GetBalance struct{}

// UpdateBalance adjusts the account balance by a signed delta.
type UpdateBalance struct {
	Delta int32
}

// Quit ends the session. Legal in every state.
type Quit struct{}

// GetTables requests the table listing.
type GetTables struct{}

// AddTable creates a new table from a settings block. Settings holds the
// key:value lines, each newline terminated, without the blank terminator
// line.
type AddTable struct {
	Settings string
}

// RemoveTable shuts down and deletes a table.
type RemoveTable struct {
	TableID uint16
}

// JoinTable seats the player at a table.
type JoinTable struct {
	TableID uint16
}

// LeaveTable releases the player's seat.
type LeaveTable struct{}

// Bet places a wager for the current round.
type Bet struct {
	Amount uint32
}

// Insurance answers a dealer-blackjack insurance offer. Parsed for wire
// compatibility; no table acts on it.
type Insurance struct {
	Accept uint8
}

// Hit requests one more card during the player's turn.
type Hit struct{}

// Stand ends the player's turn.
type Stand struct{}

// DoubleDown doubles the stake and draws exactly one card.
type DoubleDown struct{}

// Split is parsed for wire compatibility; no table acts on it.
type Split struct{}

// Surrender is parsed for wire compatibility; no table acts on it.
type Surrender struct{}

// Chat broadcasts a message to the player's table.
type Chat struct {
	Message string
}

func (Version) Header() (uint8, uint8)       { return CategoryGeneral, CmdVersion }
func (User) Header() (uint8, uint8)          { return CategoryGeneral, CmdUser }
func (Pass) Header() (uint8, uint8)          { return CategoryGeneral, CmdPass }
func (GetBalance) Header() (uint8, uint8)    { return CategoryGeneral, CmdGetBalance }
func (UpdateBalance) Header() (uint8, uint8) { return CategoryGeneral, CmdUpdateBalance }
func (Quit) Header() (uint8, uint8)          { return CategoryGeneral, CmdQuit }
func (GetTables) Header() (uint8, uint8)     { return CategoryBlackjack, CmdGetTables }
func (AddTable) Header() (uint8, uint8)      { return CategoryBlackjack, CmdAddTable }
func (RemoveTable) Header() (uint8, uint8)   { return CategoryBlackjack, CmdRemoveTable }
func (JoinTable) Header() (uint8, uint8)     { return CategoryBlackjack, CmdJoinTable }
func (LeaveTable) Header() (uint8, uint8)    { return CategoryBlackjack, CmdLeaveTable }
func (Bet) Header() (uint8, uint8)           { return CategoryBlackjack, CmdBet }
func (Insurance) Header() (uint8, uint8)     { return CategoryBlackjack, CmdInsurance }
func (Hit) Header() (uint8, uint8)           { return CategoryBlackjack, CmdHit }
func (Stand) Header() (uint8, uint8)         { return CategoryBlackjack, CmdStand }
func (DoubleDown) Header() (uint8, uint8)    { return CategoryBlackjack, CmdDoubleDown }
func (Split) Header() (uint8, uint8)         { return CategoryBlackjack, CmdSplit }
func (Surrender) Header() (uint8, uint8)     { return CategoryBlackjack, CmdSurrender }
func (Chat) Header() (uint8, uint8)          { return CategoryBlackjack, CmdChat }

func (c Version) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint32(buf, c.Version)
}

func (c User) appendBody(buf []byte) []byte { return append(append(buf, c.Name...), '\n') }

func (c Pass) appendBody(buf []byte) []byte { return append(append(buf, c.Password...), '\n') }

func (GetBalance) appendBody(buf []byte) []byte { return buf }

func (c UpdateBalance) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint32(buf, uint32(c.Delta))
}

func (Quit) appendBody(buf []byte) []byte { return buf }

func (GetTables) appendBody(buf []byte) []byte { return buf }

func (c AddTable) appendBody(buf []byte) []byte {
	// Settings lines are already newline terminated; the blank line closes
	// the block.
	return append(append(buf, c.Settings...), '\n')
}

func (c RemoveTable) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint16(buf, c.TableID)
}

func (c JoinTable) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint16(buf, c.TableID)
}

func (LeaveTable) appendBody(buf []byte) []byte { return buf }

func (c Bet) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint32(buf, c.Amount)
}

func (c Insurance) appendBody(buf []byte) []byte { return append(buf, c.Accept) }

func (Hit) appendBody(buf []byte) []byte        { return buf }
func (Stand) appendBody(buf []byte) []byte      { return buf }
func (DoubleDown) appendBody(buf []byte) []byte { return buf }
func (Split) appendBody(buf []byte) []byte      { return buf }
func (Surrender) appendBody(buf []byte) []byte  { return buf }

func (c Chat) appendBody(buf []byte) []byte { return append(append(buf, c.Message...), '\n') }

// EncodeCommand serializes cmd into its wire form: the two-byte header
// followed by the per-command body.
func EncodeCommand(cmd Command) []byte {
	category, code := cmd.Header()
	buf := make([]byte, 0, 8)
	buf = append(buf, category, code)
	return cmd.appendBody(buf)
}

// ReadCommand reads exactly one command PDU from r. It returns
// ErrUnknownCommand for headers outside the protocol and ErrFieldTooLong for
// oversized ASCII fields; any I/O error is returned as-is and ends the
// session.
func ReadCommand(r *bufio.Reader) (Command, error) {
	var header [2]byte
	if _, err := readFull(r, header[:]); err != nil {
		return nil, err
	}
	category, code := header[0], header[1]

	switch category {
	case CategoryGeneral:
		switch code {
		case CmdVersion:
			v, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			return Version{Version: v}, nil
		case CmdUser:
			name, err := readLine(r, MaxUserLen)
			if err != nil {
				return nil, err
			}
			return User{Name: name}, nil
		case CmdPass:
			pass, err := readLine(r, MaxPassLen)
			if err != nil {
				return nil, err
			}
			return Pass{Password: pass}, nil
		case CmdGetBalance:
			return GetBalance{}, nil
		case CmdUpdateBalance:
			v, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			return UpdateBalance{Delta: int32(v)}, nil
		case CmdQuit:
			return Quit{}, nil
		}
	case CategoryBlackjack:
		switch code {
		case CmdGetTables:
			return GetTables{}, nil
		case CmdAddTable:
			block, err := readBlock(r, MaxSettingsLen)
			if err != nil {
				return nil, err
			}
			return AddTable{Settings: block}, nil
		case CmdRemoveTable:
			id, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			return RemoveTable{TableID: id}, nil
		case CmdJoinTable:
			id, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			return JoinTable{TableID: id}, nil
		case CmdLeaveTable:
			return LeaveTable{}, nil
		case CmdBet:
			amt, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			return Bet{Amount: amt}, nil
		case CmdInsurance:
			accept, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			return Insurance{Accept: accept}, nil
		case CmdHit:
			return Hit{}, nil
		case CmdStand:
			return Stand{}, nil
		case CmdDoubleDown:
			return DoubleDown{}, nil
		case CmdSplit:
			return Split{}, nil
		case CmdSurrender:
			return Surrender{}, nil
		case CmdChat:
			msg, err := readLine(r, MaxChatLen)
			if err != nil {
				return nil, err
			}
			return Chat{Message: msg}, nil
		}
	}
	return nil, fmt.Errorf("%w: category=%d code=%d", ErrUnknownCommand, category, code)
}
