package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
)

// ReplyCode is the three-octet hierarchical code heading every response.
// RC1 is the outcome class (1 informational, 2 positive complete, 3 positive
// intermediate, 4 negative transient, 5 negative permanent), RC2 the
// subsystem (0 generic, 1 blackjack), RC3 the specific code.
type ReplyCode struct {
	RC1, RC2, RC3 uint8
}

func (rc ReplyCode) String() string {
	return fmt.Sprintf("%d-%d-%d", rc.RC1, rc.RC2, rc.RC3)
}

// Reply codes the server emits.
var (
	RCVersionOK      = ReplyCode{2, 0, 1}
	RCVersionBad     = ReplyCode{5, 0, 1}
	RCNeedPassword   = ReplyCode{3, 0, 0}
	RCAuthOK         = ReplyCode{2, 0, 2}
	RCAuthFailed     = ReplyCode{5, 0, 2}
	RCBalance        = ReplyCode{2, 0, 3}
	RCBalanceUpdated = ReplyCode{2, 0, 0}
	RCBadCommand     = ReplyCode{5, 0, 0}

	RCTableList      = ReplyCode{2, 1, 1}
	RCTableAdded     = ReplyCode{2, 1, 4}
	RCTableRemoved   = ReplyCode{2, 1, 0}
	RCNoTables       = ReplyCode{4, 1, 1}
	RCNoSuchTable    = ReplyCode{4, 1, 2}
	RCTableFull      = ReplyCode{4, 1, 3}
	RCTableClosing   = ReplyCode{4, 1, 4}
	RCJoinedTable    = ReplyCode{3, 1, 0}
	RCRoundInfo      = ReplyCode{1, 1, 0}
	RCActionOK       = ReplyCode{2, 1, 0}
	RCLeftTable      = ReplyCode{2, 1, 5}
	RCBadGameCommand = ReplyCode{5, 1, 0}
	RCChat           = ReplyCode{1, 1, 5}
	RCTimeout        = ReplyCode{1, 1, 7}

	RCCardDealt      = ReplyCode{1, 1, 1}
	RCCardBust       = ReplyCode{1, 1, 2}
	RCCardDoubleDown = ReplyCode{1, 1, 3}
	RCCardBlackjack  = ReplyCode{1, 1, 4}
	RCCardTwentyOne  = ReplyCode{1, 1, 6}
	RCYourTurn       = ReplyCode{3, 1, 2}

	RCRoundOver = ReplyCode{3, 1, 3}
	RCWinnings  = ReplyCode{3, 1, 4}
)

// Card hand holder values.
const (
	HolderDealer uint8 = 0
	HolderPlayer uint8 = 1
)

// Card is one playing card on the wire: ASCII rank in
// {A,2,3,4,5,6,7,8,9,T,J,Q,K} and ASCII suit in {H,C,D,S}.
type Card struct {
	Rank byte
	Suit byte
}

func (c Card) String() string {
	return string([]byte{c.Rank, c.Suit})
}

// Response is a single server-to-client PDU. Like Command, the set of
// implementations is closed.
type Response interface {
	// Code returns the reply code triple for the PDU.
	Code() ReplyCode

	// appendBody appends the response body wire encoding to buf.
	appendBody(buf []byte) []byte
}

// VersionResponse answers the VERSION handshake. RC1 2 accepts, 5 rejects;
// either way it carries the server's version.
type VersionResponse struct {
	RC      ReplyCode
	Version uint32
}

// ASCIIResponse is the catch-all response: a text block ending in a blank
// line. Body holds the newline-terminated content lines.
type ASCIIResponse struct {
	RC   ReplyCode
	Body string
}

// BalanceResponse carries the account balance (2-0-3).
type BalanceResponse struct {
	Balance uint32
}

// TableData is one entry of a table listing.
type TableData struct {
	TableID  uint16
	Settings string
}

// ListTablesResponse carries the table listing (2-1-1).
type ListTablesResponse struct {
	Tables []TableData
}

// AddTableResponse acknowledges table creation with the new id (2-1-4).
type AddTableResponse struct {
	TableID uint16
}

// JoinTableResponse seats the client at a table and describes its settings
// (3-1-0).
type JoinTableResponse struct {
	Settings string
}

// CardHandResponse reports a full hand after a deal, hit, double down, turn
// start, or dealer draw. Soft counts the first ace as 11, hard counts every
// ace as 1.
type CardHandResponse struct {
	RC     ReplyCode
	Holder uint8
	Soft   uint8
	Hard   uint8
	Cards  []Card
}

// WinningsResponse reports the round payout (3-1-3 or 3-1-4).
type WinningsResponse struct {
	RC       ReplyCode
	Winnings uint32
}

func (r VersionResponse) Code() ReplyCode  { return r.RC }
func (r ASCIIResponse) Code() ReplyCode    { return r.RC }
func (BalanceResponse) Code() ReplyCode    { return RCBalance }
func (ListTablesResponse) Code() ReplyCode { return RCTableList }
func (AddTableResponse) Code() ReplyCode   { return RCTableAdded }
func (JoinTableResponse) Code() ReplyCode  { return RCJoinedTable }
func (r CardHandResponse) Code() ReplyCode { return r.RC }
func (r WinningsResponse) Code() ReplyCode { return r.RC }

func (r VersionResponse) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint32(buf, r.Version)
}

func (r ASCIIResponse) appendBody(buf []byte) []byte {
	return append(append(buf, r.Body...), '\n')
}

func (r BalanceResponse) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint32(buf, r.Balance)
}

func (r ListTablesResponse) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Tables)))
	for _, td := range r.Tables {
		buf = binary.BigEndian.AppendUint16(buf, td.TableID)
		buf = append(append(buf, td.Settings...), '\n')
	}
	return buf
}

func (r AddTableResponse) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint16(buf, r.TableID)
}

func (r JoinTableResponse) appendBody(buf []byte) []byte {
	return append(append(buf, r.Settings...), '\n')
}

func (r CardHandResponse) appendBody(buf []byte) []byte {
	buf = append(buf, r.Holder, r.Soft, r.Hard, uint8(len(r.Cards)))
	for _, c := range r.Cards {
		buf = append(buf, c.Rank, c.Suit)
	}
	return buf
}

func (r WinningsResponse) appendBody(buf []byte) []byte {
	return binary.BigEndian.AppendUint32(buf, r.Winnings)
}

// EncodeResponse serializes resp into its wire form: the reply code triple
// followed by the per-class body.
func EncodeResponse(resp Response) []byte {
	rc := resp.Code()
	buf := make([]byte, 0, 16)
	buf = append(buf, rc.RC1, rc.RC2, rc.RC3)
	return resp.appendBody(buf)
}

// isCardHandCode reports whether rc frames a CardHandResponse body.
func isCardHandCode(rc ReplyCode) bool {
	if rc.RC1 == 1 && rc.RC2 == 1 && rc.RC3 >= 1 && rc.RC3 <= 6 && rc.RC3 != 5 {
		return true
	}
	return rc == RCYourTurn
}

// ReadResponse reads exactly one response PDU from r, dispatching the body
// shape on the full reply code triple. Unrecognized triples decode as ASCII
// blocks.
func ReadResponse(r *bufio.Reader) (Response, error) {
	var header [3]byte
	if _, err := readFull(r, header[:]); err != nil {
		return nil, err
	}
	rc := ReplyCode{header[0], header[1], header[2]}

	switch {
	case (rc.RC1 == 2 || rc.RC1 == 5) && rc.RC2 == 0 && rc.RC3 == 1:
		v, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		return VersionResponse{RC: rc, Version: v}, nil

	case rc == RCBalance:
		v, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		return BalanceResponse{Balance: v}, nil

	case rc == RCTableList:
		count, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		tables := make([]TableData, 0, count)
		for i := uint16(0); i < count; i++ {
			id, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			settings, err := readBlock(r, MaxSettingsLen)
			if err != nil {
				return nil, err
			}
			tables = append(tables, TableData{TableID: id, Settings: settings})
		}
		return ListTablesResponse{Tables: tables}, nil

	case rc == RCTableAdded:
		id, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		return AddTableResponse{TableID: id}, nil

	case rc == RCJoinedTable:
		settings, err := readBlock(r, MaxSettingsLen)
		if err != nil {
			return nil, err
		}
		return JoinTableResponse{Settings: settings}, nil

	case isCardHandCode(rc):
		var fixed [4]byte
		if _, err := readFull(r, fixed[:]); err != nil {
			return nil, err
		}
		n := int(fixed[3])
		cards := make([]Card, 0, n)
		for i := 0; i < n; i++ {
			var cb [2]byte
			if _, err := readFull(r, cb[:]); err != nil {
				return nil, err
			}
			cards = append(cards, Card{Rank: cb[0], Suit: cb[1]})
		}
		return CardHandResponse{
			RC:     rc,
			Holder: fixed[0],
			Soft:   fixed[1],
			Hard:   fixed[2],
			Cards:  cards,
		}, nil

	case rc.RC1 == 3 && rc.RC2 == 1 && (rc.RC3 == 3 || rc.RC3 == 4):
		v, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		return WinningsResponse{RC: rc, Winnings: v}, nil
	}

	body, err := readBlock(r, 8192)
	if err != nil {
		return nil, err
	}
	return ASCIIResponse{RC: rc, Body: body}, nil
}
