package protocol

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readResponseBytes(t *testing.T, wire []byte) (Response, error) {
	t.Helper()
	return ReadResponse(bufio.NewReader(bytes.NewReader(wire)))
}

func TestVersionResponseWire(t *testing.T) {
	wire := EncodeResponse(VersionResponse{RC: RCVersionOK, Version: 1})
	assert.Equal(t, []byte{0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01}, wire)
}

func TestBalanceResponseWire(t *testing.T) {
	wire := EncodeResponse(BalanceResponse{Balance: 1000})
	assert.Equal(t, []byte{0x02, 0x00, 0x03, 0x00, 0x00, 0x03, 0xE8}, wire)
}

func TestResponseRoundTrip(t *testing.T) {
	settings := DefaultTableSettings().Block()
	responses := []Response{
		VersionResponse{RC: RCVersionOK, Version: 1},
		VersionResponse{RC: RCVersionBad, Version: 3},
		ASCIIResponse{RC: RCNeedPassword, Body: "Provide password.\n"},
		ASCIIResponse{RC: RCBadCommand, Body: "Command not accepted at current state.\n"},
		ASCIIResponse{RC: RCActionOK, Body: ""},
		BalanceResponse{Balance: 950},
		ListTablesResponse{Tables: []TableData{
			{TableID: 0, Settings: settings},
			{TableID: 12, Settings: "max-players:2\n"},
		}},
		AddTableResponse{TableID: 3},
		JoinTableResponse{Settings: settings},
		CardHandResponse{RC: RCCardDealt, Holder: HolderPlayer, Soft: 21, Hard: 11,
			Cards: []Card{{'A', 'S'}, {'T', 'H'}}},
		CardHandResponse{RC: RCYourTurn, Holder: HolderPlayer, Soft: 15, Hard: 5,
			Cards: []Card{{'A', 'C'}, {'4', 'D'}}},
		CardHandResponse{RC: RCCardDealt, Holder: HolderDealer, Soft: 19, Hard: 9,
			Cards: []Card{{'9', 'C'}}},
		WinningsResponse{RC: RCWinnings, Winnings: 75},
		WinningsResponse{RC: RCRoundOver, Winnings: 0},
	}
	for _, resp := range responses {
		decoded, err := readResponseBytes(t, EncodeResponse(resp))
		require.NoError(t, err, "%T %v", resp, resp.Code())
		assert.Equal(t, resp, decoded)
	}
}

func TestReadResponseUnknownTripleIsASCII(t *testing.T) {
	// Codes outside the known set must fall back to the ASCII framing.
	wire := []byte{4, 0, 9}
	wire = append(wire, "anything goes\n\n"...)
	resp, err := readResponseBytes(t, wire)
	require.NoError(t, err)
	ascii, ok := resp.(ASCIIResponse)
	require.True(t, ok)
	assert.Equal(t, ReplyCode{4, 0, 9}, ascii.RC)
	assert.Equal(t, "anything goes\n", ascii.Body)
}

func TestReadResponseEmptyTableList(t *testing.T) {
	resp, err := readResponseBytes(t, EncodeResponse(ListTablesResponse{}))
	require.NoError(t, err)
	lt, ok := resp.(ListTablesResponse)
	require.True(t, ok)
	assert.Len(t, lt.Tables, 0)
}

func TestCardHandCodeDispatch(t *testing.T) {
	assert.True(t, isCardHandCode(RCCardDealt))
	assert.True(t, isCardHandCode(RCCardBust))
	assert.True(t, isCardHandCode(RCCardDoubleDown))
	assert.True(t, isCardHandCode(RCCardBlackjack))
	assert.True(t, isCardHandCode(RCCardTwentyOne))
	assert.True(t, isCardHandCode(RCYourTurn))
	// 1-1-5 is the chat broadcast, an ASCII block.
	assert.False(t, isCardHandCode(RCChat))
	assert.False(t, isCardHandCode(RCRoundInfo))
}

func TestReadResponseStream(t *testing.T) {
	var wire []byte
	wire = append(wire, EncodeResponse(ASCIIResponse{RC: RCAuthOK, Body: "Authenticated successfully.\n"})...)
	wire = append(wire, EncodeResponse(BalanceResponse{Balance: 1000})...)

	r := bufio.NewReader(bytes.NewReader(wire))
	resp, err := ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, RCAuthOK, resp.Code())
	resp, err = ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, BalanceResponse{Balance: 1000}, resp)
}
