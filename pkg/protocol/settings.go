package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Defaults applied to settings keys missing from a block.
const (
	DefaultMaxPlayers  = 5
	DefaultNumberDecks = 8
	DefaultPayoffHigh  = 3
	DefaultPayoffLow   = 2
	DefaultBetMin      = 25
	DefaultBetMax      = 1000
	DefaultHitSoft17   = true
)

// TableSettings are the immutable parameters of a blackjack table, carried on
// the wire as a key:value settings block.
type TableSettings struct {
	MaxPlayers  int
	NumberDecks int
	PayoffHigh  int
	PayoffLow   int
	BetMin      uint32
	BetMax      uint32
	HitSoft17   bool
}

// DefaultTableSettings returns the settings used when a block specifies
// nothing.
func DefaultTableSettings() TableSettings {
	return TableSettings{
		MaxPlayers:  DefaultMaxPlayers,
		NumberDecks: DefaultNumberDecks,
		PayoffHigh:  DefaultPayoffHigh,
		PayoffLow:   DefaultPayoffLow,
		BetMin:      DefaultBetMin,
		BetMax:      DefaultBetMax,
		HitSoft17:   DefaultHitSoft17,
	}
}

// Valid reports whether the settings satisfy the table invariants.
func (ts TableSettings) Valid() bool {
	return ts.MaxPlayers >= 1 && ts.NumberDecks >= 1 &&
		ts.PayoffHigh > 0 && ts.PayoffLow > 0 &&
		ts.BetMin <= ts.BetMax
}

// Block renders the settings as a wire settings block: newline-terminated
// key:value lines without the closing blank line.
func (ts TableSettings) Block() string {
	var b strings.Builder
	fmt.Fprintf(&b, "max-players:%d\n", ts.MaxPlayers)
	fmt.Fprintf(&b, "number-decks:%d\n", ts.NumberDecks)
	fmt.Fprintf(&b, "payoff:%d-%d\n", ts.PayoffHigh, ts.PayoffLow)
	fmt.Fprintf(&b, "bet-limits:%d-%d\n", ts.BetMin, ts.BetMax)
	fmt.Fprintf(&b, "hit-soft-17:%t\n", ts.HitSoft17)
	return b.String()
}

// ParseTableSettings parses a settings block. Unknown keys and malformed
// values are ignored; missing keys keep their defaults.
func ParseTableSettings(block string) TableSettings {
	ts := DefaultTableSettings()
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "max-players":
			if n, err := strconv.Atoi(value); err == nil && n >= 1 {
				ts.MaxPlayers = n
			}
		case "number-decks":
			if n, err := strconv.Atoi(value); err == nil && n >= 1 {
				ts.NumberDecks = n
			}
		case "payoff":
			if high, low, ok := parsePair(value); ok && high > 0 && low > 0 {
				ts.PayoffHigh, ts.PayoffLow = high, low
			}
		case "bet-limits":
			if min, max, ok := parsePair(value); ok && min >= 0 && min <= max {
				ts.BetMin, ts.BetMax = uint32(min), uint32(max)
			}
		case "hit-soft-17":
			if v, err := strconv.ParseBool(value); err == nil {
				ts.HitSoft17 = v
			}
		}
	}
	return ts
}

// parsePair parses "A-B" into two ints.
func parsePair(value string) (int, int, bool) {
	first, second, ok := strings.Cut(value, "-")
	if !ok {
		return 0, 0, false
	}
	a, err := strconv.Atoi(first)
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(second)
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}
