// Package blackjack implements the game engine behind the Casino Blackjack
// Protocol: decks, hand valuation, per-player round state, and the table
// round loop.
package blackjack

import (
	"math/rand"

	"github.com/stephen-hansen/cbp/pkg/protocol"
)

var ranks = []byte{'A', '2', '3', '4', '5', '6', '7', '8', '9', 'T', 'J', 'Q', 'K'}
var suits = []byte{'H', 'C', 'D', 'S'}

// CardValue returns the hard value of a single card: aces count 1, faces and
// tens count 10.
func CardValue(rank byte) uint8 {
	switch rank {
	case 'A':
		return 1
	case 'T', 'J', 'Q', 'K':
		return 10
	default:
		return rank - '0'
	}
}

// HandValues computes the soft and hard values of a hand. Hard counts every
// ace as 1; soft counts the first ace as 11 (soft == hard when the hand has
// no ace).
func HandValues(hand []protocol.Card) (soft, hard uint8) {
	hasAce := false
	total := 0
	for _, c := range hand {
		total += int(CardValue(c.Rank))
		if c.Rank == 'A' {
			hasAce = true
		}
	}
	if total > 255 {
		total = 255
	}
	hard = uint8(total)
	soft = hard
	if hasAce && total+10 <= 255 {
		soft = uint8(total + 10)
	}
	return soft, hard
}

// BestValue is the value a hand settles at: the soft value when it does not
// bust, the hard value otherwise.
func BestValue(soft, hard uint8) uint8 {
	if soft <= 21 {
		return soft
	}
	return hard
}

// IsNatural reports whether hand is a natural blackjack: exactly two cards
// totalling 21.
func IsNatural(hand []protocol.Card) bool {
	if len(hand) != 2 {
		return false
	}
	soft, hard := HandValues(hand)
	return BestValue(soft, hard) == 21
}

// Deck is a shoe of 52 x numDecks cards. Cards are drawn from the tail; an
// exhausted shoe is rebuilt and reshuffled.
type Deck struct {
	cards    []protocol.Card
	numDecks int
	rng      *rand.Rand
}

// NewDeck builds a shuffled shoe of numDecks standard decks using rng.
func NewDeck(numDecks int, rng *rand.Rand) *Deck {
	d := &Deck{
		cards:    make([]protocol.Card, 0, 52*numDecks),
		numDecks: numDecks,
		rng:      rng,
	}
	d.refill()
	return d
}

func (d *Deck) refill() {
	d.cards = d.cards[:0]
	for i := 0; i < d.numDecks; i++ {
		for _, suit := range suits {
			for _, rank := range ranks {
				d.cards = append(d.cards, protocol.Card{Rank: rank, Suit: suit})
			}
		}
	}
	d.Shuffle()
}

// Shuffle applies a uniform random permutation to the remaining cards.
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Draw removes and returns the top (tail) card, rebuilding the shoe first if
// it is empty.
func (d *Deck) Draw() protocol.Card {
	if len(d.cards) == 0 {
		d.refill()
	}
	card := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return card
}

// Size returns the number of cards remaining in the shoe.
func (d *Deck) Size() int {
	return len(d.cards)
}
