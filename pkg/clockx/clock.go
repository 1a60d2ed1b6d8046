package clockx

import "errors"

// ErrExhausted is returned by Sweep when no slot was claimed within two
// full revolutions of the hand.
var ErrExhausted = errors.New("clockx: sweep exhausted")

// Clock is the rotating hand of a CLOCK (second-chance) replacer over
// slot IDs [0..capacity). The per-slot state (ref bit, pins) lives with
// the caller; Clock only owns the hand position and the sweep bound.
type Clock struct {
	hand int
	n    int
}

// New returns a clock whose first Advance lands on slot 0.
func New(capacity int) *Clock {
	if capacity <= 0 {
		capacity = 1
	}
	return &Clock{hand: capacity - 1, n: capacity}
}

func (c *Clock) Capacity() int { return c.n }

// Hand is the slot the hand currently points at.
func (c *Clock) Hand() int { return c.hand }

// Advance moves the hand to the next slot (circular) and returns it.
func (c *Clock) Advance() int {
	c.hand = (c.hand + 1) % c.n
	return c.hand
}

// Visitor inspects one slot. It returns true to claim the slot, false to
// move on. A non-nil error aborts the sweep with the hand left on slot.
type Visitor func(slot int) (claim bool, err error)

// Sweep advances the hand at most 2*capacity times, calling visit on each
// slot, and returns the first claimed slot.
func (c *Clock) Sweep(visit Visitor) (int, error) {
	// Up to 2 sweeps: the first may only clear ref bits.
	for i, end := 0, 2*c.n; i < end; i++ {
		slot := c.Advance()
		claim, err := visit(slot)
		if err != nil {
			return -1, err
		}
		if claim {
			return slot, nil
		}
	}
	return -1, ErrExhausted
}
