// Package dice implements the seeded 2d6 rolls used by combat resolution.
//
// Every roll made while building one transaction comes from a roller derived
// from the session seed and the sequence number of the first event in that
// transaction, so replaying a log never needs to re-roll.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Roller produces d6 results from a deterministic source.
type Roller struct {
	rng   *rand.Rand
	rolls int
}

// New creates a roller seeded with seed.
func New(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// ForSequence derives the roller used for the transaction that starts at seq.
// The same (seed, seq) pair always yields the same rolls.
func ForSequence(seed int64, seq int) *Roller {
	return New(mix(seed, uint64(seq)))
}

// D6 rolls a single six-sided die.
func (r *Roller) D6() int {
	r.rolls++
	return r.rng.Intn(6) + 1
}

// Roll2D6 rolls two dice and returns both faces.
func (r *Roller) Roll2D6() (int, int) {
	return r.D6(), r.D6()
}

// Sum2D6 rolls two dice and returns their sum.
func (r *Roller) Sum2D6() int {
	a, b := r.Roll2D6()
	return a + b
}

// Rolls returns how many dice this roller has produced.
func (r *Roller) Rolls() int {
	return r.rolls
}

// NewSeed generates a session seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// mix is a splitmix64 finalizer over seed and seq.
func mix(seed int64, seq uint64) int64 {
	z := uint64(seed) + seq*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}
