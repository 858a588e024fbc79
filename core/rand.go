package core

import "time"

// RandomSource supplies the pseudo-random numbers used for victim selection
// during work stealing. Every worker gets its own independently seeded
// source, so sources need not be safe for concurrent use.
type RandomSource interface {
	Uint64() uint64

	// IntN returns a value in [0, n). n must be > 0.
	IntN(n int) int
}

// NewRandomSourceFunc builds a RandomSource for the worker with the given
// index. Injected through Config for deterministic tests.
type NewRandomSourceFunc func(workerIndex int) RandomSource

// xorshiftSource is an xorshift64* generator. Victim selection only needs
// decorrelated indices, not cryptographic quality.
type xorshiftSource struct {
	state uint64
}

// NewXorshiftSource returns a seeded xorshift64* source. A zero seed is
// remapped, since xorshift has a fixed point at zero.
func NewXorshiftSource(seed uint64) RandomSource {
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return &xorshiftSource{state: seed}
}

func defaultRandomSource(workerIndex int) RandomSource {
	seed := uint64(time.Now().UnixNano()) ^ (uint64(workerIndex+1) * 0xbf58476d1ce4e5b9)
	return NewXorshiftSource(seed)
}

func (s *xorshiftSource) Uint64() uint64 {
	x := s.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.state = x
	return x * 0x2545f4914f6cdd1d
}

func (s *xorshiftSource) IntN(n int) int {
	if n <= 0 {
		panic("core: IntN requires n > 0")
	}
	return int(s.Uint64() % uint64(n))
}
