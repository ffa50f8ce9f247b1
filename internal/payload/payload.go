package payload

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// Generator produces random decimal-digit payloads from an owned source.
type Generator struct {
	rng *rand.Rand
}

// New returns a generator whose output is fully determined by seed.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))}
}

// NewRandom seeds from the operating system's entropy source.
func NewRandom() *Generator {
	return New(RandomSeed())
}

// RandomSeed reads a seed from crypto/rand.
func RandomSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.Uint64()
	}
	return binary.LittleEndian.Uint64(b[:])
}

// Fork derives an independent generator. Each group draws from its own fork
// so that the number of digits one group consumes cannot shift another.
func (g *Generator) Fork() *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(g.rng.Uint64(), g.rng.Uint64()))}
}

// Generate returns count strings of length uniformly random digits.
func (g *Generator) Generate(length, count int) []string {
	if length < 0 {
		length = 0
	}
	out := make([]string, 0, max(count, 0))
	buf := make([]byte, length)
	for i := 0; i < count; i++ {
		for j := range buf {
			buf[j] = byte('0' + g.rng.IntN(10))
		}
		out = append(out, string(buf))
	}
	return out
}
