package jsf

import (
	"math"
	mathrand "math/rand/v2"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Random yields floats in [0, 1)
type Random interface {
	Float64() float64
}

// Seeded is a linear congruential generator. Two generators built from the
// same seed yield the same sequence.
type Seeded struct {
	state float64
}

// NewSeeded returns a generator starting at seed. A zero seed is replaced by 1.
func NewSeeded(seed float64) *Seeded {
	if seed == 0 || math.IsNaN(seed) {
		seed = 1
	}
	return &Seeded{state: seed}
}

// Float64 advances the generator
func (s *Seeded) Float64() float64 {
	s.state = math.Mod(s.state*9301+49297, 233280)
	return s.state / 233280
}

// ParseSeed turns a configured seed into its numeric form. Numeric strings are
// used directly; anything else is hashed.
func ParseSeed(seed string) float64 {
	seed = strings.TrimSpace(seed)
	if f, err := strconv.ParseFloat(seed, 64); err == nil {
		if f == 0 {
			return 1
		}
		return f
	}
	return HashSeed(seed)
}

// HashSeed is the polynomial string hash h = (h<<5) - h + c over UTF-16 code
// units, with the shift operating on 32-bit integers. The result is |h| + 1.
func HashSeed(s string) float64 {
	var h float64
	for _, c := range utf16.Encode([]rune(s)) {
		shifted := toInt32(h) << 5
		h = float64(shifted) - h + float64(c)
	}
	return math.Abs(h) + 1
}

func toInt32(f float64) int32 {
	return int32(uint32(int64(f)))
}

// globalRandom draws from the math/rand/v2 global source
type globalRandom struct{}

func (globalRandom) Float64() float64 { return mathrand.Float64() }

// Unseeded returns a Random backed by math/rand/v2
func Unseeded() Random { return globalRandom{} }

// intn returns an int in [0, n)
func intn(r Random, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(r.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// between returns an int in [lo, hi]
func between(r Random, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + intn(r, hi-lo+1)
}

// reader adapts a Random to io.Reader for uuid generation
type reader struct{ r Random }

func (rd reader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(intn(rd.r, 256))
	}
	return len(p), nil
}
