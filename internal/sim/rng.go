package sim

// zeroSeedSubstitute replaces a zero seed, which would lock xorshift at zero forever
const zeroSeedSubstitute uint32 = 0x9E3779B9

// Rand is a xorshift32 generator. Every random draw of an Engine comes from
// exactly one Rand so a run is reproducible from its seed.
type Rand struct {
	state uint32
}

// NewRand creates a generator seeded with seed
func NewRand(seed uint32) *Rand {
	r := &Rand{}
	r.Seed(seed)
	return r
}

// Seed resets the generator state
func (r *Rand) Seed(seed uint32) {
	if seed == 0 {
		seed = zeroSeedSubstitute
	}
	r.state = seed
}

// Uint32 advances the stream and returns the raw 32-bit state
func (r *Rand) Uint32() uint32 {
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

// Float64 returns a uniform variate in [0, 1)
func (r *Rand) Float64() float64 {
	return float64(r.Uint32()) / 4294967296.0
}

// Symmetric returns a uniform variate in [-scale, scale)
func (r *Rand) Symmetric(scale float64) float64 {
	return (r.Float64()*2 - 1) * scale
}
