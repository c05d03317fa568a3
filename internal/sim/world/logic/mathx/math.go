package mathx

import "hash/fnv"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Manhattan is the L1 distance of (x,y) from the origin.
func Manhattan(x, y int) int { return AbsInt(x) + AbsInt(y) }

// Chebyshev is the ring index of (x,y) around the origin.
func Chebyshev(x, y int) int { return MaxInt(AbsInt(x), AbsInt(y)) }

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// SeedFor derives a stable per-world rng seed from a base seed and a world id.
func SeedFor(seed int64, worldID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(worldID))
	return int64(mix64(uint64(seed) ^ h.Sum64()))
}
