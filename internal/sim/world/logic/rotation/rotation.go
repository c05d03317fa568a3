package rotation

// NormalizeRotation converts a stored rotation value into a stable
// quarter-turn count in [0,3].
//
// It accepts either quarter-turns (0..3) or degrees (multiples of 90).
func NormalizeRotation(r int) int {
	// Treat large multiples of 90 as degrees.
	if r%90 == 0 && (r > 3 || r < -3) {
		r = r / 90
	}
	r %= 4
	if r < 0 {
		r += 4
	}
	return r
}

// NormalizeDegrees maps any degree value into [0,360).
func NormalizeDegrees(d int) int {
	d %= 360
	if d < 0 {
		d += 360
	}
	return d
}

// QuarterToDegrees converts a quarter-turn count plus a fixed offset into
// a degree value in [0,360).
func QuarterToDegrees(rot, offsetDeg int) int {
	return NormalizeDegrees((rot&3)*90 + offsetDeg)
}
