package validation

// IsLotMultiple reports whether amount is a positive multiple of lotSize.
func IsLotMultiple(amount, lotSize int64) bool {
	if amount <= 0 || lotSize <= 0 {
		return false
	}
	return amount%lotSize == 0
}

// DeltaInBounds reports whether delta lies within [floor, max].
func DeltaInBounds(delta, floor, max float64) bool {
	return delta >= floor && delta <= max
}

// ValidDeltaBounds reports whether the configured bounds are consistent.
func ValidDeltaBounds(floor, max float64) bool {
	return floor >= 0 && floor <= max
}

// ValidCapPct reports whether an investor cap percentage is usable
// (0 means uncapped).
func ValidCapPct(pct float64) bool {
	return pct >= 0 && pct <= 1
}
