package dice

// ways2D6AtLeast[n] is the number of the 36 two-die outcomes with sum >= n.
var ways2D6AtLeast = map[int]int{
	2: 36, 3: 35, 4: 33, 5: 30, 6: 26, 7: 21, 8: 15, 9: 10, 10: 6, 11: 3, 12: 1,
}

// ProbabilityAtLeast returns P(2d6 >= tn). A target number of 2 or lower
// always succeeds and 13 or higher never does.
func ProbabilityAtLeast(tn int) float64 {
	switch {
	case tn <= 2:
		return 1
	case tn >= 13:
		return 0
	}
	return float64(ways2D6AtLeast[tn]) / 36
}

// Succeeds reports whether a 2d6 roll meets a target number, applying the
// same clamping as ProbabilityAtLeast.
func Succeeds(roll, tn int) bool {
	switch {
	case tn <= 2:
		return true
	case tn >= 13:
		return false
	}
	return roll >= tn
}
