package authflow

import "unicode"

// Strength buckets a candidate password for the setup form's meter.
type Strength int

const (
	TooShort Strength = iota
	Weak
	Medium
	Strong
	VeryStrong
)

func (s Strength) String() string {
	switch s {
	case TooShort:
		return "too-short"
	case Weak:
		return "weak"
	case Medium:
		return "medium"
	case Strong:
		return "strong"
	case VeryStrong:
		return "very-strong"
	}
	return "unknown"
}

const minPasswordLength = 8

// ScorePassword buckets a password by length, character-class variety, and
// the absence of runs. Anything under 8 characters is TooShort outright; a
// run of three identical characters costs one bucket.
func ScorePassword(password string) Strength {
	runes := []rune(password)
	if len(runes) < minPasswordLength {
		return TooShort
	}

	var lower, upper, digit, symbol bool
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	score := 0
	for _, present := range []bool{lower, upper, digit, symbol} {
		if present {
			score++
		}
	}
	if len(runes) >= 12 {
		score++
	}
	if len(runes) >= 16 {
		score++
	}
	if hasTripleRepeat(runes) {
		score--
	}

	switch {
	case score <= 1:
		return Weak
	case score == 2:
		return Medium
	case score <= 4:
		return Strong
	default:
		return VeryStrong
	}
}

func hasTripleRepeat(runes []rune) bool {
	for i := 2; i < len(runes); i++ {
		if runes[i] == runes[i-1] && runes[i] == runes[i-2] {
			return true
		}
	}
	return false
}
