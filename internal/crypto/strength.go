package crypto

import "unicode"

// Scoring weights. Length contributes up to 40 points, each character
// class 10, and every run of 3+ identical characters costs 10.
const (
	lengthPoints    = 4
	lengthCap       = 40
	classBonus      = 10
	repeatRunLen    = 3
	repeatRunDebits = 10
)

// Score returns a deterministic password strength heuristic in [0,100].
// It backs both the registration minimum and the strength endpoint.
func Score(password string) int {
	if password == "" {
		return 0
	}

	score := len(password) * lengthPoints
	if score > lengthCap {
		score = lengthCap
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if ok {
			score += classBonus
		}
	}

	score -= repeatRunDebits * repeatRuns(password)

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// repeatRuns counts maximal runs of 3 or more identical consecutive runes.
func repeatRuns(s string) int {
	runes := []rune(s)
	runs, runLen := 0, 1
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && runes[i] == runes[i-1] {
			runLen++
			continue
		}
		if runLen >= repeatRunLen {
			runs++
		}
		runLen = 1
	}
	return runs
}
