// Package passcheck scores password strength against a fixed policy.
// Scoring is deterministic and offline; breach-database lookups live in
// a separate adapter so this package stays free of I/O.
package passcheck

import (
	"strings"
	"unicode"
)

// Level buckets a numeric score for display and policy decisions.
type Level string

const (
	LevelWeak   Level = "weak"
	LevelFair   Level = "fair"
	LevelGood   Level = "good"
	LevelStrong Level = "strong"
)

// Result is the outcome of a single validation.
type Result struct {
	Score             int             `json:"score"`
	Level             Level           `json:"level"`
	Feedback          []string        `json:"feedback,omitempty"`
	MeetsRequirements bool            `json:"meets_requirements"`
	Details           map[string]bool `json:"details"`
}

const (
	minLength = 8

	penaltyShortish       = 10 // length in [8,12)
	penaltyMissingCase    = 10
	penaltyMissingDigit   = 10
	penaltyMissingSpecial = 10
	penaltyCommon         = 50
	penaltyUserInfo       = 30
	penaltyKeyboardRun    = 20
	penaltySequence       = 15
	penaltyRepeatedRun    = 10

	bonusLong     = 5 // length > 15
	bonusVeryLong = 5 // length > 20
)

// commonPasswords is a small embedded list of the passwords most often
// seen in credential-stuffing feeds. Matching is case-insensitive.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"123456": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"qwerty": {}, "qwerty123": {}, "abc123": {}, "letmein": {},
	"welcome": {}, "welcome1": {}, "admin": {}, "admin123": {},
	"iloveyou": {}, "monkey": {}, "dragon": {}, "sunshine": {},
	"princess": {}, "football": {}, "baseball": {}, "master": {},
	"shadow": {}, "superman": {}, "michael": {}, "trustno1": {},
	"secret": {}, "login": {}, "root": {}, "changeme": {},
}

// keyboardRows holds physical-adjacency runs; any 4+ character substring
// of these (or their reverse) counts as a keyboard pattern.
var keyboardRows = []string{
	"qwertyuiop", "asdfghjkl", "zxcvbnm",
	"1234567890", "0987654321",
}

// Validate scores a candidate password. email and name are optional
// context used to detect user-information leakage; pass "" when unknown.
func Validate(password, email, name string) Result {
	res := Result{
		Score:   100,
		Details: make(map[string]bool),
	}

	if len(password) < minLength {
		res.Score = 0
		res.Level = LevelWeak
		res.Feedback = append(res.Feedback, "password must be at least 8 characters")
		res.Details["min_length"] = false
		return res
	}
	res.Details["min_length"] = true

	if len(password) < 12 {
		res.Score -= penaltyShortish
		res.Feedback = append(res.Feedback, "consider using 12 or more characters")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	res.Details["has_uppercase"] = hasUpper
	res.Details["has_lowercase"] = hasLower
	res.Details["has_digit"] = hasDigit
	res.Details["has_special"] = hasSpecial

	if !hasUpper || !hasLower {
		res.Score -= penaltyMissingCase
		res.Feedback = append(res.Feedback, "use both upper and lower case letters")
	}
	if !hasDigit {
		res.Score -= penaltyMissingDigit
		res.Feedback = append(res.Feedback, "add at least one digit")
	}
	if !hasSpecial {
		res.Score -= penaltyMissingSpecial
		res.Feedback = append(res.Feedback, "add at least one special character")
	}

	lower := strings.ToLower(password)

	if _, ok := commonPasswords[lower]; ok {
		res.Score -= penaltyCommon
		res.Feedback = append(res.Feedback, "this password is too common")
		res.Details["common_password"] = true
	} else {
		res.Details["common_password"] = false
	}

	if leaked := containsUserInfo(lower, email, name); leaked {
		res.Score -= penaltyUserInfo
		res.Feedback = append(res.Feedback, "avoid using your name or email in the password")
		res.Details["contains_user_info"] = true
	} else {
		res.Details["contains_user_info"] = false
	}

	if hasKeyboardRun(lower) {
		res.Score -= penaltyKeyboardRun
		res.Feedback = append(res.Feedback, "avoid keyboard patterns like qwerty or 1234")
		res.Details["keyboard_pattern"] = true
	} else {
		res.Details["keyboard_pattern"] = false
	}

	if hasSequence(lower) {
		res.Score -= penaltySequence
		res.Feedback = append(res.Feedback, "avoid sequential characters like abcd")
		res.Details["sequential_chars"] = true
	} else {
		res.Details["sequential_chars"] = false
	}

	if hasRepeatedRun(password) {
		res.Score -= penaltyRepeatedRun
		res.Feedback = append(res.Feedback, "avoid repeating the same character")
		res.Details["repeated_chars"] = true
	} else {
		res.Details["repeated_chars"] = false
	}

	if len(password) > 15 {
		res.Score += bonusLong
	}
	if len(password) > 20 {
		res.Score += bonusVeryLong
	}

	if res.Score < 0 {
		res.Score = 0
	}
	if res.Score > 100 {
		res.Score = 100
	}

	res.Level = levelFor(res.Score)
	res.MeetsRequirements = res.Details["min_length"] &&
		hasUpper && hasLower && hasDigit && hasSpecial &&
		!res.Details["common_password"]

	return res
}

func levelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelStrong
	case score >= 60:
		return LevelGood
	case score >= 40:
		return LevelFair
	default:
		return LevelWeak
	}
}

// containsUserInfo checks whether the password embeds the local part of
// the email or any name token of 3+ characters.
func containsUserInfo(lowerPassword, email, name string) bool {
	if email != "" {
		local := strings.ToLower(email)
		if at := strings.IndexByte(local, '@'); at > 0 {
			local = local[:at]
		}
		if len(local) >= 3 && strings.Contains(lowerPassword, local) {
			return true
		}
	}
	if name != "" {
		for _, tok := range strings.Fields(strings.ToLower(name)) {
			if len(tok) >= 3 && strings.Contains(lowerPassword, tok) {
				return true
			}
		}
	}
	return false
}

func hasKeyboardRun(lower string) bool {
	for _, row := range keyboardRows {
		for i := 0; i+4 <= len(row); i++ {
			if strings.Contains(lower, row[i:i+4]) {
				return true
			}
		}
	}
	return false
}

// hasSequence detects 4+ character ascending or descending runs of
// letters or digits ("abcd", "9876").
func hasSequence(lower string) bool {
	runes := []rune(lower)
	if len(runes) < 4 {
		return false
	}
	asc, desc := 1, 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1]+1 && isAlnum(runes[i]) && isAlnum(runes[i-1]) {
			asc++
		} else {
			asc = 1
		}
		if runes[i] == runes[i-1]-1 && isAlnum(runes[i]) && isAlnum(runes[i-1]) {
			desc++
		} else {
			desc = 1
		}
		if asc >= 4 || desc >= 4 {
			return true
		}
	}
	return false
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// hasRepeatedRun detects 3+ consecutive identical characters.
func hasRepeatedRun(password string) bool {
	runes := []rune(password)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
