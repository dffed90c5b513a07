// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import (
	"strings"
	"unicode"
)

// ViolationCode identifies a password policy violation.
type ViolationCode string

// Policy violation codes. Callers map these to user-facing messages;
// the core never produces localized text.
const (
	ViolationTooShort     ViolationCode = "too_short"
	ViolationNoUppercase  ViolationCode = "missing_uppercase"
	ViolationNoLowercase  ViolationCode = "missing_lowercase"
	ViolationNoDigit      ViolationCode = "missing_digit"
	ViolationNoSpecial    ViolationCode = "missing_special"
	ViolationCommonPasswd ViolationCode = "common_password"
)

// HintCode identifies an improvement suggestion. Hints are advisory:
// a password may pass the policy and still collect hints.
type HintCode string

// Improvement hint codes.
const (
	HintIncreaseLength HintCode = "increase_length"
	HintAddUppercase   HintCode = "add_uppercase"
	HintAddLowercase   HintCode = "add_lowercase"
	HintAddDigit       HintCode = "add_digit"
	HintAddSpecial     HintCode = "add_special"
	HintMixMoreClasses HintCode = "mix_more_classes"
	HintAvoidCommon    HintCode = "avoid_common_words"
)

// StrengthLabel is a three-tier strength classification.
type StrengthLabel string

// Strength labels by score: <60 weak, 60-79 medium, >=80 strong.
const (
	StrengthWeak   StrengthLabel = "weak"
	StrengthMedium StrengthLabel = "medium"
	StrengthStrong StrengthLabel = "strong"
)

// Score bonuses. The scale is additive and clamped to 100.
const (
	scoreMinLength      = 20
	scorePerClass       = 15
	scoreLengthBonusHi  = 10 // length >= 12
	scoreLengthBonusLo  = 5  // length >= 10
	scoreAllClasses     = 10
	scoreThreeClasses   = 5
	lengthBonusHiChars  = 12
	lengthBonusLoChars  = 10
	strengthMediumFloor = 60
	strengthStrongFloor = 80
)

// PasswordPolicy configures password acceptance rules.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	DenyCommon     bool
}

// DefaultPasswordPolicy returns the policy applied when no configuration
// overrides it: minimum 8 characters, all four classes, denylist on.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		DenyCommon:     true,
	}
}

// ValidationResult is the structured outcome of a policy check.
type ValidationResult struct {
	Valid      bool
	Violations []ViolationCode
	Hints      []HintCode
	Score      int
	Strength   StrengthLabel
}

// ValidatePolicy checks a password against a policy and scores it.
// Violations are ordered (length, classes, denylist); hints are ordered
// and deduplicated. The second return mirrors Valid for callers that only
// branch on pass/fail.
func ValidatePolicy(password string, policy PasswordPolicy) (ValidationResult, bool) {
	var result ValidationResult

	hasUpper, hasLower, hasDigit, hasSpecial := characterClasses(password)
	classes := 0
	for _, present := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if present {
			classes++
		}
	}

	length := len(password)
	meetsLength := length >= policy.MinLength

	if !meetsLength {
		result.Violations = append(result.Violations, ViolationTooShort)
	}
	if policy.RequireUpper && !hasUpper {
		result.Violations = append(result.Violations, ViolationNoUppercase)
	}
	if policy.RequireLower && !hasLower {
		result.Violations = append(result.Violations, ViolationNoLowercase)
	}
	if policy.RequireDigit && !hasDigit {
		result.Violations = append(result.Violations, ViolationNoDigit)
	}
	if policy.RequireSpecial && !hasSpecial {
		result.Violations = append(result.Violations, ViolationNoSpecial)
	}
	if policy.DenyCommon && isCommonPassword(password) {
		result.Violations = append(result.Violations, ViolationCommonPasswd)
	}

	hints := newHintSet()
	if length < lengthBonusHiChars {
		hints.add(HintIncreaseLength)
	}
	if !hasUpper {
		hints.add(HintAddUppercase)
	}
	if !hasLower {
		hints.add(HintAddLowercase)
	}
	if !hasDigit {
		hints.add(HintAddDigit)
	}
	if !hasSpecial {
		hints.add(HintAddSpecial)
	}
	if policy.DenyCommon && isCommonPassword(password) {
		hints.add(HintAvoidCommon)
	}

	score := 0
	if meetsLength {
		score += scoreMinLength
	}
	score += classes * scorePerClass
	switch {
	case length >= lengthBonusHiChars:
		score += scoreLengthBonusHi
	case length >= lengthBonusLoChars:
		score += scoreLengthBonusLo
	}
	switch classes {
	case 4:
		score += scoreAllClasses
	case 3:
		score += scoreThreeClasses
		hints.add(HintMixMoreClasses)
	}
	if score > 100 {
		score = 100
	}

	result.Score = score
	result.Strength = strengthFor(score)
	result.Hints = hints.ordered
	result.Valid = len(result.Violations) == 0

	return result, result.Valid
}

func strengthFor(score int) StrengthLabel {
	switch {
	case score >= strengthStrongFloor:
		return StrengthStrong
	case score >= strengthMediumFloor:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

func characterClasses(password string) (hasUpper, hasLower, hasDigit, hasSpecial bool) {
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
	return hasUpper, hasLower, hasDigit, hasSpecial
}

// hintSet keeps insertion order while deduplicating.
type hintSet struct {
	seen    map[HintCode]struct{}
	ordered []HintCode
}

func newHintSet() *hintSet {
	return &hintSet{seen: make(map[HintCode]struct{})}
}

func (s *hintSet) add(h HintCode) {
	if _, ok := s.seen[h]; ok {
		return
	}
	s.seen[h] = struct{}{}
	s.ordered = append(s.ordered, h)
}

// commonPasswords is a small embedded denylist of the most frequently
// breached passwords. Matching is case-insensitive on the whole string.
var commonPasswords = map[string]struct{}{
	"password":   {},
	"password1":  {},
	"password!":  {},
	"123456":     {},
	"12345678":   {},
	"123456789":  {},
	"1234567890": {},
	"qwerty":     {},
	"qwerty123":  {},
	"abc123":     {},
	"letmein":    {},
	"welcome":    {},
	"welcome1":   {},
	"iloveyou":   {},
	"admin":      {},
	"admin123":   {},
	"monkey":     {},
	"dragon":     {},
	"sunshine":   {},
	"princess":   {},
	"football":   {},
	"baseball":   {},
	"master":     {},
	"shadow":     {},
	"superman":   {},
	"trustno1":   {},
}

func isCommonPassword(password string) bool {
	_, ok := commonPasswords[strings.ToLower(password)]
	return ok
}
