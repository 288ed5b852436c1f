// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Username (email address) constraints.
const (
	MaxUsernameLength  = 254
	MaxLocalPartLength = 64
)

// Password complexity constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 24

	// PasswordSymbols is the set of symbols a password must draw one from.
	PasswordSymbols = "_!@#$%"
)

const (
	atext      = "[A-Za-z0-9!#$%&'*+/=?^_`{|}~-]"
	dotAtom    = atext + `+(?:\.` + atext + `+)*`
	quotedText = `"(?:[^"\\\r\n]|\\[\t -~])+"`
	dnsLabel   = `[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?`

	// domainLiteral excludes the brackets and backslash from its body.
	domainLiteral = `\[[\t -Z^-~]*\]`
)

// usernameRegex matches local-part@domain where the local part is a dot-atom
// or quoted string and the domain is two or more DNS labels or a bracketed
// domain literal.
var usernameRegex = regexp.MustCompile(
	`^(?:` + dotAtom + `|` + quotedText + `)@(?:` +
		dnsLabel + `(?:\.` + dnsLabel + `)+|` + domainLiteral + `)$`,
)

// splitUsername splits a matched username at the @ that starts its domain.
// A domain literal may itself contain @ but never [, so the split is at the
// last "@[" for literals.
func splitUsername(username string) (local, domain string) {
	at := strings.LastIndex(username, "@")
	if strings.HasSuffix(username, "]") {
		if i := strings.LastIndex(username, "@["); i >= 0 {
			at = i
		}
	}
	return username[:at], username[at+1:]
}

// ValidateUsername checks that username is a syntactically valid email address.
func ValidateUsername(username string) error {
	if username == "" {
		return validationError("AUTH_INVALID_USERNAME", "username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Wrapf(ErrValidation, "username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return validationError("AUTH_INVALID_USERNAME", "username must be an email address")
	}
	local, _ := splitUsername(username)
	if len(local) > MaxLocalPartLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxLocalPartLength).
			Wrapf(ErrValidation, "email local part must be at most %d characters", MaxLocalPartLength)
	}
	return nil
}

// ValidatePassword enforces the complexity policy: 8 to 24 characters with at
// least one lowercase letter, one uppercase letter, one digit and one symbol
// from PasswordSymbols. Line breaks are not allowed.
func ValidatePassword(password string) error {
	if !passwordComplex(password) {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			With("max", MaxPasswordLength).
			Wrapf(ErrValidation, "password does not meet complexity requirements")
	}
	return nil
}

func passwordComplex(password string) bool {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r == '\n':
			return false
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

// DomainPolicy restricts which email domains may register.
// The zero value allows every domain.
type DomainPolicy struct {
	patterns []string
	globs    []glob.Glob
}

// NewDomainPolicy compiles domain glob patterns such as "example.com" or
// "*.example.edu". Segments are dot-separated, so "*" matches one label and
// "**" matches any number of labels. Matching is case-insensitive.
func NewDomainPolicy(patterns []string) (*DomainPolicy, error) {
	p := &DomainPolicy{}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.Code("DOMAIN_POLICY_INVALID").
				With("pattern", pattern).
				Wrap(err)
		}
		p.patterns = append(p.patterns, pattern)
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// Patterns returns the normalized patterns of the policy.
func (p *DomainPolicy) Patterns() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.patterns...)
}

// Check returns a validation error if username's domain is not allowed.
// The username must already have passed ValidateUsername.
func (p *DomainPolicy) Check(username string) error {
	if p == nil || len(p.globs) == 0 {
		return nil
	}
	_, domain := splitUsername(username)
	domain = strings.ToLower(domain)
	for _, g := range p.globs {
		if g.Match(domain) {
			return nil
		}
	}
	return oops.Code("AUTH_DOMAIN_NOT_ALLOWED").
		With("domain", domain).
		Wrapf(ErrValidation, "registrations from this domain are not accepted")
}
