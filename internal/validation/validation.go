// Package validation provides centralized input validation for gemrate.
//
// Table and column names from the config are spliced into SQL text, and
// key prefixes into Redis keys, so both are checked here before use.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowColons  bool
	// LeadingLetter requires the first character to be a letter or '_'.
	LeadingLetter bool
}

// IdentifierRules returns the rules for SQL identifiers. Dots are allowed
// for schema-qualified table names.
func IdentifierRules() NameRules {
	return NameRules{
		MinLength:     1,
		MaxLength:     63,
		AllowDots:     true,
		LeadingLetter: true,
	}
}

// KeyPrefixRules returns the rules for Redis key prefixes.
func KeyPrefixRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowDots:    true,
		AllowHyphens: true,
		AllowColons:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("name cannot start or end with '.'")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("name cannot contain '..'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if i == 0 && rules.LeadingLetter && !(unicode.IsLetter(r) || r == '_') {
			return fmt.Errorf("name must start with a letter or '_'")
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if r > unicode.MaxASCII {
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case ':':
		return rules.AllowColons
	}
	return false
}

// ValidateIdentifier validates a SQL table or column name.
func ValidateIdentifier(name string) error {
	return ValidateName(name, IdentifierRules())
}

// ValidateKeyPrefix validates a Redis key prefix.
func ValidateKeyPrefix(prefix string) error {
	return ValidateName(prefix, KeyPrefixRules())
}
