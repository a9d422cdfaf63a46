package idl

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// SelectorLen is the byte length of instruction selectors and account
// discriminators.
const SelectorLen = 8

const (
	instructionNamespace = "global"
	accountNamespace     = "account"
)

// Selector is the 8-byte prefix identifying an instruction or account type.
type Selector [SelectorLen]byte

// String returns the hex form of the selector.
func (s Selector) String() string {
	return hex.EncodeToString(s[:])
}

// Bytes returns the selector as a byte slice.
func (s Selector) Bytes() []byte {
	b := make([]byte, SelectorLen)
	copy(b, s[:])
	return b
}

// SelectorTable maps selectors to instruction names.
type SelectorTable map[Selector]string

// InstructionSelector derives sha256("global:" + snake_case(name))[:8].
func InstructionSelector(name string) (Selector, error) {
	snake := SnakeCase(name)
	if snake == "" {
		return Selector{}, fmt.Errorf("%w: instruction name %q has no hashable form", ErrInvalidSchema, name)
	}
	return namespacedHash(instructionNamespace, snake), nil
}

// AccountDiscriminator derives sha256("account:" + name)[:8].
func AccountDiscriminator(name string) Selector {
	return namespacedHash(accountNamespace, name)
}

func namespacedHash(namespace, name string) Selector {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var sel Selector
	copy(sel[:], sum[:SelectorLen])
	return sel
}

// BuildSelectorTable computes the selector of every instruction in the
// schema. Unhashable names and selector collisions are errors.
func BuildSelectorTable(s *Schema) (SelectorTable, error) {
	table := make(SelectorTable, len(s.Instructions))
	for _, ix := range s.Instructions {
		sel, err := InstructionSelector(ix.Name)
		if err != nil {
			return nil, err
		}
		if other, exists := table[sel]; exists {
			return nil, fmt.Errorf("%w: selector %s shared by %q and %q", ErrInvalidSchema, sel, other, ix.Name)
		}
		table[sel] = ix.Name
	}
	return table, nil
}

// SnakeCase converts camelCase or PascalCase identifiers to snake_case.
// Acronyms stay together ("HTTPServer" -> "http_server") and existing
// separators collapse.
func SnakeCase(name string) string {
	runes := []rune(name)
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}

	for i, r := range runes {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(current) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		current = append(current, r)
	}
	flush()

	return strings.Join(words, "_")
}
