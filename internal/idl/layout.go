package idl

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when an account or field is not declared.
	ErrUnknownField = errors.New("unknown account field")
	// ErrVariableOffset is returned for fields placed after a variable-size field.
	ErrVariableOffset = errors.New("field offset depends on variable-size data")
)

var primitiveSizes = map[string]int{
	"bool":      1,
	"u8":        1,
	"i8":        1,
	"u16":       2,
	"i16":       2,
	"u32":       4,
	"i32":       4,
	"f32":       4,
	"u64":       8,
	"i64":       8,
	"f64":       8,
	"u128":      16,
	"i128":      16,
	"publicKey": 32,
}

// FieldOffset returns the byte offset of field inside account data,
// counting the leading discriminator. Offsets are only defined while every
// preceding field has a fixed size.
func (s *Schema) FieldOffset(account, field string) (int, error) {
	def, ok := s.accounts[account]
	if !ok {
		return 0, fmt.Errorf("%w: account %q", ErrUnknownField, account)
	}

	offset := SelectorLen
	fixed := true
	for _, f := range def.Type.Fields {
		if f.Name == field {
			if !fixed {
				return 0, fmt.Errorf("%w: %s.%s", ErrVariableOffset, account, field)
			}
			return offset, nil
		}
		size, ok := s.fixedSize(f.Type)
		if !ok {
			fixed = false
			continue
		}
		offset += size
	}
	return 0, fmt.Errorf("%w: %s.%s", ErrUnknownField, account, field)
}

// FieldSize returns the encoded size of a fixed-size account field.
func (s *Schema) FieldSize(account, field string) (int, error) {
	def, ok := s.accounts[account]
	if !ok {
		return 0, fmt.Errorf("%w: account %q", ErrUnknownField, account)
	}
	for _, f := range def.Type.Fields {
		if f.Name != field {
			continue
		}
		size, ok := s.fixedSize(f.Type)
		if !ok {
			return 0, fmt.Errorf("%w: %s.%s has no fixed size", ErrVariableOffset, account, field)
		}
		return size, nil
	}
	return 0, fmt.Errorf("%w: %s.%s", ErrUnknownField, account, field)
}

func (s *Schema) fixedSize(t Type) (int, bool) {
	switch {
	case t.Option != nil, t.Vec != nil:
		return 0, false
	case t.Array != nil:
		elem, ok := s.fixedSize(*t.Array)
		if !ok {
			return 0, false
		}
		return elem * t.ArrayLen, true
	case t.Defined != "":
		def, ok := s.types[t.Defined]
		if !ok {
			return 0, false
		}
		return s.definedSize(def)
	default:
		size, ok := primitiveSizes[t.Primitive]
		return size, ok
	}
}

func (s *Schema) definedSize(def *TypeDef) (int, bool) {
	switch def.Type.Kind {
	case "enum":
		// Fieldless enums encode as a single variant byte.
		for _, v := range def.Type.Variants {
			if len(v.Fields) > 0 {
				return 0, false
			}
		}
		return 1, true
	case "struct":
		total := 0
		for _, f := range def.Type.Fields {
			size, ok := s.fixedSize(f.Type)
			if !ok {
				return 0, false
			}
			total += size
		}
		return total, true
	default:
		return 0, false
	}
}
