// Package idl loads the listings program instruction schema and derives
// selectors, discriminators and account field offsets from it.
package idl

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
)

//go:embed dexloan.json
var embeddedSchema []byte

// ErrInvalidSchema is returned when the schema document cannot be used.
var ErrInvalidSchema = errors.New("invalid instruction schema")

// Schema is the parsed instruction schema document.
type Schema struct {
	Version      string        `json:"version"`
	Name         string        `json:"name"`
	Instructions []Instruction `json:"instructions"`
	Accounts     []TypeDef     `json:"accounts"`
	Types        []TypeDef     `json:"types"`

	selectors    SelectorTable
	instructions map[string]*Instruction
	accounts     map[string]*TypeDef
	types        map[string]*TypeDef
}

// Instruction is a single instruction definition.
// Account role order is authoritative.
type Instruction struct {
	Name     string        `json:"name"`
	Accounts []AccountRole `json:"accounts"`
	Args     []Field       `json:"args"`
}

// AccountRole is a named positional account slot of an instruction.
type AccountRole struct {
	Name     string `json:"name"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

// Field is a named, typed struct field or instruction argument.
type Field struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// TypeDef is a named account or user-defined type.
type TypeDef struct {
	Name string      `json:"name"`
	Type TypeDefBody `json:"type"`
}

// TypeDefBody describes a struct or enum layout.
type TypeDefBody struct {
	Kind     string    `json:"kind"`
	Fields   []Field   `json:"fields,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// Variant is an enum variant.
type Variant struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields,omitempty"`
}

// Type is a schema type reference: a primitive name, an option, a vec,
// a fixed array or a reference to a defined type.
type Type struct {
	Primitive string
	Option    *Type
	Vec       *Type
	Array     *Type
	ArrayLen  int
	Defined   string
}

// UnmarshalJSON accepts both the string and the object forms of a type.
func (t *Type) UnmarshalJSON(data []byte) error {
	var primitive string
	if err := json.Unmarshal(data, &primitive); err == nil {
		t.Primitive = primitive
		return nil
	}

	var obj struct {
		Option  *Type             `json:"option"`
		Vec     *Type             `json:"vec"`
		Defined string            `json:"defined"`
		Array   []json.RawMessage `json:"array"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("parse type: %w", err)
	}

	switch {
	case obj.Option != nil:
		t.Option = obj.Option
	case obj.Vec != nil:
		t.Vec = obj.Vec
	case obj.Defined != "":
		t.Defined = obj.Defined
	case len(obj.Array) == 2:
		var elem Type
		if err := json.Unmarshal(obj.Array[0], &elem); err != nil {
			return fmt.Errorf("parse array element: %w", err)
		}
		if err := json.Unmarshal(obj.Array[1], &t.ArrayLen); err != nil {
			return fmt.Errorf("parse array length: %w", err)
		}
		t.Array = &elem
	default:
		return fmt.Errorf("unsupported type %s", string(data))
	}
	return nil
}

// MarshalJSON writes the type back in schema form.
func (t Type) MarshalJSON() ([]byte, error) {
	switch {
	case t.Option != nil:
		return json.Marshal(map[string]*Type{"option": t.Option})
	case t.Vec != nil:
		return json.Marshal(map[string]*Type{"vec": t.Vec})
	case t.Array != nil:
		return json.Marshal(map[string][]interface{}{"array": {t.Array, t.ArrayLen}})
	case t.Defined != "":
		return json.Marshal(map[string]string{"defined": t.Defined})
	default:
		return json.Marshal(t.Primitive)
	}
}

// Load parses the schema embedded at build time.
func Load() (*Schema, error) {
	return Parse(embeddedSchema)
}

// Parse parses a schema document and builds its lookup tables.
// Any error here is fatal for the process: selectors cannot be trusted.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) index() error {
	if len(s.Instructions) == 0 {
		return fmt.Errorf("%w: no instructions", ErrInvalidSchema)
	}

	s.instructions = make(map[string]*Instruction, len(s.Instructions))
	for i := range s.Instructions {
		ix := &s.Instructions[i]
		if _, exists := s.instructions[ix.Name]; exists {
			return fmt.Errorf("%w: duplicate instruction %q", ErrInvalidSchema, ix.Name)
		}
		roles := make(map[string]struct{}, len(ix.Accounts))
		for _, role := range ix.Accounts {
			if _, exists := roles[role.Name]; exists {
				return fmt.Errorf("%w: instruction %q declares role %q twice", ErrInvalidSchema, ix.Name, role.Name)
			}
			roles[role.Name] = struct{}{}
		}
		s.instructions[ix.Name] = ix
	}

	s.accounts = make(map[string]*TypeDef, len(s.Accounts))
	for i := range s.Accounts {
		def := &s.Accounts[i]
		if _, exists := s.accounts[def.Name]; exists {
			return fmt.Errorf("%w: duplicate account %q", ErrInvalidSchema, def.Name)
		}
		s.accounts[def.Name] = def
	}

	s.types = make(map[string]*TypeDef, len(s.Types))
	for i := range s.Types {
		def := &s.Types[i]
		if _, exists := s.types[def.Name]; exists {
			return fmt.Errorf("%w: duplicate type %q", ErrInvalidSchema, def.Name)
		}
		s.types[def.Name] = def
	}

	table, err := BuildSelectorTable(s)
	if err != nil {
		return err
	}
	s.selectors = table
	return nil
}

// Instruction returns the instruction definition by name.
func (s *Schema) Instruction(name string) (*Instruction, bool) {
	ix, ok := s.instructions[name]
	return ix, ok
}

// Account returns the account layout definition by name.
func (s *Schema) Account(name string) (*TypeDef, bool) {
	def, ok := s.accounts[name]
	return def, ok
}

// Selectors returns the selector table built at parse time.
func (s *Schema) Selectors() SelectorTable {
	return s.selectors
}

// Match resolves instruction data to its definition using the leading
// selector bytes.
func (s *Schema) Match(data []byte) (*Instruction, bool) {
	if len(data) < SelectorLen {
		return nil, false
	}
	var sel Selector
	copy(sel[:], data[:SelectorLen])

	name, ok := s.selectors[sel]
	if !ok {
		return nil, false
	}
	return s.instructions[name], true
}

// HasRole reports whether the instruction declares the named account role.
func (ix *Instruction) HasRole(role string) bool {
	for _, r := range ix.Accounts {
		if r.Name == role {
			return true
		}
	}
	return false
}
