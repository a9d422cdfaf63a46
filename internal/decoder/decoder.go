// Package decoder turns raw transactions into named program instructions
// with their accounts mapped by role.
package decoder

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"dexloan-indexer/internal/idl"
	"dexloan-indexer/internal/ledger"
)

var (
	// ErrMalformedInstruction marks a program instruction whose account
	// list or data cannot be mapped onto its schema entry.
	ErrMalformedInstruction = errors.New("malformed instruction")
	// ErrMalformedTransaction marks a transaction whose envelope is unusable.
	ErrMalformedTransaction = errors.New("malformed transaction")
)

// Instruction is one decoded program instruction.
type Instruction struct {
	Signature string
	Slot      uint64
	// Position is the execution-order index within the transaction, counting
	// every outer and inner instruction of any program.
	Position int
	Name     string
	Accounts map[string]solana.PublicKey
	// Args holds the argument bytes following the selector.
	Args []byte
}

// Account returns the address bound to role.
func (i *Instruction) Account(role string) (solana.PublicKey, bool) {
	key, ok := i.Accounts[role]
	return key, ok
}

// InstructionError reports a failure decoding the instruction at Position.
type InstructionError struct {
	Signature string
	Position  int
	Err       error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("tx %s instruction %d: %v", e.Signature, e.Position, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

// Decoder decodes instructions addressed to one program.
type Decoder struct {
	schema  *idl.Schema
	program solana.PublicKey
	logger  *zap.Logger
}

// New creates a decoder for program using schema.
func New(schema *idl.Schema, program solana.PublicKey, logger *zap.Logger) *Decoder {
	return &Decoder{
		schema:  schema,
		program: program,
		logger:  logger.Named("decoder"),
	}
}

// rawInstruction is an instruction paired with its execution position.
type rawInstruction struct {
	position int
	ix       ledger.Instruction
}

// Decode returns the program instructions of tx in execution order. Inner
// instructions follow their outer instruction. A failed transaction yields
// nothing. Instructions of other programs, and program instructions with
// unknown selectors, are ignored; each malformed program instruction is
// reported as an *InstructionError without affecting the others.
func (d *Decoder) Decode(tx *ledger.Transaction) ([]Instruction, []error) {
	if tx.Failed() {
		return nil, nil
	}

	signature := tx.Signature()
	if signature == "" {
		return nil, []error{fmt.Errorf("%w: no signature", ErrMalformedTransaction)}
	}

	keys := tx.Keys()
	var (
		out  []Instruction
		errs []error
	)

	for _, raw := range flatten(tx) {
		if raw.ix.ProgramIDIndex < 0 || raw.ix.ProgramIDIndex >= len(keys) {
			errs = append(errs, &InstructionError{
				Signature: signature,
				Position:  raw.position,
				Err:       fmt.Errorf("%w: program index %d out of range", ErrMalformedInstruction, raw.ix.ProgramIDIndex),
			})
			continue
		}
		if keys[raw.ix.ProgramIDIndex] != d.program.String() {
			continue
		}

		decoded, ok, err := d.decodeOne(keys, raw.ix)
		if err != nil {
			errs = append(errs, &InstructionError{Signature: signature, Position: raw.position, Err: err})
			continue
		}
		if !ok {
			d.logger.Debug("unrecognized program instruction",
				zap.String("signature", signature),
				zap.Int("position", raw.position))
			continue
		}

		decoded.Signature = signature
		decoded.Slot = tx.Slot
		decoded.Position = raw.position
		out = append(out, *decoded)
	}

	return out, errs
}

func (d *Decoder) decodeOne(keys []string, ix ledger.Instruction) (*Instruction, bool, error) {
	data, err := base58.Decode(ix.Data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: data is not base58: %v", ErrMalformedInstruction, err)
	}

	def, ok := d.schema.Match(data)
	if !ok {
		return nil, false, nil
	}

	if len(ix.Accounts) != len(def.Accounts) {
		return nil, false, fmt.Errorf("%w: %s expects %d accounts, got %d",
			ErrMalformedInstruction, def.Name, len(def.Accounts), len(ix.Accounts))
	}

	accounts := make(map[string]solana.PublicKey, len(def.Accounts))
	for i, role := range def.Accounts {
		idx := ix.Accounts[i]
		if idx < 0 || idx >= len(keys) {
			return nil, false, fmt.Errorf("%w: %s account %q index %d out of range",
				ErrMalformedInstruction, def.Name, role.Name, idx)
		}
		key, err := solana.PublicKeyFromBase58(keys[idx])
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s account %q: %v", ErrMalformedInstruction, def.Name, role.Name, err)
		}
		accounts[role.Name] = key
	}

	return &Instruction{
		Name:     def.Name,
		Accounts: accounts,
		Args:     data[idl.SelectorLen:],
	}, true, nil
}

// flatten orders outer instructions with their inner instructions directly
// after them and assigns execution positions.
func flatten(tx *ledger.Transaction) []rawInstruction {
	inner := make(map[int][]ledger.Instruction)
	if tx.Meta != nil {
		for _, group := range tx.Meta.InnerInstructions {
			inner[group.Index] = append(inner[group.Index], group.Instructions...)
		}
	}

	var out []rawInstruction
	for i, ix := range tx.Transaction.Message.Instructions {
		out = append(out, rawInstruction{position: len(out), ix: ix})
		for _, cpi := range inner[i] {
			out = append(out, rawInstruction{position: len(out), ix: cpi})
		}
	}
	return out
}
