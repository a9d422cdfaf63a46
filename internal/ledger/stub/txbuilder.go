package stub

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"dexloan-indexer/internal/idl"
	"dexloan-indexer/internal/ledger"
)

// TxBuilder assembles transactions that invoke program instructions.
// Roles left unset are bound to fresh random keys.
type TxBuilder struct {
	schema  *idl.Schema
	program solana.PublicKey

	slot      uint64
	signature string
	failed    bool
	keys      []string
	index     map[string]int
	outer     []ledger.Instruction
	inner     map[int][]ledger.Instruction
	err       error
}

// NewTxBuilder creates a builder for program instructions described by schema.
func NewTxBuilder(schema *idl.Schema, program solana.PublicKey) *TxBuilder {
	var sig [64]byte
	_, _ = rand.Read(sig[:])
	b := &TxBuilder{
		schema:    schema,
		program:   program,
		slot:      1,
		signature: base58.Encode(sig[:]),
		index:     make(map[string]int),
		inner:     make(map[int][]ledger.Instruction),
	}
	return b
}

// Slot sets the transaction slot.
func (b *TxBuilder) Slot(slot uint64) *TxBuilder {
	b.slot = slot
	return b
}

// Signature sets the transaction signature.
func (b *TxBuilder) Signature(sig string) *TxBuilder {
	b.signature = sig
	return b
}

// Failed marks the transaction as failed.
func (b *TxBuilder) Failed() *TxBuilder {
	b.failed = true
	return b
}

// Instruction appends an outer program instruction.
func (b *TxBuilder) Instruction(name string, accounts map[string]solana.PublicKey, args []byte) *TxBuilder {
	if ix, ok := b.compile(name, accounts, args); ok {
		b.outer = append(b.outer, ix)
	}
	return b
}

// Inner appends a CPI program instruction under the last outer instruction.
func (b *TxBuilder) Inner(name string, accounts map[string]solana.PublicKey, args []byte) *TxBuilder {
	if len(b.outer) == 0 {
		b.err = fmt.Errorf("inner instruction %s without outer instruction", name)
		return b
	}
	if ix, ok := b.compile(name, accounts, args); ok {
		parent := len(b.outer) - 1
		b.inner[parent] = append(b.inner[parent], ix)
	}
	return b
}

// Foreign appends an outer instruction of another program.
func (b *TxBuilder) Foreign(program solana.PublicKey, data []byte) *TxBuilder {
	b.outer = append(b.outer, ledger.Instruction{
		ProgramIDIndex: b.key(program),
		Data:           base58.Encode(data),
	})
	return b
}

// Raw appends an outer instruction verbatim.
func (b *TxBuilder) Raw(ix ledger.Instruction) *TxBuilder {
	b.outer = append(b.outer, ix)
	return b
}

// Key returns the index of key in the account list, adding it if needed.
func (b *TxBuilder) Key(key solana.PublicKey) int {
	return b.key(key)
}

// Build returns the assembled transaction.
func (b *TxBuilder) Build() (*ledger.Transaction, error) {
	if b.err != nil {
		return nil, b.err
	}

	keys := make([]ledger.AccountKey, len(b.keys))
	for i, k := range b.keys {
		keys[i] = ledger.AccountKey(k)
	}

	meta := &ledger.TransactionMeta{}
	if b.failed {
		meta.Err = json.RawMessage(`{"InstructionError":[0,{"Custom":6000}]}`)
	}
	for i := range b.outer {
		if cpis, ok := b.inner[i]; ok {
			meta.InnerInstructions = append(meta.InnerInstructions, ledger.InnerInstructions{
				Index:        i,
				Instructions: cpis,
			})
		}
	}

	return &ledger.Transaction{
		Slot: b.slot,
		Meta: meta,
		Transaction: ledger.TransactionBody{
			Signatures: []string{b.signature},
			Message: ledger.Message{
				AccountKeys:  keys,
				Instructions: append([]ledger.Instruction(nil), b.outer...),
			},
		},
	}, nil
}

func (b *TxBuilder) compile(name string, accounts map[string]solana.PublicKey, args []byte) (ledger.Instruction, bool) {
	def, ok := b.schema.Instruction(name)
	if !ok {
		b.err = fmt.Errorf("unknown instruction %s", name)
		return ledger.Instruction{}, false
	}
	sel, err := idl.InstructionSelector(name)
	if err != nil {
		b.err = err
		return ledger.Instruction{}, false
	}

	ix := ledger.Instruction{ProgramIDIndex: b.key(b.program)}
	for _, role := range def.Accounts {
		key, ok := accounts[role.Name]
		if !ok {
			key = solana.NewWallet().PublicKey()
		}
		ix.Accounts = append(ix.Accounts, b.key(key))
	}
	ix.Data = base58.Encode(append(sel.Bytes(), args...))
	return ix, true
}

func (b *TxBuilder) key(key solana.PublicKey) int {
	s := key.String()
	if i, ok := b.index[s]; ok {
		return i
	}
	b.index[s] = len(b.keys)
	b.keys = append(b.keys, s)
	return len(b.keys) - 1
}
