// Package ledger defines the confirmed-transaction envelope delivered by
// webhooks and the clients used to read canonical state from the chain.
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Transaction is one confirmed transaction in the raw RPC/webhook JSON shape.
type Transaction struct {
	Slot        uint64           `json:"slot"`
	BlockTime   *int64           `json:"blockTime,omitempty"`
	Meta        *TransactionMeta `json:"meta,omitempty"`
	Transaction TransactionBody  `json:"transaction"`
}

// TransactionBody holds signatures and the compiled message.
type TransactionBody struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

// Message holds the flat account key list and compiled instructions.
type Message struct {
	AccountKeys  []AccountKey  `json:"accountKeys"`
	Instructions []Instruction `json:"instructions"`
}

// Instruction references accounts and its program by index into the
// transaction's flat key list. Data is base58 encoded.
type Instruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

// TransactionMeta is the subset of execution metadata the indexer reads.
type TransactionMeta struct {
	Err               json.RawMessage     `json:"err,omitempty"`
	LoadedAddresses   *LoadedAddresses    `json:"loadedAddresses,omitempty"`
	InnerInstructions []InnerInstructions `json:"innerInstructions,omitempty"`
}

// LoadedAddresses are keys resolved from address lookup tables.
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// InnerInstructions are the CPI instructions issued by outer instruction Index.
type InnerInstructions struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// AccountKey accepts both the plain string form and the parsed object form
// ({"pubkey": ...}) of an account key.
type AccountKey string

// UnmarshalJSON implements json.Unmarshaler.
func (k *AccountKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*k = AccountKey(s)
		return nil
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("parse account key: %w", err)
	}
	if obj.Pubkey == "" {
		return fmt.Errorf("parse account key: missing pubkey")
	}
	*k = AccountKey(obj.Pubkey)
	return nil
}

// Signature returns the transaction's first signature, its identifier.
func (t *Transaction) Signature() string {
	if len(t.Transaction.Signatures) == 0 {
		return ""
	}
	return t.Transaction.Signatures[0]
}

// Failed reports whether the transaction executed with an error.
func (t *Transaction) Failed() bool {
	if t.Meta == nil {
		return false
	}
	err := bytes.TrimSpace(t.Meta.Err)
	return len(err) > 0 && !bytes.Equal(err, []byte("null"))
}

// Keys returns the full account key list: static keys followed by
// lookup-table writable and readonly keys.
func (t *Transaction) Keys() []string {
	keys := make([]string, 0, len(t.Transaction.Message.AccountKeys))
	for _, k := range t.Transaction.Message.AccountKeys {
		keys = append(keys, string(k))
	}
	if t.Meta != nil && t.Meta.LoadedAddresses != nil {
		keys = append(keys, t.Meta.LoadedAddresses.Writable...)
		keys = append(keys, t.Meta.LoadedAddresses.Readonly...)
	}
	return keys
}

// ParseBatch decodes a webhook body: a JSON array of transactions.
func ParseBatch(body []byte) ([]Transaction, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("batch must be a JSON array")
	}
	var txs []Transaction
	if err := json.Unmarshal(trimmed, &txs); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return txs, nil
}
