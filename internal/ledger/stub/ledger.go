// Package stub provides an in-memory ledger for tests and local runs.
package stub

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"

	"dexloan-indexer/internal/ledger"
)

// Ledger implements the ledger read interfaces over in-memory maps.
type Ledger struct {
	mu           sync.RWMutex
	accounts     map[solana.PublicKey]*ledger.Account
	transactions map[string]*ledger.Transaction

	failures int
	failErr  error
	calls    int
}

// NewLedger creates an empty stub ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:     make(map[solana.PublicKey]*ledger.Account),
		transactions: make(map[string]*ledger.Transaction),
	}
}

// SetAccount creates or replaces an account.
func (l *Ledger) SetAccount(address, owner solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts[address] = &ledger.Account{
		Address:  address,
		Owner:    owner,
		Lamports: 1,
		Data:     append([]byte(nil), data...),
	}
}

// DeleteAccount removes an account, as closing it on chain would.
func (l *Ledger) DeleteAccount(address solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, address)
}

// AddTransaction stores a transaction retrievable by its signature.
func (l *Ledger) AddTransaction(tx *ledger.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions[tx.Signature()] = tx
}

// FailNext makes the next n reads return err.
func (l *Ledger) FailNext(n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
	l.failErr = err
}

// Calls returns the number of reads served, failed ones included.
func (l *Ledger) Calls() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.calls
}

func (l *Ledger) injected() error {
	l.calls++
	if l.failures > 0 {
		l.failures--
		return l.failErr
	}
	return nil
}

// GetAccount returns a copy of the account or ledger.ErrAccountNotFound.
func (l *Ledger) GetAccount(_ context.Context, address solana.PublicKey) (*ledger.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.injected(); err != nil {
		return nil, err
	}
	acc, ok := l.accounts[address]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return copyAccount(acc), nil
}

// GetMultipleAccounts returns accounts aligned with addresses, nil when absent.
func (l *Ledger) GetMultipleAccounts(_ context.Context, addresses []solana.PublicKey) ([]*ledger.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.injected(); err != nil {
		return nil, err
	}
	out := make([]*ledger.Account, len(addresses))
	for i, addr := range addresses {
		if acc, ok := l.accounts[addr]; ok {
			out[i] = copyAccount(acc)
		}
	}
	return out, nil
}

// GetProgramAccounts returns addresses owned by program matching every filter.
func (l *Ledger) GetProgramAccounts(_ context.Context, program solana.PublicKey, filters []ledger.MemcmpFilter) ([]solana.PublicKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.injected(); err != nil {
		return nil, err
	}

	var out []solana.PublicKey
	for addr, acc := range l.accounts {
		if !acc.Owner.Equals(program) || !matches(acc.Data, filters) {
			continue
		}
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out, nil
}

// GetTransaction returns a stored transaction or ledger.ErrTransactionNotFound.
func (l *Ledger) GetTransaction(_ context.Context, signature string) (*ledger.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.injected(); err != nil {
		return nil, err
	}
	tx, ok := l.transactions[signature]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return tx, nil
}

func matches(data []byte, filters []ledger.MemcmpFilter) bool {
	for _, f := range filters {
		end := int(f.Offset) + len(f.Bytes)
		if end > len(data) || !bytes.Equal(data[f.Offset:end], f.Bytes) {
			return false
		}
	}
	return true
}

func copyAccount(acc *ledger.Account) *ledger.Account {
	c := *acc
	c.Data = append([]byte(nil), acc.Data...)
	return &c
}
