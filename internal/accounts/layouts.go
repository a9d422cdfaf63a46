// Package accounts decodes listings program accounts and fetches their
// canonical state from the ledger with bounded retries.
package accounts

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/idl"
)

// ErrInvalidAccountData is returned when account bytes do not match the
// expected layout. It is not retried.
var ErrInvalidAccountData = errors.New("invalid account data")

// State is a decoded program account.
type State interface {
	Kind() domain.EntityKind
}

// CollectionConfig holds per-market switches and fee rates.
type CollectionConfig struct {
	LoanEnabled       bool
	LoanBasisPoints   uint16
	OptionEnabled     bool
	OptionBasisPoints uint16
	RentalEnabled     bool
	RentalBasisPoints uint16
}

// Collection is the on-chain collection account.
type Collection struct {
	Authority solana.PublicKey
	Mint      solana.PublicKey
	Config    CollectionConfig
	Bump      uint8
}

// Loan is the on-chain loan account.
type Loan struct {
	State       uint8
	Borrower    solana.PublicKey
	Mint        solana.PublicKey
	BasisPoints uint32
	Duration    int64
	Amount      *uint64           `bin:"optional"`
	Lender      *solana.PublicKey `bin:"optional"`
	StartDate   *int64            `bin:"optional"`
	Bump        uint8
}

// LoanOffer is the on-chain loan offer account.
type LoanOffer struct {
	ID          uint8
	Lender      solana.PublicKey
	Collection  solana.PublicKey
	Amount      uint64
	BasisPoints uint32
	Duration    int64
	LTV         *uint32 `bin:"optional"`
	Threshold   *uint32 `bin:"optional"`
	Bump        uint8
}

// CallOption is the on-chain call option account.
type CallOption struct {
	State       uint8
	Seller      solana.PublicKey
	Mint        solana.PublicKey
	Amount      uint64
	StrikePrice uint64
	Expiry      int64
	Buyer       *solana.PublicKey `bin:"optional"`
	Bump        uint8
}

// CallOptionBid is the on-chain call option bid account.
type CallOptionBid struct {
	ID          uint8
	Buyer       solana.PublicKey
	Collection  solana.PublicKey
	Amount      uint64
	StrikePrice uint64
	Expiry      int64
	Bump        uint8
}

// Rental is the on-chain rental account.
type Rental struct {
	State         uint8
	Lender        solana.PublicKey
	Mint          solana.PublicKey
	Amount        uint64
	Expiry        int64
	EscrowBalance uint64
	Borrower      *solana.PublicKey `bin:"optional"`
	CurrentStart  *int64            `bin:"optional"`
	CurrentExpiry *int64            `bin:"optional"`
	Bump          uint8
}

func (*Collection) Kind() domain.EntityKind    { return domain.KindCollection }
func (*Loan) Kind() domain.EntityKind          { return domain.KindLoan }
func (*LoanOffer) Kind() domain.EntityKind     { return domain.KindLoanOffer }
func (*CallOption) Kind() domain.EntityKind    { return domain.KindCallOption }
func (*CallOptionBid) Kind() domain.EntityKind { return domain.KindCallOptionBid }
func (*Rental) Kind() domain.EntityKind        { return domain.KindRental }

// newState returns an empty typed account for kind.
func newState(kind domain.EntityKind) (State, error) {
	switch kind {
	case domain.KindCollection:
		return &Collection{}, nil
	case domain.KindLoan:
		return &Loan{}, nil
	case domain.KindLoanOffer:
		return &LoanOffer{}, nil
	case domain.KindCallOption:
		return &CallOption{}, nil
	case domain.KindCallOptionBid:
		return &CallOptionBid{}, nil
	case domain.KindRental:
		return &Rental{}, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

// Discriminator returns the 8-byte account prefix for kind.
func Discriminator(kind domain.EntityKind) idl.Selector {
	return idl.AccountDiscriminator(kind.AccountName())
}

// Decode checks the discriminator of data and Borsh-decodes the rest into
// the typed account for kind.
func Decode(kind domain.EntityKind, data []byte) (State, error) {
	state, err := newState(kind)
	if err != nil {
		return nil, err
	}

	disc := Discriminator(kind)
	if len(data) < idl.SelectorLen || !bytes.Equal(data[:idl.SelectorLen], disc[:]) {
		return nil, fmt.Errorf("%w: %s discriminator mismatch", ErrInvalidAccountData, kind)
	}

	if err := bin.NewBorshDecoder(data[idl.SelectorLen:]).Decode(state); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidAccountData, kind, err)
	}
	return state, nil
}

// Encode serializes a typed account with its discriminator.
func Encode(state State) ([]byte, error) {
	var buf bytes.Buffer
	disc := Discriminator(state.Kind())
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("encode %s: %w", state.Kind(), err)
	}
	return buf.Bytes(), nil
}

// LoanState maps the on-chain variant index.
func (l *Loan) LoanState() (domain.LoanState, error) {
	if int(l.State) >= len(domain.LoanStates) {
		return "", fmt.Errorf("%w: loan state %d", ErrInvalidAccountData, l.State)
	}
	return domain.LoanStates[l.State], nil
}

// CallOptionState maps the on-chain variant index.
func (o *CallOption) CallOptionState() (domain.CallOptionState, error) {
	if int(o.State) >= len(domain.CallOptionStates) {
		return "", fmt.Errorf("%w: call option state %d", ErrInvalidAccountData, o.State)
	}
	return domain.CallOptionStates[o.State], nil
}

// RentalState maps the on-chain variant index.
func (r *Rental) RentalState() (domain.RentalState, error) {
	if int(r.State) >= len(domain.RentalStates) {
		return "", fmt.Errorf("%w: rental state %d", ErrInvalidAccountData, r.State)
	}
	return domain.RentalStates[r.State], nil
}

// Lamports converts an on-chain u64 amount to the signed column type.
func Lamports(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: amount %d overflows int64", ErrInvalidAccountData, v)
	}
	return int64(v), nil
}
