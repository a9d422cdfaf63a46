package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/ledger/stub"
)

var errNode = errors.New("node unavailable")

func testFetcher(t *testing.T) (*Fetcher, *stub.Ledger, solana.PublicKey) {
	t.Helper()
	program := solana.NewWallet().PublicKey()
	l := stub.NewLedger()
	cfg := FetcherConfig{
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		AbsentRechecks: 1,
	}
	return NewFetcher(l, program, cfg, zap.NewNop()), l, program
}

func putLoan(t *testing.T, l *stub.Ledger, program solana.PublicKey, loan *Loan) solana.PublicKey {
	t.Helper()
	address, err := ledger.LoanAddress(program, loan.Mint)
	require.NoError(t, err)
	data, err := Encode(loan)
	require.NoError(t, err)
	l.SetAccount(address, program, data)
	return address
}

func TestFetchLoan_Found(t *testing.T) {
	f, l, program := testFetcher(t)
	mint := solana.NewWallet().PublicKey()
	address := putLoan(t, l, program, &Loan{State: 1, Mint: mint, BasisPoints: 500})

	loan, err := f.FetchLoan(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, mint, loan.Mint)
	assert.Equal(t, 1, l.Calls())
}

func TestFetchAccount_AbsentIsRechecked(t *testing.T) {
	f, l, program := testFetcher(t)
	address, err := ledger.LoanAddress(program, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	_, err = f.FetchAccount(context.Background(), domain.KindLoan, address)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NotErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 2, l.Calls())
}

func TestFetchAccount_TransientFailureRecovers(t *testing.T) {
	f, l, program := testFetcher(t)
	address := putLoan(t, l, program, &Loan{Mint: solana.NewWallet().PublicKey()})
	l.FailNext(2, errNode)

	_, err := f.FetchLoan(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Calls())
}

func TestFetchAccount_PersistentFailure(t *testing.T) {
	f, l, program := testFetcher(t)
	address := putLoan(t, l, program, &Loan{Mint: solana.NewWallet().PublicKey()})
	l.FailNext(10, errNode)

	_, err := f.FetchLoan(context.Background(), address)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
	assert.Equal(t, 3, l.Calls())
}

func TestFetchAccount_CanceledContext(t *testing.T) {
	f, l, program := testFetcher(t)
	address := putLoan(t, l, program, &Loan{Mint: solana.NewWallet().PublicKey()})
	l.FailNext(10, errNode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.FetchLoan(ctx, address)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetchAccount_ForeignOwner(t *testing.T) {
	f, l, _ := testFetcher(t)
	address := solana.NewWallet().PublicKey()
	data, err := Encode(&Loan{})
	require.NoError(t, err)
	l.SetAccount(address, solana.NewWallet().PublicKey(), data)

	_, err = f.FetchLoan(context.Background(), address)
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestFetchAccount_WrongKind(t *testing.T) {
	f, l, program := testFetcher(t)
	address := putLoan(t, l, program, &Loan{Mint: solana.NewWallet().PublicKey()})

	_, err := f.FetchRental(context.Background(), address)
	assert.ErrorIs(t, err, ErrInvalidAccountData)
	assert.Equal(t, 1, l.Calls())
}

func TestFetchAuxiliary(t *testing.T) {
	f, l, _ := testFetcher(t)
	mint := solana.NewWallet().PublicKey()

	meta, err := f.FetchAuxiliary(context.Background(), mint)
	require.NoError(t, err)
	assert.Nil(t, meta)

	address, err := ledger.MetadataAddress(mint)
	require.NoError(t, err)
	l.SetAccount(address, ledger.MetadataProgramID, encodeMetadata(t, metadataHead{
		Key:  metadataV1Key,
		Mint: mint,
		URI:  "https://example.com/1.json",
	}, &metadataTail{}))

	meta, err = f.FetchAuxiliary(context.Background(), mint)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "https://example.com/1.json", meta.URI)
}

func TestFetchAuxiliary_Failure(t *testing.T) {
	f, l, _ := testFetcher(t)
	l.FailNext(10, errNode)

	meta, err := f.FetchAuxiliary(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Nil(t, meta)
}

func TestFetchMany(t *testing.T) {
	f, l, program := testFetcher(t)
	present := putLoan(t, l, program, &Loan{Mint: solana.NewWallet().PublicKey(), BasisPoints: 7})
	absent, err := ledger.LoanAddress(program, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	garbage, err := ledger.LoanAddress(program, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	l.SetAccount(garbage, program, []byte{1, 2, 3})

	l.FailNext(1, errNode)
	states, err := f.FetchMany(context.Background(), domain.KindLoan, []solana.PublicKey{present, absent, garbage})
	require.NoError(t, err)
	require.Len(t, states, 3)
	require.NotNil(t, states[0])
	assert.Equal(t, uint32(7), states[0].(*Loan).BasisPoints)
	assert.Nil(t, states[1])
	assert.Nil(t, states[2])
}

func TestFetchMany_Empty(t *testing.T) {
	f, l, _ := testFetcher(t)
	states, err := f.FetchMany(context.Background(), domain.KindLoan, nil)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.Zero(t, l.Calls())
}
