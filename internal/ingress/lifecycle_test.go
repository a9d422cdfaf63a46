package ingress

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexloan-indexer/internal/accounts"
	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/storage"
)

func (e *testEnv) initCollection(collection, collectionMint solana.PublicKey) {
	e.t.Helper()
	result := e.postBatch(e.build(e.tx().Instruction("initCollection", map[string]solana.PublicKey{
		"collection": collection,
		"mint":       collectionMint,
	}, nil)))
	require.Equal(e.t, 1, result.Applied)
}

func (e *testEnv) loanState(address solana.PublicKey) (string, int) {
	e.t.Helper()
	rec := e.get("/v1/loans/" + address.String())
	if rec.Code != http.StatusOK {
		return "", rec.Code
	}
	var view LoanView
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view.State, rec.Code
}

func TestLoanLifecycle(t *testing.T) {
	env := newTestEnv(t)
	collection, collectionMint := env.collection()
	env.initCollection(collection, collectionMint)

	mint := solana.NewWallet().PublicKey()
	env.putMetadata(mint, "https://arweave.net/12", &collectionMint)
	address, err := ledger.LoanAddress(env.program, mint)
	require.NoError(t, err)
	borrower := solana.NewWallet().PublicKey()
	lender := solana.NewWallet().PublicKey()
	amount := uint64(5_000_000_000)
	loan := accounts.Loan{Borrower: borrower, Mint: mint, BasisPoints: 500, Duration: 604800, Amount: &amount}
	roles := map[string]solana.PublicKey{
		"loan":       address,
		"collection": collection,
		"mint":       mint,
		"borrower":   borrower,
	}

	steps := []struct {
		instruction string
		state       uint8
		want        domain.LoanState
	}{
		{"askLoan", 1, domain.LoanStateListed},
		{"giveLoan", 2, domain.LoanStateActive},
		{"repayLoan", 4, domain.LoanStateRepaid},
	}
	for _, step := range steps {
		loan.State = step.state
		if step.state >= 2 {
			loan.Lender = &lender
			start := int64(1_700_000_000)
			loan.StartDate = &start
		}
		env.put(address, &loan)

		result := env.postBatch(env.build(env.tx().Instruction(step.instruction, roles, nil)))
		require.Equal(t, 1, result.Applied, step.instruction)

		state, code := env.loanState(address)
		require.Equal(t, http.StatusOK, code, step.instruction)
		assert.Equal(t, string(step.want), state, step.instruction)
	}

	got, err := env.mirror.Loans.Get(t.Context(), address.String())
	require.NoError(t, err)
	require.NotNil(t, got.Lender)
	assert.Equal(t, lender.String(), *got.Lender)
	assert.Equal(t, collection.String(), got.Collection)

	env.ledger.DeleteAccount(address)
	result := env.postBatch(env.build(env.tx().Instruction("closeLoan", map[string]solana.PublicKey{
		"loan":     address,
		"mint":     mint,
		"borrower": borrower,
	}, nil)))
	assert.Equal(t, 1, result.Applied)

	_, code := env.loanState(address)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCloseLoanOffer_ScopedToLender(t *testing.T) {
	env := newTestEnv(t)
	collection, collectionMint := env.collection()
	env.initCollection(collection, collectionMint)

	lender, other := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	offers := make(map[solana.PublicKey]solana.PublicKey)
	var txs []ledger.Transaction
	for _, l := range []solana.PublicKey{lender, other} {
		offer, err := ledger.LoanOfferAddress(env.program, l, 3)
		require.NoError(t, err)
		env.put(offer, &accounts.LoanOffer{ID: 3, Lender: l, Collection: collection, Amount: 1_000_000_000, BasisPoints: 100})
		offers[l] = offer
		txs = append(txs, env.build(env.tx().Instruction("offerLoan", map[string]solana.PublicKey{
			"lender":     l,
			"loanOffer":  offer,
			"collection": collection,
		}, nil)))
	}
	result := env.postBatch(txs...)
	require.Equal(t, 2, result.Applied)

	env.ledger.DeleteAccount(offers[lender])
	result = env.postBatch(env.build(env.tx().Instruction("closeLoanOffer", map[string]solana.PublicKey{
		"lender":    lender,
		"loanOffer": offers[lender],
	}, nil)))
	assert.Equal(t, 1, result.Applied)

	_, err := env.mirror.LoanOffers.Get(t.Context(), offers[lender].String())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	rec := env.get("/v1/loan-offers/" + offers[lender].String())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	kept, err := env.mirror.LoanOffers.Get(t.Context(), offers[other].String())
	require.NoError(t, err)
	assert.Equal(t, 3, kept.OfferID)
	assert.Equal(t, other.String(), kept.Lender)
	assert.Equal(t, int64(1_000_000_000), kept.Amount)
}

func TestWebhook_CollectionAndLoanInSeparateBatches(t *testing.T) {
	env := newTestEnv(t)
	collection, collectionMint := env.collection()
	env.initCollection(collection, collectionMint)

	mint := solana.NewWallet().PublicKey()
	env.putMetadata(mint, "https://arweave.net/12", &collectionMint)
	loan := env.listedLoan(mint)
	result := env.postBatch(env.build(env.tx().Instruction("askLoan", map[string]solana.PublicKey{
		"loan":       loan,
		"collection": collection,
		"mint":       mint,
	}, askLoanArgs(t, 5_000_000_000, 500, 604800))))
	assert.Equal(t, 1, result.Applied)
	assert.Zero(t, result.Skipped)

	state, code := env.loanState(loan)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "LISTED", state)

	n, err := env.skips.CountUnresolved(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWebhook_AbsentAccountIsJournaled(t *testing.T) {
	env := newTestEnv(t)
	collection, collectionMint := env.collection()
	env.initCollection(collection, collectionMint)

	mint := solana.NewWallet().PublicKey()
	env.putMetadata(mint, "https://arweave.net/12", &collectionMint)
	loan, err := ledger.LoanAddress(env.program, mint)
	require.NoError(t, err)

	// the node has not caught up with the account yet
	result := env.postBatch(env.build(env.tx().Signature("sig-absent").Instruction("askLoan", map[string]solana.PublicKey{
		"loan":       loan,
		"collection": collection,
		"mint":       mint,
	}, nil)))
	assert.Zero(t, result.Applied)
	assert.Equal(t, 1, result.Skipped)

	skips, err := env.skips.ListUnresolved(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, domain.SkipAccountAbsent, skips[0].Reason)
	assert.True(t, skips[0].Reason.Replayable())
	assert.Equal(t, loan.String(), skips[0].Address)

	entries, err := env.log.GetBySignature(t.Context(), "sig-absent")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].Applied)
	assert.Equal(t, 1, entries[0].Skipped)

	// replaying the journaled operation once the account is visible
	env.listedLoan(mint)
	op, err := OpFromSkip(skips[0])
	require.NoError(t, err)
	_, err = env.pipeline.applier.Apply(t.Context(), op)
	require.NoError(t, err)

	state, code := env.loanState(loan)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "LISTED", state)
}

func TestWebhook_UnsignedTransactionsJournaledSeparately(t *testing.T) {
	env := newTestEnv(t)
	collection, collectionMint := env.collection()
	first := env.build(env.tx().Signature("").Instruction("initCollection", map[string]solana.PublicKey{
		"collection": collection,
		"mint":       collectionMint,
	}, nil))
	second := env.build(env.tx().Signature("").Instruction("updateCollection", map[string]solana.PublicKey{
		"collection": collection,
	}, nil))

	result := env.postBatch(first, second)
	assert.Equal(t, 2, result.Skipped)

	skips, err := env.skips.ListUnresolved(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, skips, 2)
	assert.NotEqual(t, skips[0].SkipID, skips[1].SkipID)
	for _, skip := range skips {
		assert.Equal(t, domain.SkipMalformedTransaction, skip.Reason)
		assert.Contains(t, skip.Error, result.BatchID)
	}

	// the same bodies in another batch are another delivery
	env.postBatch(first)
	n, err := env.skips.CountUnresolved(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
