package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

func TestWebhook_InitCollectionThenAskLoan(t *testing.T) {
	env := newTestEnv(t)
	collection, collectionMint := env.collection()
	mint := solana.NewWallet().PublicKey()
	env.putMetadata(mint, "https://arweave.net/12", &collectionMint)
	loan := env.listedLoan(mint)

	init := env.tx().Instruction("initCollection", map[string]solana.PublicKey{
		"collection": collection,
		"mint":       collectionMint,
	}, nil)
	ask := env.tx().Instruction("askLoan", map[string]solana.PublicKey{
		"loan":       loan,
		"collection": collection,
		"mint":       mint,
	}, askLoanArgs(t, 5_000_000_000, 500, 604800))

	result := env.postBatch(env.build(init), env.build(ask))
	assert.NotEmpty(t, result.BatchID)
	assert.Equal(t, 2, result.Transactions)
	assert.Equal(t, 2, result.Instructions)
	assert.Equal(t, 2, result.Applied)
	assert.Zero(t, result.Skipped)

	rec := env.get("/v1/loans/" + loan.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var view LoanView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "LISTED", view.State)
	assert.Equal(t, int64(5_000_000_000), *view.Amount)
	assert.Equal(t, 500, view.BasisPoints)
	assert.Equal(t, int64(604800), view.Duration)
	assert.Equal(t, collection.String(), view.Collection)
	assert.Equal(t, "https://arweave.net/12", *view.URI)

	rec = env.get("/v1/collections/" + collection.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var coll CollectionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &coll))
	assert.Equal(t, "Chicken", *coll.Name)

	rec = env.get("/v1/loans?borrower=" + view.Borrower)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []LoanView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, loan.String(), list[0].Address)
}

func TestWebhook_MissingParentIsJournaled(t *testing.T) {
	env := newTestEnv(t)
	collection, _ := env.collection()
	mint := solana.NewWallet().PublicKey()
	loan := env.listedLoan(mint)

	tx := env.build(env.tx().Signature("sig-missing-parent").Instruction("askLoan", map[string]solana.PublicKey{
		"loan":       loan,
		"collection": collection,
		"mint":       mint,
	}, nil))

	result := env.postBatch(tx)
	assert.Zero(t, result.Applied)
	assert.Equal(t, 1, result.Skipped)

	skips, err := env.skips.ListUnresolved(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, skips, 1)
	skip := skips[0]
	assert.Equal(t, domain.SkipMissingParent, skip.Reason)
	assert.Equal(t, "sig-missing-parent", skip.Signature)
	assert.Equal(t, "askLoan", skip.InstructionName)
	assert.Equal(t, domain.KindLoan, skip.Kind)
	assert.Equal(t, loan.String(), skip.Address)
	require.NotNil(t, skip.CollectionHint)
	assert.Equal(t, collection.String(), *skip.CollectionHint)
	assert.Equal(t, 1, skip.Attempts)

	// Redelivery lands on the same journal entry.
	env.postBatch(tx)
	again, err := env.skips.Get(t.Context(), skip.SkipID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempts)

	rec := env.get("/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, int64(1), status.UnresolvedSkips)
}

func TestWebhook_FailuresAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	collection, collectionMint := env.collection()

	// entity role bound to a wallet rather than a program address
	malformed := env.tx().Instruction("askLoan", map[string]solana.PublicKey{
		"loan": solana.NewWallet().PublicKey(),
	}, nil)
	failed := env.tx().Failed().Instruction("initCollection", map[string]solana.PublicKey{
		"collection": collection,
	}, nil)
	good := env.tx().Instruction("initCollection", map[string]solana.PublicKey{
		"collection": collection,
		"mint":       collectionMint,
	}, nil)

	result := env.postBatch(env.build(malformed), env.build(failed), env.build(good))
	assert.Equal(t, 3, result.Transactions)
	assert.Equal(t, 2, result.Instructions, "failed transaction is not decoded")
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)

	skips, err := env.skips.ListUnresolved(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, domain.SkipMalformedInstruction, skips[0].Reason)
	assert.Empty(t, skips[0].Kind)

	_, err = env.mirror.Collections.Get(t.Context(), collection.String())
	assert.NoError(t, err)
}

func TestWebhook_InstructionLog(t *testing.T) {
	env := newTestEnv(t)
	collection, collectionMint := env.collection()
	tx := env.build(env.tx().Slot(42).Signature("sig-log").Instruction("initCollection", map[string]solana.PublicKey{
		"collection": collection,
		"mint":       collectionMint,
	}, nil))

	result := env.postBatch(tx)

	entries, err := env.log.GetBySignature(t.Context(), "sig-log")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.BatchID, entries[0].BatchID)
	assert.Equal(t, int64(42), entries[0].Slot)
	assert.Equal(t, "initCollection", entries[0].InstructionName)
	assert.Equal(t, 1, entries[0].Operations)
	assert.Equal(t, 1, entries[0].Applied)
}

func TestWebhook_RejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post("", []byte(`[]`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.post("Bearer wrong", []byte(`[]`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.post(testToken, []byte(`{"not":"an array"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")

	rec = env.post(testToken, []byte(`[{"transaction":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(testToken, []byte(`[]`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhook_BodyLimit(t *testing.T) {
	env := newTestEnv(t)
	server := NewServer(Config{MaxBodyBytes: 16}, env.pipeline, env.mirror, env.skips, zap.NewNop())

	rec := httptestPost(server, "/webhook", "["+strings.Repeat(" ", 64)+"]")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLookup(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/v1/widgets/" + solana.NewWallet().PublicKey().String())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.get("/v1/loans/not-base58!")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get("/v1/rentals/" + solana.NewWallet().PublicKey().String())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.get("/v1/loans")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get("/v1/loans?borrower=a&lender=b")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get("/v1/loans?lender=nobody")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = env.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dexloan_indexer_")
}

func TestStatus_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	server := NewServer(Config{}, env.pipeline, env.mirror, failingSkips{env.skips}, zap.NewNop())

	rec := httptestGet(server, "/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingSkips struct {
	storage.SkipStore
}

func (failingSkips) CountUnresolved(_ context.Context) (int64, error) {
	return 0, errors.New("database unavailable")
}

func httptestPost(server *Server, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func httptestGet(server *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}
