package ingress

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dexloan-indexer/internal/accounts"
	"dexloan-indexer/internal/decoder"
	"dexloan-indexer/internal/idl"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/ledger/stub"
	"dexloan-indexer/internal/materializer"
	"dexloan-indexer/internal/storage"
	"dexloan-indexer/internal/storage/memory"
)

const testToken = "Bearer secret"

type testEnv struct {
	t        *testing.T
	ledger   *stub.Ledger
	program  solana.PublicKey
	schema   *idl.Schema
	mirror   storage.Mirror
	skips    *memory.SkipStore
	log      *memory.InstructionLogStore
	pipeline *Pipeline
	server   *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	schema, err := idl.Load()
	require.NoError(t, err)

	program := solana.NewWallet().PublicKey()
	l := stub.NewLedger()
	fetcher := accounts.NewFetcher(l, program, accounts.FetcherConfig{
		MaxAttempts:    2,
		RetryDelay:     time.Millisecond,
		MaxDelay:       time.Millisecond,
		AbsentRechecks: 1,
	}, zap.NewNop())
	mirror := memory.NewMirror()
	skips := memory.NewSkipStore()
	log := memory.NewInstructionLogStore()

	pipeline := NewPipeline(
		decoder.New(schema, program, zap.NewNop()),
		materializer.New(fetcher, mirror, zap.NewNop()),
		skips,
		zap.NewNop(),
		WithInstructionLog(log),
	)
	server := NewServer(Config{AuthToken: testToken}, pipeline, mirror, skips, zap.NewNop())

	return &testEnv{
		t:        t,
		ledger:   l,
		program:  program,
		schema:   schema,
		mirror:   mirror,
		skips:    skips,
		log:      log,
		pipeline: pipeline,
		server:   server,
	}
}

func (e *testEnv) put(address solana.PublicKey, state accounts.State) {
	e.t.Helper()
	data, err := accounts.Encode(state)
	require.NoError(e.t, err)
	e.ledger.SetAccount(address, e.program, data)
}

func (e *testEnv) putMetadata(mint solana.PublicKey, uri string, collectionMint *solana.PublicKey) {
	e.t.Helper()
	address, err := ledger.MetadataAddress(mint)
	require.NoError(e.t, err)
	data, err := accounts.EncodeMetadata(&accounts.Metadata{Mint: mint, Name: "Chicken", Symbol: "CHKN", URI: uri, Collection: collectionMint})
	require.NoError(e.t, err)
	e.ledger.SetAccount(address, ledger.MetadataProgramID, data)
}

// collection places a collection account on the ledger.
func (e *testEnv) collection() (address, mint solana.PublicKey) {
	e.t.Helper()
	mint = solana.NewWallet().PublicKey()
	address, err := ledger.CollectionAddress(e.program, mint)
	require.NoError(e.t, err)
	e.put(address, &accounts.Collection{
		Authority: solana.NewWallet().PublicKey(),
		Mint:      mint,
		Config:    accounts.CollectionConfig{LoanEnabled: true, LoanBasisPoints: 200},
	})
	e.putMetadata(mint, "https://arweave.net/collection", nil)
	return address, mint
}

// listedLoan places a listed loan account for mint on the ledger.
func (e *testEnv) listedLoan(mint solana.PublicKey) solana.PublicKey {
	e.t.Helper()
	address, err := ledger.LoanAddress(e.program, mint)
	require.NoError(e.t, err)
	amount := uint64(5_000_000_000)
	e.put(address, &accounts.Loan{
		State:       1,
		Borrower:    solana.NewWallet().PublicKey(),
		Mint:        mint,
		BasisPoints: 500,
		Duration:    604800,
		Amount:      &amount,
	})
	return address
}

func (e *testEnv) tx() *stub.TxBuilder {
	return stub.NewTxBuilder(e.schema, e.program)
}

func (e *testEnv) build(b *stub.TxBuilder) ledger.Transaction {
	e.t.Helper()
	tx, err := b.Build()
	require.NoError(e.t, err)
	return *tx
}

func (e *testEnv) post(token string, body []byte) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postBatch(txs ...ledger.Transaction) *BatchResult {
	e.t.Helper()
	body, err := json.Marshal(txs)
	require.NoError(e.t, err)
	rec := e.post(testToken, body)
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())

	var result BatchResult
	require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &result))
	return &result
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	e.t.Helper()
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func askLoanArgs(t *testing.T, amount uint64, basisPoints uint32, duration int64) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	require.NoError(t, enc.Encode(amount))
	require.NoError(t, enc.Encode(basisPoints))
	require.NoError(t, enc.Encode(duration))
	return buf.Bytes()
}
