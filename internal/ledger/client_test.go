package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func rpcServer(t *testing.T, handle func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handle(req),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_GetAccount(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	data := []byte{1, 2, 3, 4}

	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getAccountInfo", req.Method)
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
				"executable": false,
				"lamports":   1000,
				"owner":      owner.String(),
				"rentEpoch":  0,
			},
		}
	})

	client := NewClient(server.URL, zap.NewNop())
	acc, err := client.GetAccount(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, data, acc.Data)
	assert.Equal(t, owner, acc.Owner)
	assert.Equal(t, uint64(1000), acc.Lamports)
}

func TestClient_GetAccount_NotFound(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   nil,
		}
	})

	client := NewClient(server.URL, zap.NewNop())
	_, err := client.GetAccount(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestClient_GetAccount_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	_, err := client.GetAccount(context.Background(), solana.NewWallet().PublicKey())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
}

func TestClient_GetTransaction(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getTransaction", req.Method)
		var sig string
		require.NoError(t, json.Unmarshal(req.Params[0], &sig))
		if sig != "known" {
			return nil
		}
		return map[string]interface{}{
			"slot": 42,
			"meta": map[string]interface{}{"err": nil},
			"transaction": map[string]interface{}{
				"signatures": []string{"known"},
				"message": map[string]interface{}{
					"accountKeys":  []string{"A", "B"},
					"instructions": []map[string]interface{}{{"programIdIndex": 1, "accounts": []int{0}, "data": "1"}},
				},
			},
		}
	})

	client := NewClient(server.URL, zap.NewNop())

	tx, err := client.GetTransaction(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, "known", tx.Signature())
	assert.Equal(t, uint64(42), tx.Slot)
	assert.Equal(t, []string{"A", "B"}, tx.Keys())

	_, err = client.GetTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
