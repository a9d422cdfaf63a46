package ingress

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexloan-indexer/internal/accounts"
	"dexloan-indexer/internal/decoder"
	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/materializer"
	"dexloan-indexer/internal/router"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want domain.SkipReason
	}{
		{fmt.Errorf("write loan: %w", materializer.ErrMissingParent), domain.SkipMissingParent},
		{fmt.Errorf("fetch: %w", accounts.ErrFetchFailed), domain.SkipFetchFailed},
		{fmt.Errorf("upsert: %w", materializer.ErrAccountAbsent), domain.SkipAccountAbsent},
		{fmt.Errorf("fetch: %w", accounts.ErrInvalidAccountData), domain.SkipInvalidAccount},
		{&decoder.InstructionError{Err: decoder.ErrMalformedInstruction}, domain.SkipMalformedInstruction},
		{decoder.ErrMalformedTransaction, domain.SkipMalformedTransaction},
		{router.ErrUnroutable, domain.SkipUnroutable},
		{materializer.ErrUnsupportedOp, domain.SkipInternal},
		{errors.New("connection reset"), domain.SkipStoreFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestOpFromSkip_RoundTrip(t *testing.T) {
	collection := solana.NewWallet().PublicKey()
	op := router.Op{
		Action:         router.ActionRemove,
		Kind:           domain.KindRental,
		Address:        solana.NewWallet().PublicKey(),
		CollectionHint: &collection,
	}
	ix := &decoder.Instruction{Signature: "sig", Position: 3, Name: "closeRental"}

	rec := skipForOp(ix, op, errors.New("boom"))
	assert.Equal(t, 3, rec.InstructionIndex)
	assert.Nil(t, rec.MintHint)

	got, err := OpFromSkip(rec)
	require.NoError(t, err)
	assert.Equal(t, op, got)
}

func TestOpFromSkip_InstructionLevel(t *testing.T) {
	_, err := OpFromSkip(&domain.SkipRecord{SkipID: "x", Reason: domain.SkipMalformedInstruction})
	assert.Error(t, err)

	_, err = OpFromSkip(&domain.SkipRecord{SkipID: "x", Action: "upsert", Kind: domain.KindLoan, Address: "bad!"})
	assert.Error(t, err)
}

type recordingApplier struct {
	ops  []router.Op
	fail map[domain.EntityKind]error
}

func (a *recordingApplier) Apply(_ context.Context, op router.Op) (materializer.Outcome, error) {
	a.ops = append(a.ops, op)
	if err := a.fail[op.Kind]; err != nil {
		return "", err
	}
	return materializer.OutcomeWritten, nil
}

func TestPipeline_OperationOrderAndIsolation(t *testing.T) {
	env := newTestEnv(t)
	applier := &recordingApplier{fail: map[domain.EntityKind]error{
		domain.KindLoanOffer: fmt.Errorf("fetch: %w", accounts.ErrFetchFailed),
	}}
	pipeline := NewPipeline(env.pipeline.decoder, applier, env.skips, env.pipeline.logger)

	offer := pdaFor(t, env.program, "loan_offer")
	loan := pdaFor(t, env.program, "loan")
	tx := env.build(env.tx().Instruction("takeLoanOffer", map[string]solana.PublicKey{
		"loanOffer": offer,
		"loan":      loan,
	}, nil))

	result := pipeline.HandleBatch(context.Background(), []ledger.Transaction{tx})
	require.Len(t, applier.ops, 2)
	assert.Equal(t, router.ActionDelete, applier.ops[0].Action)
	assert.Equal(t, offer, applier.ops[0].Address)
	assert.Equal(t, router.ActionUpsert, applier.ops[1].Action)
	assert.Equal(t, loan, applier.ops[1].Address)
	assert.Equal(t, 2, result.Operations)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)

	skips, err := env.skips.ListUnresolved(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, domain.SkipFetchFailed, skips[0].Reason)
	assert.Equal(t, "delete", skips[0].Action)
}

func pdaFor(t *testing.T, program solana.PublicKey, seed string) solana.PublicKey {
	t.Helper()
	key, _, err := solana.FindProgramAddress([][]byte{[]byte(seed), solana.NewWallet().PublicKey().Bytes()}, program)
	require.NoError(t, err)
	return key
}
