// Package ingress accepts transaction batches over HTTP and runs them
// through decode, routing and materialization with per-operation failure
// isolation. Every skipped operation is journaled for reconciliation.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dexloan-indexer/internal/accounts"
	"dexloan-indexer/internal/decoder"
	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/idhash"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/materializer"
	"dexloan-indexer/internal/observability"
	"dexloan-indexer/internal/router"
	"dexloan-indexer/internal/storage"
)

// Applier applies one routed operation.
type Applier interface {
	Apply(ctx context.Context, op router.Op) (materializer.Outcome, error)
}

// BatchResult summarizes one processed batch.
type BatchResult struct {
	BatchID      string `json:"batch_id"`
	Transactions int    `json:"transactions"`
	Instructions int    `json:"instructions"`
	Operations   int    `json:"operations"`
	Applied      int    `json:"applied"`
	Skipped      int    `json:"skipped"`
	DurationMs   int64  `json:"duration_ms"`
}

// Pipeline processes batches strictly in order: transactions in array order,
// instructions in execution order, operations in route order.
type Pipeline struct {
	decoder        *decoder.Decoder
	applier        Applier
	skips          storage.SkipStore
	instructionLog storage.InstructionLogStore
	clock          func() time.Time
	logger         *zap.Logger

	highestSlot atomic.Int64
}

// PipelineOption configures Pipeline.
type PipelineOption func(*Pipeline)

// WithInstructionLog enables the instruction audit log.
func WithInstructionLog(store storage.InstructionLogStore) PipelineOption {
	return func(p *Pipeline) {
		p.instructionLog = store
	}
}

// WithPipelineClock sets the time source for journal timestamps.
func WithPipelineClock(clock func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// NewPipeline creates a pipeline.
func NewPipeline(dec *decoder.Decoder, applier Applier, skips storage.SkipStore, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		decoder: dec,
		applier: applier,
		skips:   skips,
		clock:   time.Now,
		logger:  logger.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleBatch processes txs to completion. Failures are journaled and
// counted, never returned; the caller should pass a context that outlives
// the request that delivered the batch.
func (p *Pipeline) HandleBatch(ctx context.Context, txs []ledger.Transaction) *BatchResult {
	start := p.clock()
	result := &BatchResult{
		BatchID:      uuid.NewString(),
		Transactions: len(txs),
	}
	logger := p.logger.With(zap.String("batch_id", result.BatchID))

	var entries []*domain.InstructionLogEntry
	for i := range txs {
		entries = append(entries, p.handleTransaction(ctx, logger, i, &txs[i], result)...)
	}
	p.appendLog(ctx, logger, result.BatchID, entries)

	elapsed := p.clock().Sub(start)
	result.DurationMs = elapsed.Milliseconds()
	observability.RecordBatch("ok", len(txs), elapsed)

	logger.Info("batch processed",
		zap.Int("transactions", result.Transactions),
		zap.Int("instructions", result.Instructions),
		zap.Int("applied", result.Applied),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", elapsed))
	return result
}

func (p *Pipeline) handleTransaction(ctx context.Context, logger *zap.Logger, index int, tx *ledger.Transaction, result *BatchResult) []*domain.InstructionLogEntry {
	signature := tx.Signature()
	if tx.Failed() {
		logger.Debug("ignoring failed transaction", zap.String("signature", signature))
		return nil
	}
	p.observeSlot(tx.Slot)

	instructions, errs := p.decoder.Decode(tx)
	for _, err := range errs {
		position := -1
		var ixErr *decoder.InstructionError
		if errors.As(err, &ixErr) {
			position = ixErr.Position
		}
		p.skip(ctx, logger, &domain.SkipRecord{
			SkipID:           idhash.ComputeSkipID(skipKey(signature, result.BatchID, index), position, "", "", ""),
			Signature:        signature,
			InstructionIndex: position,
			Reason:           Classify(err),
			Error:            txError(signature, result.BatchID, index, err),
		})
		result.Skipped++
	}

	entries := make([]*domain.InstructionLogEntry, 0, len(instructions))
	for i := range instructions {
		ix := &instructions[i]
		observability.RecordInstruction(ix.Name)
		result.Instructions++

		entry := &domain.InstructionLogEntry{
			Signature:        signature,
			Slot:             int64(tx.Slot),
			InstructionIndex: ix.Position,
			InstructionName:  ix.Name,
		}
		p.handleInstruction(ctx, logger, ix, entry)

		result.Operations += entry.Operations
		result.Applied += entry.Applied
		result.Skipped += entry.Skipped
		entries = append(entries, entry)
	}
	return entries
}

func (p *Pipeline) handleInstruction(ctx context.Context, logger *zap.Logger, ix *decoder.Instruction, entry *domain.InstructionLogEntry) {
	logger = logger.With(
		zap.String("signature", ix.Signature),
		zap.String("instruction", ix.Name),
		zap.Int("index", ix.Position))

	ops, err := router.Route(ix)
	if err != nil {
		if errors.Is(err, router.ErrUnroutable) {
			logger.DPanic("decoded instruction has no route", zap.Error(err))
		}
		p.skip(ctx, logger, &domain.SkipRecord{
			SkipID:           idhash.ComputeSkipID(ix.Signature, ix.Position, "", "", ""),
			Signature:        ix.Signature,
			InstructionIndex: ix.Position,
			InstructionName:  ix.Name,
			Reason:           Classify(err),
			Error:            err.Error(),
		})
		entry.Skipped++
		return
	}

	entry.Operations = len(ops)
	for _, op := range ops {
		outcome, err := p.applier.Apply(ctx, op)
		if err != nil {
			p.skip(ctx, logger, skipForOp(ix, op, err))
			entry.Skipped++
			continue
		}
		observability.RecordOperationApplied(string(op.Kind), string(op.Action))
		logger.Debug("operation applied",
			zap.String("action", string(op.Action)),
			zap.String("kind", string(op.Kind)),
			zap.String("address", op.Address.String()),
			zap.String("outcome", string(outcome)))
		entry.Applied++
	}
}

// skip journals rec. A journal failure is logged; the batch continues.
func (p *Pipeline) skip(ctx context.Context, logger *zap.Logger, rec *domain.SkipRecord) {
	rec.CreatedAt = p.clock().UnixMilli()
	observability.RecordOperationSkipped(string(rec.Reason))

	fields := []zap.Field{
		zap.String("signature", rec.Signature),
		zap.Int("index", rec.InstructionIndex),
		zap.String("reason", string(rec.Reason)),
		zap.String("error", rec.Error),
	}
	if rec.Kind != "" {
		fields = append(fields,
			zap.String("action", rec.Action),
			zap.String("kind", string(rec.Kind)),
			zap.String("address", rec.Address))
	}
	logger.Warn("operation skipped", fields...)

	if err := p.skips.Record(ctx, rec); err != nil {
		logger.Error("failed to journal skip", append(fields, zap.NamedError("journal_error", err))...)
	}
}

func (p *Pipeline) appendLog(ctx context.Context, logger *zap.Logger, batchID string, entries []*domain.InstructionLogEntry) {
	if p.instructionLog == nil || len(entries) == 0 {
		return
	}
	now := p.clock().UnixMilli()
	for _, e := range entries {
		e.BatchID = batchID
		e.ProcessedAt = now
	}
	if err := p.instructionLog.InsertBulk(ctx, entries); err != nil {
		logger.Error("failed to append instruction log", zap.Int("entries", len(entries)), zap.Error(err))
	}
}

func (p *Pipeline) observeSlot(slot uint64) {
	s := int64(slot)
	for {
		current := p.highestSlot.Load()
		if s <= current {
			return
		}
		if p.highestSlot.CompareAndSwap(current, s) {
			observability.UpdateHighestSlot(s)
			return
		}
	}
}

// skipKey identifies the transaction a skip belongs to. Unsigned bodies have
// no identity across deliveries, so they are keyed by batch and position.
func skipKey(signature, batchID string, index int) string {
	if signature != "" {
		return signature
	}
	return fmt.Sprintf("batch:%s:%d", batchID, index)
}

func txError(signature, batchID string, index int, err error) string {
	if signature != "" {
		return err.Error()
	}
	return fmt.Sprintf("transaction %d of batch %s: %v", index, batchID, err)
}

func skipForOp(ix *decoder.Instruction, op router.Op, err error) *domain.SkipRecord {
	return &domain.SkipRecord{
		SkipID:           idhash.ComputeSkipID(ix.Signature, ix.Position, string(op.Action), op.Kind, op.Address.String()),
		Signature:        ix.Signature,
		InstructionIndex: ix.Position,
		InstructionName:  ix.Name,
		Action:           string(op.Action),
		Kind:             op.Kind,
		Address:          op.Address.String(),
		CollectionHint:   keyString(op.CollectionHint),
		MintHint:         keyString(op.MintHint),
		Reason:           Classify(err),
		Error:            err.Error(),
	}
}

// Classify maps an error chain to its skip reason.
func Classify(err error) domain.SkipReason {
	switch {
	case errors.Is(err, materializer.ErrMissingParent):
		return domain.SkipMissingParent
	case errors.Is(err, materializer.ErrAccountAbsent):
		return domain.SkipAccountAbsent
	case errors.Is(err, accounts.ErrInvalidAccountData):
		return domain.SkipInvalidAccount
	case errors.Is(err, accounts.ErrFetchFailed):
		return domain.SkipFetchFailed
	case errors.Is(err, decoder.ErrMalformedInstruction):
		return domain.SkipMalformedInstruction
	case errors.Is(err, decoder.ErrMalformedTransaction):
		return domain.SkipMalformedTransaction
	case errors.Is(err, router.ErrUnroutable):
		return domain.SkipUnroutable
	case errors.Is(err, materializer.ErrUnsupportedOp):
		return domain.SkipInternal
	default:
		return domain.SkipStoreFailed
	}
}

// OpFromSkip rebuilds the operation a journaled skip refers to.
func OpFromSkip(rec *domain.SkipRecord) (router.Op, error) {
	if rec.Kind == "" || rec.Action == "" || rec.Address == "" {
		return router.Op{}, fmt.Errorf("skip %s has no operation", rec.SkipID)
	}
	address, err := solana.PublicKeyFromBase58(rec.Address)
	if err != nil {
		return router.Op{}, fmt.Errorf("skip %s address: %w", rec.SkipID, err)
	}
	op := router.Op{
		Action:  router.Action(rec.Action),
		Kind:    rec.Kind,
		Address: address,
	}
	if op.CollectionHint, err = parseHint(rec.CollectionHint); err != nil {
		return router.Op{}, fmt.Errorf("skip %s collection hint: %w", rec.SkipID, err)
	}
	if op.MintHint, err = parseHint(rec.MintHint); err != nil {
		return router.Op{}, fmt.Errorf("skip %s mint hint: %w", rec.SkipID, err)
	}
	return op, nil
}

func parseHint(s *string) (*solana.PublicKey, error) {
	if s == nil {
		return nil, nil
	}
	key, err := solana.PublicKeyFromBase58(*s)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func keyString(key *solana.PublicKey) *string {
	if key == nil {
		return nil
	}
	s := key.String()
	return &s
}
