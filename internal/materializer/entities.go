package materializer

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"dexloan-indexer/internal/accounts"
	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/ledger"
	"dexloan-indexer/internal/storage"
)

// parentHint carries the collection and mint accounts of the instruction
// that produced an operation. Both are nil for reconcile writes.
type parentHint struct {
	collection *solana.PublicKey
	mint       *solana.PublicKey
}

func (m *Materializer) writeCollection(ctx context.Context, address solana.PublicKey, acc *accounts.Collection) error {
	row := &domain.Collection{
		Address:           address.String(),
		Mint:              acc.Mint.String(),
		Authority:         acc.Authority.String(),
		LoanEnabled:       acc.Config.LoanEnabled,
		LoanBasisPoints:   int(acc.Config.LoanBasisPoints),
		OptionEnabled:     acc.Config.OptionEnabled,
		OptionBasisPoints: int(acc.Config.OptionBasisPoints),
		RentalEnabled:     acc.Config.RentalEnabled,
		RentalBasisPoints: int(acc.Config.RentalBasisPoints),
		UpdatedAt:         m.now(),
	}
	if meta := m.metadata(ctx, acc.Mint); meta != nil {
		row.Name = &meta.Name
		row.Symbol = &meta.Symbol
		row.URI = &meta.URI
	}
	return m.stores.Collections.Upsert(ctx, row)
}

func (m *Materializer) writeLoan(ctx context.Context, address solana.PublicKey, acc *accounts.Loan, hint parentHint) error {
	state, err := acc.LoanState()
	if err != nil {
		return err
	}
	row := &domain.Loan{
		Address:     address.String(),
		State:       state,
		Borrower:    acc.Borrower.String(),
		Lender:      optionalKey(acc.Lender),
		BasisPoints: int(acc.BasisPoints),
		Duration:    acc.Duration,
		StartDate:   acc.StartDate,
		Mint:        acc.Mint.String(),
		UpdatedAt:   m.now(),
	}
	if acc.Amount != nil {
		amount, err := accounts.Lamports(*acc.Amount)
		if err != nil {
			return err
		}
		row.Amount = &amount
	}

	meta := m.metadata(ctx, acc.Mint)
	row.URI = metadataURI(meta)
	if row.Collection, err = m.resolveParent(ctx, domain.KindLoan, row.Address, acc.Mint, hint, meta); err != nil {
		return err
	}
	return m.stores.Loans.Upsert(ctx, row)
}

func (m *Materializer) writeLoanOffer(ctx context.Context, address solana.PublicKey, acc *accounts.LoanOffer) error {
	amount, err := accounts.Lamports(acc.Amount)
	if err != nil {
		return err
	}
	row := &domain.LoanOffer{
		Address:     address.String(),
		OfferID:     int(acc.ID),
		Lender:      acc.Lender.String(),
		Amount:      amount,
		BasisPoints: int(acc.BasisPoints),
		Duration:    acc.Duration,
		LTV:         optionalInt(acc.LTV),
		Threshold:   optionalInt(acc.Threshold),
		Collection:  acc.Collection.String(),
		UpdatedAt:   m.now(),
	}
	// Same address replaces the row. Another address with the same
	// (id, lender) is a stale row whose close was not yet applied.
	return m.stores.LoanOffers.Upsert(ctx, row)
}

func (m *Materializer) writeCallOption(ctx context.Context, address solana.PublicKey, acc *accounts.CallOption, hint parentHint) error {
	state, err := acc.CallOptionState()
	if err != nil {
		return err
	}
	cost, err := accounts.Lamports(acc.Amount)
	if err != nil {
		return err
	}
	strike, err := accounts.Lamports(acc.StrikePrice)
	if err != nil {
		return err
	}
	row := &domain.CallOption{
		Address:     address.String(),
		State:       state,
		Seller:      acc.Seller.String(),
		Buyer:       optionalKey(acc.Buyer),
		StrikePrice: strike,
		Cost:        cost,
		Expiry:      acc.Expiry,
		Mint:        acc.Mint.String(),
		UpdatedAt:   m.now(),
	}

	meta := m.metadata(ctx, acc.Mint)
	row.URI = metadataURI(meta)
	if row.Collection, err = m.resolveParent(ctx, domain.KindCallOption, row.Address, acc.Mint, hint, meta); err != nil {
		return err
	}
	return m.stores.CallOptions.Upsert(ctx, row)
}

func (m *Materializer) writeCallOptionBid(ctx context.Context, address solana.PublicKey, acc *accounts.CallOptionBid) error {
	cost, err := accounts.Lamports(acc.Amount)
	if err != nil {
		return err
	}
	strike, err := accounts.Lamports(acc.StrikePrice)
	if err != nil {
		return err
	}
	row := &domain.CallOptionBid{
		Address:     address.String(),
		BidID:       int(acc.ID),
		Buyer:       acc.Buyer.String(),
		StrikePrice: strike,
		Cost:        cost,
		Expiry:      acc.Expiry,
		Collection:  acc.Collection.String(),
		UpdatedAt:   m.now(),
	}
	return m.stores.CallOptionBids.Upsert(ctx, row)
}

func (m *Materializer) writeRental(ctx context.Context, address solana.PublicKey, acc *accounts.Rental, hint parentHint) error {
	state, err := acc.RentalState()
	if err != nil {
		return err
	}
	amount, err := accounts.Lamports(acc.Amount)
	if err != nil {
		return err
	}
	escrow, err := accounts.Lamports(acc.EscrowBalance)
	if err != nil {
		return err
	}
	row := &domain.Rental{
		Address:       address.String(),
		State:         state,
		Lender:        acc.Lender.String(),
		Borrower:      optionalKey(acc.Borrower),
		Amount:        amount,
		Expiry:        acc.Expiry,
		CurrentStart:  acc.CurrentStart,
		CurrentExpiry: acc.CurrentExpiry,
		EscrowBalance: escrow,
		Mint:          acc.Mint.String(),
		UpdatedAt:     m.now(),
	}

	meta := m.metadata(ctx, acc.Mint)
	row.URI = metadataURI(meta)
	if row.Collection, err = m.resolveParent(ctx, domain.KindRental, row.Address, acc.Mint, hint, meta); err != nil {
		return err
	}
	return m.stores.Rentals.Upsert(ctx, row)
}

// resolveParent picks the collection of a mint-keyed entity: the instruction's
// collection account when the instruction's mint matches the account, then the verified collection in the mint metadata, then
// the collection already recorded for the row.
func (m *Materializer) resolveParent(ctx context.Context, kind domain.EntityKind, address string, mint solana.PublicKey, hint parentHint, meta *accounts.Metadata) (string, error) {
	if hint.collection != nil {
		if hint.mint == nil || hint.mint.Equals(mint) {
			return hint.collection.String(), nil
		}
		// the instruction's accounts describe another token
		m.logger.Warn("ignoring collection hint for mismatched mint",
			zap.String("kind", string(kind)),
			zap.String("address", address),
			zap.String("account_mint", mint.String()),
			zap.String("instruction_mint", hint.mint.String()))
	}
	if meta != nil && meta.Collection != nil {
		parent, err := ledger.CollectionAddress(m.fetcher.Program(), *meta.Collection)
		if err != nil {
			return "", fmt.Errorf("derive collection address: %w", err)
		}
		return parent.String(), nil
	}

	parent, err := m.existingParent(ctx, kind, address)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: %s %s has no collection hint", ErrMissingParent, kind, address)
	}
	if err != nil {
		return "", fmt.Errorf("read existing %s %s: %w", kind, address, err)
	}
	return parent, nil
}

func (m *Materializer) existingParent(ctx context.Context, kind domain.EntityKind, address string) (string, error) {
	switch kind {
	case domain.KindLoan:
		row, err := m.stores.Loans.Get(ctx, address)
		if err != nil {
			return "", err
		}
		return row.Collection, nil
	case domain.KindCallOption:
		row, err := m.stores.CallOptions.Get(ctx, address)
		if err != nil {
			return "", err
		}
		return row.Collection, nil
	case domain.KindRental:
		row, err := m.stores.Rentals.Get(ctx, address)
		if err != nil {
			return "", err
		}
		return row.Collection, nil
	}
	return "", storage.ErrNotFound
}

// metadata returns the mint's metadata, or nil when it is absent or unreadable.
func (m *Materializer) metadata(ctx context.Context, mint solana.PublicKey) *accounts.Metadata {
	meta, err := m.fetcher.FetchAuxiliary(ctx, mint)
	if err != nil {
		m.logger.Warn("metadata unavailable",
			zap.String("mint", mint.String()),
			zap.Error(err))
		return nil
	}
	return meta
}

func metadataURI(meta *accounts.Metadata) *string {
	if meta == nil {
		return nil
	}
	uri := meta.URI
	return &uri
}

func optionalKey(key *solana.PublicKey) *string {
	if key == nil {
		return nil
	}
	s := key.String()
	return &s
}

func optionalInt(v *uint32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
