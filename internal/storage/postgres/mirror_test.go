package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

func TestCollectionStore_UpsertGetDisable(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCollectionStore(pool)
	ctx := context.Background()

	c := &domain.Collection{
		Address:         "col1",
		Mint:            "mint1",
		Authority:       "auth1",
		LoanEnabled:     true,
		LoanBasisPoints: 200,
		Name:            ptr("Chickens"),
		UpdatedAt:       1000,
	}
	require.NoError(t, store.Upsert(ctx, c))

	c.LoanBasisPoints = 250
	c.URI = ptr("https://example.com/c.json")
	c.UpdatedAt = 2000
	require.NoError(t, store.Upsert(ctx, c))

	got, err := store.Get(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	require.NoError(t, store.SetDisabled(ctx, "col1", true, 3000))
	got, err = store.Get(ctx, "col1")
	require.NoError(t, err)
	assert.True(t, got.Disabled)
	assert.Equal(t, int64(3000), got.UpdatedAt)

	assert.ErrorIs(t, store.SetDisabled(ctx, "missing", true, 1), storage.ErrNotFound)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLoanStore_UpsertIdempotentAndParent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLoanStore(pool)
	ctx := context.Background()

	loan := &domain.Loan{
		Address:     "loan1",
		State:       domain.LoanStateListed,
		Borrower:    "alice",
		BasisPoints: 500,
		Duration:    604800,
		Amount:      ptr(int64(5_000_000_000)),
		Mint:        "mint1",
		Collection:  "col1",
		UpdatedAt:   1,
	}
	assert.ErrorIs(t, store.Upsert(ctx, loan), storage.ErrParentMissing)

	seedCollection(t, pool, "col1")
	require.NoError(t, store.Upsert(ctx, loan))
	require.NoError(t, store.Upsert(ctx, loan))

	loan.State = domain.LoanStateActive
	loan.Lender = ptr("bob")
	loan.StartDate = ptr(int64(1_700_000_000))
	require.NoError(t, store.Upsert(ctx, loan))

	got, err := store.Get(ctx, "loan1")
	require.NoError(t, err)
	assert.Equal(t, loan, got)

	byLender, err := store.ListByLender(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, byLender, 1)

	byBorrower, err := store.ListByBorrower(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byBorrower, 1)

	require.NoError(t, store.Delete(ctx, "loan1"))
	require.NoError(t, store.Delete(ctx, "loan1"))
	_, err = store.Get(ctx, "loan1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoanOfferStore_UpsertUniquePerLender(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	seedCollection(t, pool, "col1")
	store := NewLoanOfferStore(pool)
	ctx := context.Background()

	offer := &domain.LoanOffer{
		Address:     "offer1",
		OfferID:     0,
		Lender:      "alice",
		Amount:      1_000_000_000,
		BasisPoints: 300,
		Duration:    86400,
		LTV:         ptr(60),
		Collection:  "col1",
		UpdatedAt:   1,
	}
	require.NoError(t, store.Upsert(ctx, offer))

	// same PDA reopened with new terms replaces the row
	offer.Amount = 9_000_000_000
	offer.BasisPoints = 900
	offer.LTV = nil
	offer.UpdatedAt = 2
	require.NoError(t, store.Upsert(ctx, offer))

	sameID := *offer
	sameID.Address = "offer2"
	assert.ErrorIs(t, store.Upsert(ctx, &sameID), storage.ErrDuplicateKey)

	otherLender := *offer
	otherLender.Address = "offer3"
	otherLender.Lender = "bob"
	require.NoError(t, store.Upsert(ctx, &otherLender))

	got, err := store.Get(ctx, "offer1")
	require.NoError(t, err)
	assert.Equal(t, offer, got)

	require.NoError(t, store.Delete(ctx, "offer1"))
	_, err = store.Get(ctx, "offer1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCallOptionAndBidStores(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	seedCollection(t, pool, "col1")
	options := NewCallOptionStore(pool)
	bids := NewCallOptionBidStore(pool)
	ctx := context.Background()

	option := &domain.CallOption{
		Address:     "opt1",
		State:       domain.CallOptionStateListed,
		Seller:      "alice",
		StrikePrice: 10,
		Cost:        1,
		Expiry:      1_800_000_000,
		Mint:        "mint1",
		Collection:  "col1",
		UpdatedAt:   1,
	}
	require.NoError(t, options.Upsert(ctx, option))
	option.State = domain.CallOptionStateActive
	option.Buyer = ptr("bob")
	require.NoError(t, options.Upsert(ctx, option))

	got, err := options.Get(ctx, "opt1")
	require.NoError(t, err)
	assert.Equal(t, option, got)

	bid := &domain.CallOptionBid{Address: "bid1", BidID: 1, Buyer: "bob", StrikePrice: 10, Cost: 1, Expiry: 2, Collection: "col1", UpdatedAt: 1}
	require.NoError(t, bids.Upsert(ctx, bid))
	bid.Cost = 7
	require.NoError(t, bids.Upsert(ctx, bid))
	gotBid, err := bids.Get(ctx, "bid1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), gotBid.Cost)

	dup := *bid
	dup.Address = "bid9"
	assert.ErrorIs(t, bids.Upsert(ctx, &dup), storage.ErrDuplicateKey)

	orphan := *bid
	orphan.Address = "bid2"
	orphan.BidID = 2
	orphan.Collection = "nope"
	assert.ErrorIs(t, bids.Upsert(ctx, &orphan), storage.ErrParentMissing)
}

func TestRentalStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	seedCollection(t, pool, "col1")
	store := NewRentalStore(pool)
	ctx := context.Background()

	rental := &domain.Rental{
		Address:       "rent1",
		State:         domain.RentalStateRented,
		Lender:        "alice",
		Borrower:      ptr("bob"),
		Amount:        100,
		Expiry:        1_800_000_000,
		CurrentStart:  ptr(int64(1_700_000_000)),
		CurrentExpiry: ptr(int64(1_700_086_400)),
		EscrowBalance: 100,
		Mint:          "mint1",
		URI:           ptr("https://example.com/1.json"),
		Collection:    "col1",
		UpdatedAt:     1,
	}
	require.NoError(t, store.Upsert(ctx, rental))

	got, err := store.Get(ctx, "rent1")
	require.NoError(t, err)
	assert.Equal(t, rental, got)

	require.NoError(t, store.Delete(ctx, "rent1"))
	_, err = store.Get(ctx, "rent1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
