// Package memory provides in-memory store implementations for tests and
// runs without a database.
package memory

import "dexloan-indexer/internal/storage"

// NewMirror creates a full set of entity stores sharing one collection table.
func NewMirror() storage.Mirror {
	collections := NewCollectionStore()
	return storage.Mirror{
		Collections:    collections,
		Loans:          NewLoanStore(collections),
		LoanOffers:     NewLoanOfferStore(collections),
		CallOptions:    NewCallOptionStore(collections),
		CallOptionBids: NewCallOptionBidStore(collections),
		Rentals:        NewRentalStore(collections),
	}
}
