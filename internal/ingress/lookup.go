package ingress

import (
	"context"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

// kindPaths maps the /v1/{kind} path segment to the entity kind.
var kindPaths = map[string]domain.EntityKind{
	"collections":      domain.KindCollection,
	"loans":            domain.KindLoan,
	"loan-offers":      domain.KindLoanOffer,
	"call-options":     domain.KindCallOption,
	"call-option-bids": domain.KindCallOptionBid,
	"rentals":          domain.KindRental,
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, ok := kindPaths[vars["kind"]]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown entity kind")
		return
	}
	address := vars["address"]
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	view, err := s.lookup(r.Context(), kind, address)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logger.Error("lookup failed", zap.String("kind", string(kind)), zap.String("address", address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) lookup(ctx context.Context, kind domain.EntityKind, address string) (interface{}, error) {
	switch kind {
	case domain.KindCollection:
		c, err := s.mirror.Collections.Get(ctx, address)
		if err != nil {
			return nil, err
		}
		return collectionView(c), nil
	case domain.KindLoan:
		l, err := s.mirror.Loans.Get(ctx, address)
		if err != nil {
			return nil, err
		}
		return loanView(l), nil
	case domain.KindLoanOffer:
		o, err := s.mirror.LoanOffers.Get(ctx, address)
		if err != nil {
			return nil, err
		}
		return loanOfferView(o), nil
	case domain.KindCallOption:
		o, err := s.mirror.CallOptions.Get(ctx, address)
		if err != nil {
			return nil, err
		}
		return callOptionView(o), nil
	case domain.KindCallOptionBid:
		b, err := s.mirror.CallOptionBids.Get(ctx, address)
		if err != nil {
			return nil, err
		}
		return callOptionBidView(b), nil
	case domain.KindRental:
		rt, err := s.mirror.Rentals.Get(ctx, address)
		if err != nil {
			return nil, err
		}
		return rentalView(rt), nil
	}
	return nil, storage.ErrNotFound
}

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	borrower := r.URL.Query().Get("borrower")
	lender := r.URL.Query().Get("lender")
	if (borrower == "") == (lender == "") {
		writeError(w, http.StatusBadRequest, "exactly one of borrower or lender is required")
		return
	}

	var (
		loans []*domain.Loan
		err   error
	)
	if borrower != "" {
		loans, err = s.mirror.Loans.ListByBorrower(r.Context(), borrower)
	} else {
		loans, err = s.mirror.Loans.ListByLender(r.Context(), lender)
	}
	if err != nil {
		s.logger.Error("list loans failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	views := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, loanView(l))
	}
	writeJSON(w, http.StatusOK, views)
}
