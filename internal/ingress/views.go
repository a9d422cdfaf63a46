package ingress

import "dexloan-indexer/internal/domain"

// JSON shapes of mirrored rows served by the read API.

type CollectionView struct {
	Address           string  `json:"address"`
	Mint              string  `json:"mint"`
	Authority         string  `json:"authority"`
	LoanEnabled       bool    `json:"loanEnabled"`
	LoanBasisPoints   int     `json:"loanBasisPoints"`
	OptionEnabled     bool    `json:"optionEnabled"`
	OptionBasisPoints int     `json:"optionBasisPoints"`
	RentalEnabled     bool    `json:"rentalEnabled"`
	RentalBasisPoints int     `json:"rentalBasisPoints"`
	Name              *string `json:"name"`
	Symbol            *string `json:"symbol"`
	URI               *string `json:"uri"`
	Disabled          bool    `json:"disabled"`
	UpdatedAt         int64   `json:"updatedAt"`
}

type LoanView struct {
	Address     string  `json:"address"`
	State       string  `json:"state"`
	Borrower    string  `json:"borrower"`
	Lender      *string `json:"lender"`
	Amount      *int64  `json:"amount"`
	BasisPoints int     `json:"basisPoints"`
	Duration    int64   `json:"duration"`
	StartDate   *int64  `json:"startDate"`
	Mint        string  `json:"mint"`
	URI         *string `json:"uri"`
	Collection  string  `json:"collection"`
	UpdatedAt   int64   `json:"updatedAt"`
}

type LoanOfferView struct {
	Address     string `json:"address"`
	OfferID     int    `json:"offerId"`
	Lender      string `json:"lender"`
	Amount      int64  `json:"amount"`
	BasisPoints int    `json:"basisPoints"`
	Duration    int64  `json:"duration"`
	LTV         *int   `json:"ltv"`
	Threshold   *int   `json:"threshold"`
	Collection  string `json:"collection"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type CallOptionView struct {
	Address     string  `json:"address"`
	State       string  `json:"state"`
	Seller      string  `json:"seller"`
	Buyer       *string `json:"buyer"`
	StrikePrice int64   `json:"strikePrice"`
	Cost        int64   `json:"cost"`
	Expiry      int64   `json:"expiry"`
	Mint        string  `json:"mint"`
	URI         *string `json:"uri"`
	Collection  string  `json:"collection"`
	UpdatedAt   int64   `json:"updatedAt"`
}

type CallOptionBidView struct {
	Address     string `json:"address"`
	BidID       int    `json:"bidId"`
	Buyer       string `json:"buyer"`
	StrikePrice int64  `json:"strikePrice"`
	Cost        int64  `json:"cost"`
	Expiry      int64  `json:"expiry"`
	Collection  string `json:"collection"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type RentalView struct {
	Address       string  `json:"address"`
	State         string  `json:"state"`
	Lender        string  `json:"lender"`
	Borrower      *string `json:"borrower"`
	Amount        int64   `json:"amount"`
	Expiry        int64   `json:"expiry"`
	CurrentStart  *int64  `json:"currentStart"`
	CurrentExpiry *int64  `json:"currentExpiry"`
	EscrowBalance int64   `json:"escrowBalance"`
	Mint          string  `json:"mint"`
	URI           *string `json:"uri"`
	Collection    string  `json:"collection"`
	UpdatedAt     int64   `json:"updatedAt"`
}

func collectionView(c *domain.Collection) CollectionView {
	return CollectionView{
		Address:           c.Address,
		Mint:              c.Mint,
		Authority:         c.Authority,
		LoanEnabled:       c.LoanEnabled,
		LoanBasisPoints:   c.LoanBasisPoints,
		OptionEnabled:     c.OptionEnabled,
		OptionBasisPoints: c.OptionBasisPoints,
		RentalEnabled:     c.RentalEnabled,
		RentalBasisPoints: c.RentalBasisPoints,
		Name:              c.Name,
		Symbol:            c.Symbol,
		URI:               c.URI,
		Disabled:          c.Disabled,
		UpdatedAt:         c.UpdatedAt,
	}
}

func loanView(l *domain.Loan) LoanView {
	return LoanView{
		Address:     l.Address,
		State:       l.State.String(),
		Borrower:    l.Borrower,
		Lender:      l.Lender,
		Amount:      l.Amount,
		BasisPoints: l.BasisPoints,
		Duration:    l.Duration,
		StartDate:   l.StartDate,
		Mint:        l.Mint,
		URI:         l.URI,
		Collection:  l.Collection,
		UpdatedAt:   l.UpdatedAt,
	}
}

func loanOfferView(o *domain.LoanOffer) LoanOfferView {
	return LoanOfferView{
		Address:     o.Address,
		OfferID:     o.OfferID,
		Lender:      o.Lender,
		Amount:      o.Amount,
		BasisPoints: o.BasisPoints,
		Duration:    o.Duration,
		LTV:         o.LTV,
		Threshold:   o.Threshold,
		Collection:  o.Collection,
		UpdatedAt:   o.UpdatedAt,
	}
}

func callOptionView(o *domain.CallOption) CallOptionView {
	return CallOptionView{
		Address:     o.Address,
		State:       o.State.String(),
		Seller:      o.Seller,
		Buyer:       o.Buyer,
		StrikePrice: o.StrikePrice,
		Cost:        o.Cost,
		Expiry:      o.Expiry,
		Mint:        o.Mint,
		URI:         o.URI,
		Collection:  o.Collection,
		UpdatedAt:   o.UpdatedAt,
	}
}

func callOptionBidView(b *domain.CallOptionBid) CallOptionBidView {
	return CallOptionBidView{
		Address:     b.Address,
		BidID:       b.BidID,
		Buyer:       b.Buyer,
		StrikePrice: b.StrikePrice,
		Cost:        b.Cost,
		Expiry:      b.Expiry,
		Collection:  b.Collection,
		UpdatedAt:   b.UpdatedAt,
	}
}

func rentalView(r *domain.Rental) RentalView {
	return RentalView{
		Address:       r.Address,
		State:         r.State.String(),
		Lender:        r.Lender,
		Borrower:      r.Borrower,
		Amount:        r.Amount,
		Expiry:        r.Expiry,
		CurrentStart:  r.CurrentStart,
		CurrentExpiry: r.CurrentExpiry,
		EscrowBalance: r.EscrowBalance,
		Mint:          r.Mint,
		URI:           r.URI,
		Collection:    r.Collection,
		UpdatedAt:     r.UpdatedAt,
	}
}
