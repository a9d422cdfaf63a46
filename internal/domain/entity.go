package domain

// EntityKind identifies a mirrored entity type.
type EntityKind string

const (
	KindCollection    EntityKind = "collection"
	KindLoan          EntityKind = "loan"
	KindLoanOffer     EntityKind = "loan_offer"
	KindCallOption    EntityKind = "call_option"
	KindCallOptionBid EntityKind = "call_option_bid"
	KindRental        EntityKind = "rental"
)

// AllKinds lists every entity kind, parents first.
var AllKinds = []EntityKind{
	KindCollection,
	KindLoan,
	KindLoanOffer,
	KindCallOption,
	KindCallOptionBid,
	KindRental,
}

// String returns the string representation of EntityKind.
func (k EntityKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EntityKind) IsValid() bool {
	_, ok := accountNames[k]
	return ok
}

// AccountName returns the on-chain account type name for the kind.
func (k EntityKind) AccountName() string {
	return accountNames[k]
}

// HasParent reports whether rows of this kind reference a Collection.
func (k EntityKind) HasParent() bool {
	return k != KindCollection && k.IsValid()
}

var accountNames = map[EntityKind]string{
	KindCollection:    "Collection",
	KindLoan:          "Loan",
	KindLoanOffer:     "LoanOffer",
	KindCallOption:    "CallOption",
	KindCallOptionBid: "CallOptionBid",
	KindRental:        "Rental",
}
