package domain

// RentalState mirrors the on-chain rental state enum.
type RentalState string

const (
	RentalStateListed RentalState = "LISTED"
	RentalStateRented RentalState = "RENTED"
)

// RentalStates are ordered by on-chain variant index.
var RentalStates = []RentalState{
	RentalStateListed,
	RentalStateRented,
}

// String returns the string representation of RentalState.
func (s RentalState) String() string {
	return string(s)
}

// Rental is a mirrored rental account.
type Rental struct {
	Address       string      // PRIMARY KEY, rental PDA
	State         RentalState // lifecycle state
	Lender        string      // owner wallet
	Borrower      *string     // current renter (nullable)
	Amount        int64       // lamports per day
	Expiry        int64       // latest allowed end, unix seconds
	CurrentStart  *int64      // current period start (nullable)
	CurrentExpiry *int64      // current period end (nullable)
	EscrowBalance int64       // lamports held in escrow
	Mint          string      // rented mint
	URI           *string     // metadata uri (nullable)
	Collection    string      // FK to collections
	UpdatedAt     int64       // last write (ms)
}
