package domain

// LoanState mirrors the on-chain loan state enum.
type LoanState string

const (
	LoanStateUnlisted  LoanState = "UNLISTED"
	LoanStateListed    LoanState = "LISTED"
	LoanStateActive    LoanState = "ACTIVE"
	LoanStateDefaulted LoanState = "DEFAULTED"
	LoanStateRepaid    LoanState = "REPAID"
	LoanStateCancelled LoanState = "CANCELLED"
)

// LoanStates are ordered by on-chain variant index.
var LoanStates = []LoanState{
	LoanStateUnlisted,
	LoanStateListed,
	LoanStateActive,
	LoanStateDefaulted,
	LoanStateRepaid,
	LoanStateCancelled,
}

// String returns the string representation of LoanState.
func (s LoanState) String() string {
	return string(s)
}

// Loan is a mirrored loan account.
// Corresponds to loans table in PostgreSQL.
type Loan struct {
	Address     string    // PRIMARY KEY, loan PDA
	State       LoanState // lifecycle state
	Borrower    string    // borrower wallet
	Lender      *string   // lender wallet (nullable)
	Amount      *int64    // principal in lamports (nullable until funded)
	BasisPoints int       // interest rate
	Duration    int64     // seconds
	StartDate   *int64    // unix seconds (nullable)
	Mint        string    // collateral mint
	URI         *string   // collateral metadata uri (nullable)
	Collection  string    // FK to collections
	UpdatedAt   int64     // last write (ms)
}

// LoanOffer is a standing lender offer against a collection.
// Rows are created and deleted, never updated.
type LoanOffer struct {
	Address     string // PRIMARY KEY, offer PDA
	OfferID     int    // id scoped per lender
	Lender      string // lender wallet
	Amount      int64  // lamports
	BasisPoints int    // interest rate
	Duration    int64  // seconds
	LTV         *int   // loan-to-value (nullable)
	Threshold   *int   // liquidation threshold (nullable)
	Collection  string // FK to collections
	UpdatedAt   int64  // last write (ms)
}
