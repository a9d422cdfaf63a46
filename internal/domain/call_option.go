package domain

// CallOptionState mirrors the on-chain call option state enum.
type CallOptionState string

const (
	CallOptionStateListed    CallOptionState = "LISTED"
	CallOptionStateActive    CallOptionState = "ACTIVE"
	CallOptionStateExercised CallOptionState = "EXERCISED"
	CallOptionStateCancelled CallOptionState = "CANCELLED"
)

// CallOptionStates are ordered by on-chain variant index.
var CallOptionStates = []CallOptionState{
	CallOptionStateListed,
	CallOptionStateActive,
	CallOptionStateExercised,
	CallOptionStateCancelled,
}

// String returns the string representation of CallOptionState.
func (s CallOptionState) String() string {
	return string(s)
}

// CallOption is a mirrored call option account.
type CallOption struct {
	Address     string          // PRIMARY KEY, option PDA
	State       CallOptionState // lifecycle state
	Seller      string          // seller wallet
	Buyer       *string         // buyer wallet (nullable)
	StrikePrice int64           // lamports
	Cost        int64           // premium in lamports
	Expiry      int64           // unix seconds
	Mint        string          // underlying mint
	URI         *string         // metadata uri (nullable)
	Collection  string          // FK to collections
	UpdatedAt   int64           // last write (ms)
}

// CallOptionBid is a standing buyer bid against a collection.
// Rows are created and deleted, never updated.
type CallOptionBid struct {
	Address     string // PRIMARY KEY, bid PDA
	BidID       int    // id scoped per buyer
	Buyer       string // buyer wallet
	StrikePrice int64  // lamports
	Cost        int64  // premium in lamports
	Expiry      int64  // unix seconds
	Collection  string // FK to collections
	UpdatedAt   int64  // last write (ms)
}
