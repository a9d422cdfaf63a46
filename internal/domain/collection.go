package domain

// Collection is a mirrored collection account.
// Corresponds to collections table in PostgreSQL.
type Collection struct {
	Address           string  // PRIMARY KEY, collection PDA
	Mint              string  // collection NFT mint
	Authority         string  // collection authority
	LoanEnabled       bool    // loans market enabled
	LoanBasisPoints   int     // loan fee rate
	OptionEnabled     bool    // call option market enabled
	OptionBasisPoints int     // call option fee rate
	RentalEnabled     bool    // rental market enabled
	RentalBasisPoints int     // rental fee rate
	Name              *string // metadata name (nullable)
	Symbol            *string // metadata symbol (nullable)
	URI               *string // metadata uri (nullable)
	Disabled          bool    // set when the account is closed
	UpdatedAt         int64   // last write (ms)
}
