package ledger

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

// MetadataProgramID is the Metaplex token metadata program.
var MetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// Seed prefixes of the listings program accounts.
const (
	seedCollection    = "collection"
	seedLoan          = "loan"
	seedLoanOffer     = "loan_offer"
	seedCallOption    = "call_option"
	seedCallOptionBid = "call_option_bid"
	seedRental        = "rental"
	seedMetadata      = "metadata"
)

// CollectionAddress derives the collection PDA for a collection mint.
func CollectionAddress(program, mint solana.PublicKey) (solana.PublicKey, error) {
	return derive(program, []byte(seedCollection), mint.Bytes())
}

// LoanAddress derives the loan PDA for a collateral mint.
func LoanAddress(program, mint solana.PublicKey) (solana.PublicKey, error) {
	return derive(program, []byte(seedLoan), mint.Bytes())
}

// LoanOfferAddress derives the offer PDA; offer ids are scoped per lender.
func LoanOfferAddress(program, lender solana.PublicKey, id uint8) (solana.PublicKey, error) {
	return derive(program, []byte(seedLoanOffer), lender.Bytes(), []byte{id})
}

// CallOptionAddress derives the call option PDA for an underlying mint.
func CallOptionAddress(program, mint solana.PublicKey) (solana.PublicKey, error) {
	return derive(program, []byte(seedCallOption), mint.Bytes())
}

// CallOptionBidAddress derives the bid PDA; bid ids are scoped per buyer.
func CallOptionBidAddress(program, buyer solana.PublicKey, id uint8) (solana.PublicKey, error) {
	return derive(program, []byte(seedCallOptionBid), buyer.Bytes(), []byte{id})
}

// RentalAddress derives the rental PDA for a mint.
func RentalAddress(program, mint solana.PublicKey) (solana.PublicKey, error) {
	return derive(program, []byte(seedRental), mint.Bytes())
}

// MetadataAddress derives the Metaplex metadata PDA for a mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	return derive(MetadataProgramID, []byte(seedMetadata), MetadataProgramID.Bytes(), mint.Bytes())
}

func derive(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("find program address: %w", err)
	}
	return addr, nil
}

// IsOnCurve reports whether the key is a valid ed25519 point. Program
// derived addresses never are.
func IsOnCurve(key solana.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}
