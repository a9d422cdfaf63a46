package accounts

import (
	"bytes"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// metadataV1Key is the Metaplex account key of metadata accounts.
const metadataV1Key = 4

// Metadata is the descriptive record Metaplex keeps per mint.
type Metadata struct {
	Mint               solana.PublicKey
	UpdateAuthority    solana.PublicKey
	Name               string
	Symbol             string
	URI                string
	SellerFeeBps       uint16
	Collection         *solana.PublicKey // collection mint, set only when verified
	UnverifiedCreators int
}

type metadataHead struct {
	Key                  uint8
	UpdateAuthority      solana.PublicKey
	Mint                 solana.PublicKey
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
}

type metadataCreator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

type metadataCollection struct {
	Verified bool
	Key      solana.PublicKey
}

type metadataTail struct {
	Creators            *[]metadataCreator `bin:"optional"`
	PrimarySaleHappened bool
	IsMutable           bool
	EditionNonce        *uint8              `bin:"optional"`
	TokenStandard       *uint8              `bin:"optional"`
	Collection          *metadataCollection `bin:"optional"`
}

// ParseMetadata decodes a Metaplex metadata account. Accounts written by
// old program versions may end before the collection field; those decode
// without collection information.
func ParseMetadata(data []byte) (*Metadata, error) {
	if len(data) == 0 || data[0] != metadataV1Key {
		return nil, fmt.Errorf("%w: not a metadata account", ErrInvalidAccountData)
	}

	dec := bin.NewBorshDecoder(data)
	var head metadataHead
	if err := dec.Decode(&head); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrInvalidAccountData, err)
	}

	meta := &Metadata{
		Mint:            head.Mint,
		UpdateAuthority: head.UpdateAuthority,
		Name:            trimPadding(head.Name),
		Symbol:          trimPadding(head.Symbol),
		URI:             trimPadding(head.URI),
		SellerFeeBps:    head.SellerFeeBasisPoints,
	}

	var tail metadataTail
	if err := dec.Decode(&tail); err != nil {
		return meta, nil
	}
	if tail.Creators != nil {
		for _, c := range *tail.Creators {
			if !c.Verified {
				meta.UnverifiedCreators++
			}
		}
	}
	if tail.Collection != nil && tail.Collection.Verified {
		key := tail.Collection.Key
		meta.Collection = &key
	}
	return meta, nil
}

func trimPadding(s string) string {
	return strings.TrimRight(s, "\x00")
}

// EncodeMetadata serializes meta as a current-version metadata account.
// The collection, when set, is written as verified.
func EncodeMetadata(meta *Metadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)

	head := metadataHead{
		Key:                  metadataV1Key,
		UpdateAuthority:      meta.UpdateAuthority,
		Mint:                 meta.Mint,
		Name:                 meta.Name,
		Symbol:               meta.Symbol,
		URI:                  meta.URI,
		SellerFeeBasisPoints: meta.SellerFeeBps,
	}
	if err := enc.Encode(&head); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	tail := metadataTail{IsMutable: true}
	if meta.Collection != nil {
		tail.Collection = &metadataCollection{Verified: true, Key: *meta.Collection}
	}
	if err := enc.Encode(&tail); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}
