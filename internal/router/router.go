// Package router maps decoded instructions to materializer operations
// through a static table.
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"

	"dexloan-indexer/internal/decoder"
	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/idl"
	"dexloan-indexer/internal/ledger"
)

// ErrUnroutable is returned for an instruction with no table entry.
var ErrUnroutable = errors.New("no route for instruction")

// Action is what the materializer does with an entity.
type Action string

const (
	ActionUpsert  Action = "upsert"
	ActionRemove  Action = "remove"
	ActionCreate  Action = "create"
	ActionDelete  Action = "delete"
	ActionDisable Action = "disable"
)

// Roles that carry hints rather than entity addresses.
const (
	RoleCollection = "collection"
	RoleMint       = "mint"
)

// Op is one materializer operation on one entity.
type Op struct {
	Action  Action
	Kind    domain.EntityKind
	Address solana.PublicKey
	// CollectionHint is the instruction's collection account, when it has one.
	CollectionHint *solana.PublicKey
	// MintHint is the instruction's mint account, when it has one.
	MintHint *solana.PublicKey
}

func (o Op) String() string {
	return fmt.Sprintf("%s %s %s", o.Action, o.Kind, o.Address)
}

type step struct {
	action Action
	kind   domain.EntityKind
	role   string
}

func upsert(kind domain.EntityKind, role string) step { return step{ActionUpsert, kind, role} }
func remove(kind domain.EntityKind, role string) step { return step{ActionRemove, kind, role} }
func create(kind domain.EntityKind, role string) step { return step{ActionCreate, kind, role} }
func del(kind domain.EntityKind, role string) step { return step{ActionDelete, kind, role} }
func disable(kind domain.EntityKind, role string) step { return step{ActionDisable, kind, role} }

var (
	collection   = upsert(domain.KindCollection, "collection")
	loan         = upsert(domain.KindLoan, "loan")
	callOption   = upsert(domain.KindCallOption, "callOption")
	rental       = upsert(domain.KindRental, "rental")
	removeRental = remove(domain.KindRental, "rental")
	deleteOffer  = del(domain.KindLoanOffer, "loanOffer")
	deleteBid    = del(domain.KindCallOptionBid, "callOptionBid")
)

// table lists, per instruction, the operations to apply in order.
var table = map[string][]step{
	"initCollection":   {collection},
	"updateCollection": {collection},
	"closeCollection":  {disable(domain.KindCollection, "collection")},

	"askLoan":             {loan},
	"giveLoan":            {loan},
	"repayLoan":           {loan},
	"repossess":           {loan},
	"repossessWithRental": {loan, removeRental},
	"closeLoan":           {remove(domain.KindLoan, "loan")},

	"offerLoan":      {create(domain.KindLoanOffer, "loanOffer")},
	"takeLoanOffer":  {deleteOffer, loan},
	"closeLoanOffer": {deleteOffer},

	"askCallOption":                {callOption},
	"buyCallOption":                {callOption},
	"exerciseCallOption":           {callOption},
	"exerciseCallOptionWithRental": {callOption, removeRental},
	"closeCallOption":              {remove(domain.KindCallOption, "callOption")},

	"bidCallOption":      {create(domain.KindCallOptionBid, "callOptionBid")},
	"sellCallOption":     {deleteBid, callOption},
	"closeCallOptionBid": {deleteBid},

	"initRental":               {rental},
	"takeRental":               {rental},
	"extendRental":             {rental},
	"recoverRental":            {rental},
	"withdrawFromRentalEscrow": {rental},
	"closeRental":              {removeRental},
}

// Route returns the operations for ix in order. An unknown instruction
// returns ErrUnroutable. A missing entity role or an entity address that is
// not program-derived makes the instruction malformed.
func Route(ix *decoder.Instruction) ([]Op, error) {
	steps, ok := table[ix.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnroutable, ix.Name)
	}

	collectionHint := hint(ix, RoleCollection)
	mintHint := hint(ix, RoleMint)

	ops := make([]Op, 0, len(steps))
	for _, s := range steps {
		address, ok := ix.Account(s.role)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no %q account", decoder.ErrMalformedInstruction, ix.Name, s.role)
		}
		if ledger.IsOnCurve(address) {
			return nil, fmt.Errorf("%w: %s %q account %s is not program-derived",
				decoder.ErrMalformedInstruction, ix.Name, s.role, address)
		}
		ops = append(ops, Op{
			Action:         s.action,
			Kind:           s.kind,
			Address:        address,
			CollectionHint: collectionHint,
			MintHint:       mintHint,
		})
	}
	return ops, nil
}

// Validate checks that every schema instruction has a route whose roles
// the instruction declares, and that every route names a schema instruction.
func Validate(schema *idl.Schema) error {
	var problems []string

	for _, ix := range schema.Instructions {
		steps, ok := table[ix.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: no route", ix.Name))
			continue
		}
		for _, s := range steps {
			if !ix.HasRole(s.role) {
				problems = append(problems, fmt.Sprintf("%s: missing role %q", ix.Name, s.role))
			}
		}
	}
	for name := range table {
		if _, ok := schema.Instruction(name); !ok {
			problems = append(problems, fmt.Sprintf("%s: routed but not in schema", name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", idl.ErrInvalidSchema, strings.Join(problems, "; "))
	}
	return nil
}

// Routed reports whether name has a table entry.
func Routed(name string) bool {
	_, ok := table[name]
	return ok
}

func hint(ix *decoder.Instruction, role string) *solana.PublicKey {
	key, ok := ix.Account(role)
	if !ok {
		return nil
	}
	return &key
}
