package domain

// SkipReason categorizes why an operation was skipped.
type SkipReason string

const (
	SkipMalformedInstruction SkipReason = "MALFORMED_INSTRUCTION"
	SkipMalformedTransaction SkipReason = "MALFORMED_TRANSACTION"
	SkipFetchFailed          SkipReason = "FETCH_FAILED"
	SkipAccountAbsent        SkipReason = "ACCOUNT_ABSENT"
	SkipInvalidAccount       SkipReason = "INVALID_ACCOUNT"
	SkipMissingParent        SkipReason = "MISSING_PARENT"
	SkipStoreFailed          SkipReason = "STORE_FAILED"
	SkipUnroutable           SkipReason = "UNROUTABLE"
	SkipInternal             SkipReason = "INTERNAL"
)

// String returns the string representation of SkipReason.
func (r SkipReason) String() string {
	return string(r)
}

// Replayable reports whether re-running the operation later can succeed.
func (r SkipReason) Replayable() bool {
	switch r {
	case SkipFetchFailed, SkipAccountAbsent, SkipMissingParent, SkipStoreFailed:
		return true
	default:
		return false
	}
}

// SkipRecord is a journaled operation that could not be applied.
// Corresponds to index_skips table in PostgreSQL.
type SkipRecord struct {
	SkipID           string     // PRIMARY KEY, deterministic hash
	Signature        string     // transaction signature
	InstructionIndex int        // position within the transaction
	InstructionName  string     // empty when undecodable
	Action           string     // materializer action (empty when not routed)
	Kind             EntityKind // entity kind (empty when not routed)
	Address          string     // entity address (empty when not routed)
	CollectionHint   *string    // collection role address (nullable)
	MintHint         *string    // mint role address (nullable)
	Reason           SkipReason // category
	Error            string     // error text
	Attempts         int        // replay attempts so far
	CreatedAt        int64      // first recorded (ms)
	ResolvedAt       *int64     // when replay succeeded (nullable)
}
