package domain

// InstructionLogEntry is an append-only audit record of one decoded
// instruction and what happened to the operations it implied.
// Corresponds to instruction_log table in ClickHouse.
type InstructionLogEntry struct {
	BatchID          string
	Signature        string
	Slot             int64
	InstructionIndex int
	InstructionName  string
	Operations       int
	Applied          int
	Skipped          int
	ProcessedAt      int64 // ms
}
