package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"dexloan-indexer/internal/domain"
)

// ComputeSkipID computes a deterministic skip_id using SHA256.
// Formula: SHA256(signature|instruction_index|action|kind|address)
// Returns hex-encoded hash (64 characters).
//
// Instruction-level failures, which have no operation yet, pass empty
// action, kind and address. Redelivering the same transaction therefore
// maps every failure onto the record it produced the first time.
func ComputeSkipID(
	signature string,
	instructionIndex int,
	action string,
	kind domain.EntityKind,
	address string,
) string {
	data := fmt.Sprintf("%s|%d|%s|%s|%s",
		signature,
		instructionIndex,
		action,
		string(kind),
		address,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
