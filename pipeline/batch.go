// Package pipeline implements the incremental order ELT engine: batch
// detection, staging load, quality gating, star-schema transform, rolling
// aggregation and archival, sequenced by a per-batch state machine.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// Batch is one discrete unit of input: a single landed object.
type Batch struct {
	ID               string
	SourcePath       string
	Size             int64
	Checksum         string
	ArrivalTimestamp time.Time
	RecordCount      int64
	Status           warehouse.BatchStatus
}

// ComputeBatchID derives a stable batch id from the object's path, size and
// content checksum. Re-uploads of identical content hash to the same id, so
// at-least-once delivery collapses to effective exactly-once processing.
func ComputeBatchID(path string, size int64, checksum string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", path, size, checksum)))
	return hex.EncodeToString(sum[:])[:16]
}

// Record converts the batch to its durable warehouse representation.
func (b *Batch) Record(attempts int, lastError string) *warehouse.BatchRecord {
	return &warehouse.BatchRecord{
		BatchID:          b.ID,
		SourcePath:       b.SourcePath,
		Checksum:         b.Checksum,
		RecordCount:      b.RecordCount,
		ArrivalTimestamp: b.ArrivalTimestamp,
		Status:           b.Status,
		Attempts:         attempts,
		LastError:        lastError,
	}
}
