package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/Zackkki/ecomm-datapipeline/landing"
	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// Detector lists unprocessed order batches in the landing area.
type Detector struct {
	store  landing.ObjectStore
	prefix string
	logger *logging.ComponentLogger
}

// NewDetector creates a detector for the given orders prefix.
func NewDetector(store landing.ObjectStore, prefix string, logger *logging.ComponentLogger) *Detector {
	return &Detector{store: store, prefix: prefix, logger: logger}
}

// Detect returns the batches whose processing is not yet finished, ordered by
// arrival time ascending. Batches whose persisted status is terminal are
// excluded; a batch left mid-flight by a previous run is returned with its
// last durable status so the coordinator resumes it at the right stage.
func (d *Detector) Detect(ctx context.Context, known map[string]warehouse.BatchStatus) ([]*Batch, error) {
	objects, err := d.store.List(ctx, d.prefix)
	if err != nil {
		return nil, Transient("detect", err)
	}

	var batches []*Batch
	for _, obj := range objects {
		// Only .json objects are order batches under this prefix
		if !strings.HasSuffix(obj.Path, ".json") {
			continue
		}

		id := ComputeBatchID(obj.Path, obj.Size, obj.Checksum)
		status, seen := known[id]
		if seen && status.Terminal() {
			continue
		}
		if !seen {
			status = warehouse.StatusDetected
		}

		batches = append(batches, &Batch{
			ID:               id,
			SourcePath:       obj.Path,
			Size:             obj.Size,
			Checksum:         obj.Checksum,
			ArrivalTimestamp: obj.ModTime,
			Status:           status,
		})
	}

	sort.Slice(batches, func(i, j int) bool {
		if batches[i].ArrivalTimestamp.Equal(batches[j].ArrivalTimestamp) {
			return batches[i].SourcePath < batches[j].SourcePath
		}
		return batches[i].ArrivalTimestamp.Before(batches[j].ArrivalTimestamp)
	})

	d.logger.Debug().
		Int("candidates", len(objects)).
		Int("detected", len(batches)).
		Msg("Batch detection complete")

	return batches, nil
}
