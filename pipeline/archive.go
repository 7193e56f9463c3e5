package pipeline

import (
	"context"
	"fmt"
	"path"

	"github.com/Zackkki/ecomm-datapipeline/landing"
	"github.com/Zackkki/ecomm-datapipeline/logging"
	"github.com/Zackkki/ecomm-datapipeline/warehouse"
)

// ErrNotArchivable is returned when archival is requested for a batch that
// has not reached an accepted terminal state.
var ErrNotArchivable = fmt.Errorf("batch is not in an accepted state for archival")

// Archiver relocates processed raw batches out of the landing area.
type Archiver struct {
	store         landing.ObjectStore
	archivePrefix string
	logger        *logging.ComponentLogger
}

// NewArchiver creates an archiver writing under archivePrefix.
func NewArchiver(store landing.ObjectStore, archivePrefix string, logger *logging.ComponentLogger) *Archiver {
	return &Archiver{store: store, archivePrefix: archivePrefix, logger: logger}
}

// Archive moves the batch's raw object to archive/<runStamp>/<basename>.
// Batches that failed quality or processing are refused so their raw input
// stays in the landing area for manual inspection.
func (a *Archiver) Archive(ctx context.Context, batch *Batch, runStamp string) error {
	if batch.Status != warehouse.StatusAggregated {
		return fmt.Errorf("%w: batch %s is %s", ErrNotArchivable, batch.ID, batch.Status)
	}

	dest := path.Join(a.archivePrefix, runStamp, path.Base(batch.SourcePath))
	if err := a.store.Move(ctx, batch.SourcePath, dest); err != nil {
		return Transient("archive", err)
	}

	a.logger.ForBatch(batch.ID).Info().
		Str("from", batch.SourcePath).
		Str("to", dest).
		Msg("Batch archived")
	return nil
}
