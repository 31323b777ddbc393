package workers

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Pruner removes all but the newest keep entries.
type Pruner interface {
	Prune(keep int) (int, error)
}

// ArchiveWorker trims the recording archive on a cron schedule.
type ArchiveWorker struct {
	cron    *cron.Cron
	archive Pruner
	retain  int
	log     zerolog.Logger
}

func NewArchiveWorker(archive Pruner, schedule string, retain int, log zerolog.Logger) (*ArchiveWorker, error) {
	if archive == nil {
		return nil, fmt.Errorf("archive is required")
	}
	if retain <= 0 {
		return nil, fmt.Errorf("retain must be positive, got %d", retain)
	}
	aw := &ArchiveWorker{
		cron:    cron.New(),
		archive: archive,
		retain:  retain,
		log:     log.With().Str("component", "archive_worker").Logger(),
	}
	if _, err := aw.cron.AddFunc(schedule, aw.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return aw, nil
}

// RunOnce prunes immediately.
func (aw *ArchiveWorker) RunOnce() {
	removed, err := aw.archive.Prune(aw.retain)
	if err != nil {
		aw.log.Warn().Err(err).Msg("archive prune failed")
		return
	}
	if removed > 0 {
		aw.log.Info().Int("removed", removed).Int("retain", aw.retain).Msg("archive pruned")
	}
}

func (aw *ArchiveWorker) Start() {
	aw.cron.Start()
}

// Stop waits for a running prune to finish or ctx to end.
func (aw *ArchiveWorker) Stop(ctx context.Context) {
	select {
	case <-aw.cron.Stop().Done():
	case <-ctx.Done():
	}
}
