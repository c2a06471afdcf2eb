package workflow

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/teranos/ldschema/db"
	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/storage"
)

// RepairAll repairs ids with bounded concurrency. A failing item records
// its error in its own outcome and never stops the rest; outcomes keep the
// order of ids. Cancelling ctx, or losing the database, skips items not
// yet started.
func (s *Service) RepairAll(ctx context.Context, ids []string, actor storage.Actor) []Outcome {
	outcomes := make([]Outcome, len(ids))
	var closed atomic.Bool

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{SubjectID: id, Operation: OpRepair, Error: err.Error()}
				return nil
			}
			if closed.Load() {
				outcomes[i] = Outcome{SubjectID: id, Operation: OpRepair, Error: db.ErrDatabaseClosed.Error()}
				return nil
			}
			out, err := s.Repair(ctx, id, actor)
			if err != nil {
				if db.IsDatabaseClosed(err) {
					closed.Store(true)
				}
				s.logger.Warnw("Bulk repair item failed", logger.FieldContentID, id, logger.FieldError, err)
				outcomes[i] = Outcome{SubjectID: id, Operation: OpRepair, Error: err.Error()}
				return nil
			}
			outcomes[i] = *out
			return nil
		})
	}
	g.Wait()

	s.logger.Infow("Bulk repair finished", logger.FieldCount, len(ids))
	return outcomes
}
