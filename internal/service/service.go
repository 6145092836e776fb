package service

import (
	"context"

	"go.uber.org/zap"

	"example.com/notes-sync/internal/notes"
)

// Table is the persistent note table a batch is applied to.
// Update and Delete return the number of rows they matched.
type Table interface {
	Insert(ctx context.Context, n notes.Note) (int64, error)
	Update(ctx context.Context, n notes.Note) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	List(ctx context.Context) ([]notes.Note, error)
}

// Report counts what a batch did to the table.
type Report struct {
	Created int
	Updated int
	Deleted int
	Skipped int // OpNone entries
	Unknown int // unrecognized operation tags
	Missed  int // updates and deletes that matched no row
}

// Applied is the number of entries that changed the table.
func (r Report) Applied() int { return r.Created + r.Updated + r.Deleted }

// Reconciler applies client batches to the table and produces the
// canonical snapshot clients converge to. It holds no state of its own.
type Reconciler struct {
	table Table
	log   *zap.SugaredLogger
}

func New(table Table, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{table: table, log: log}
}

// Apply runs the batch in order, one entry at a time, with no transaction
// around it.
func (s *Reconciler) Apply(ctx context.Context, batch []notes.Note) (Report, error) {
	var rep Report
	for i, n := range batch {
		if err := s.applyOne(ctx, i, n, &rep); err != nil {
			return rep, &notes.BatchError{Index: i, ID: n.ID, Op: n.Operation, Applied: rep.Applied(), Err: err}
		}
	}

	s.log.Infow("batch reconciled",
		"entries", len(batch),
		"created", rep.Created,
		"updated", rep.Updated,
		"deleted", rep.Deleted,
		"skipped", rep.Skipped,
		"unknown", rep.Unknown,
		"missed", rep.Missed,
	)
	return rep, nil
}

// Reconcile is Apply without the report.
func (s *Reconciler) Reconcile(ctx context.Context, batch []notes.Note) error {
	_, err := s.Apply(ctx, batch)
	return err
}

func (s *Reconciler) applyOne(ctx context.Context, i int, n notes.Note, rep *Report) error {
	switch n.Operation {
	case notes.OpNone:
		rep.Skipped++
	case notes.OpCreate:
		id, err := s.table.Insert(ctx, n)
		if err != nil {
			return err
		}
		rep.Created++
		s.log.Debugw("note created", "index", i, "id", id)
	case notes.OpUpdate:
		affected, err := s.table.Update(ctx, n)
		if err != nil {
			return err
		}
		if affected == 0 {
			rep.Missed++
			s.log.Debugw("update matched no row", "index", i, "id", n.ID)
			return nil
		}
		rep.Updated++
	case notes.OpDelete:
		affected, err := s.table.Delete(ctx, n.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			rep.Missed++
			s.log.Debugw("delete matched no row", "index", i, "id", n.ID)
			return nil
		}
		rep.Deleted++
	default:
		rep.Unknown++
		s.log.Warnw("unrecognized operation", "index", i, "id", n.ID, "operation", n.Operation.String())
	}
	return nil
}

// Snapshot reads the full table, most recently changed first. The result is
// never nil and carries no pending operations.
func (s *Reconciler) Snapshot(ctx context.Context) ([]notes.Note, error) {
	list, err := s.table.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]notes.Note, 0, len(list))
	for _, n := range list {
		n.Operation = notes.OpNone
		n.Tags = nil
		out = append(out, n)
	}
	return out, nil
}
