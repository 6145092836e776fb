package notes

import (
	"context"
	"database/sql"

	"example.com/notes-sync/internal/db"
)

// Repository is the persistent note table. Every method is a single
// autocommitted statement, so writes are atomic per row and never span a batch.
type Repository struct {
	db *sql.DB

	stmtInsert *sql.Stmt
	stmtUpdate *sql.Stmt
	stmtDelete *sql.Stmt
	stmtList   *sql.Stmt
}

func NewRepository(ctx context.Context, d *db.DB) (*Repository, error) {
	r := &Repository{db: d.SQL}

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&r.stmtInsert, `
			INSERT INTO notes (created, changed, title, content)
			VALUES (?, ?, ?, ?)
			RETURNING id
		`},
		{&r.stmtUpdate, `
			UPDATE notes
			SET changed = ?, title = ?, content = ?
			WHERE id = ?
		`},
		{&r.stmtDelete, `DELETE FROM notes WHERE id = ?`},
		{&r.stmtList, `
			SELECT id, created, changed, title, content
			FROM notes
			ORDER BY changed DESC, id DESC
		`},
	}

	for _, s := range stmts {
		stmt, err := d.SQL.PrepareContext(ctx, d.Dialect.Rebind(s.query))
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		*s.dst = stmt
	}
	return r, nil
}

func (r *Repository) Close() error {
	for _, s := range []*sql.Stmt{r.stmtInsert, r.stmtUpdate, r.stmtDelete, r.stmtList} {
		if s != nil {
			_ = s.Close()
		}
	}
	return nil
}

// Insert stores a new row and returns the identifier the database assigned.
// n.ID and n.Operation are ignored.
func (r *Repository) Insert(ctx context.Context, n Note) (int64, error) {
	var id int64
	err := r.stmtInsert.QueryRowContext(ctx, n.Created, n.Changed, n.Title, n.Content).Scan(&id)
	return id, err
}

// Update overwrites changed, title and content of the row n.ID and reports
// how many rows matched.
func (r *Repository) Update(ctx context.Context, n Note) (int64, error) {
	res, err := r.stmtUpdate.ExecContext(ctx, n.Changed, n.Title, n.Content, n.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.stmtDelete.ExecContext(ctx, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List returns the whole table, most recently changed first.
func (r *Repository) List(ctx context.Context) ([]Note, error) {
	rows, err := r.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]Note, error) {
	out := make([]Note, 0, 32)
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Created, &n.Changed, &n.Title, &n.Content); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
