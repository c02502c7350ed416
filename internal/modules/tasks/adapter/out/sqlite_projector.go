package out

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"taskmesh/internal/modules/tasks/domain"
	tasksout "taskmesh/internal/modules/tasks/port/out"

	_ "modernc.org/sqlite"
)

type SQLiteTaskProjector struct {
	db *sql.DB
}

func NewSQLiteTaskProjector(dbPath string) (tasksout.TaskProjector, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	projector := &SQLiteTaskProjector{db: db}
	if err := projector.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return projector, nil
}

func (s *SQLiteTaskProjector) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  text TEXT NOT NULL,
  done INTEGER NOT NULL,
  last_write INTEGER NOT NULL,
  position INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}
	return nil
}

// Replace rewrites the whole projection in one transaction. The table always
// reflects exactly one materialization; position preserves the derived order.
func (s *SQLiteTaskProjector) Replace(ctx context.Context, tasks []domain.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin projection tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	const stmt = `INSERT INTO tasks (id, text, done, last_write, position) VALUES (?, ?, ?, ?, ?)`
	for position, task := range tasks {
		done := 0
		if task.Done {
			done = 1
		}
		if _, err := tx.ExecContext(ctx, stmt, task.ID, task.Text, done, task.LastWrite, position); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projection tx: %w", err)
	}
	return nil
}
