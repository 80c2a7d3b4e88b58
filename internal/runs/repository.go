package runs

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	FinishRun(ctx context.Context, run *Run) error

	CreateTasks(ctx context.Context, tasks []*Task) error
	UpdateTask(ctx context.Context, task *Task) error
	ListTasks(ctx context.Context, runID string) ([]*Task, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const runColumns = `id, status, sheet_path, source_dir, output_dir, quality,
	start_offset_ms, end_offset_ms, min_duration_ms, total, completed, failed, skipped,
	error, started_at, finished_at, updated_at`

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.StartedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Status, nullString(run.SheetPath), nullString(run.SourceDir), nullString(run.OutputDir), run.Quality,
		run.StartOffset.Milliseconds(), run.EndOffset.Milliseconds(), run.MinDuration.Milliseconds(),
		run.Total, run.Completed, run.Failed, run.Skipped,
		nullString(run.Error), formatTime(run.StartedAt), nullTime(run.FinishedAt), formatTime(run.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) UpdateRunStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, updated_at = ? WHERE id = ?
	`, status, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FinishRun stores the final status, counters and error of a run.
func (r *SQLiteRepository) FinishRun(ctx context.Context, run *Run) error {
	now := time.Now()
	if run.FinishedAt == nil {
		run.FinishedAt = &now
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, completed = ?, failed = ?, skipped = ?, error = ?,
			finished_at = ?, updated_at = ?
		WHERE id = ?
	`, run.Status, run.Completed, run.Failed, run.Skipped, nullString(run.Error),
		nullTime(run.FinishedAt), formatTime(now), run.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

const taskColumns = `run_id, idx, label, row_num, source_path, output_path, in_point_ms, duration_ms,
	status, error, exit_code, output_tail, started_at, finished_at`

// CreateTasks inserts every task of a run in one transaction.
func (r *SQLiteRepository) CreateTasks(ctx context.Context, tasks []*Task) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, t.RunID, t.Index, t.Label, t.Row,
			nullString(t.Source), nullString(t.Output), t.InPoint.Milliseconds(), t.Duration.Milliseconds(),
			t.Status, nullString(t.Error), nullInt(t.ExitCode), nullString(t.OutputTail),
			nullTime(t.StartedAt), nullTime(t.FinishedAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdateTask stores the status fields of a task.
func (r *SQLiteRepository) UpdateTask(ctx context.Context, t *Task) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, error = ?, exit_code = ?, output_tail = ?,
			started_at = COALESCE(?, started_at), finished_at = ?
		WHERE run_id = ? AND idx = ?
	`, t.Status, nullString(t.Error), nullInt(t.ExitCode), nullString(t.OutputTail),
		nullTime(t.StartedAt), nullTime(t.FinishedAt), t.RunID, t.Index)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SQLiteRepository) ListTasks(ctx context.Context, runID string) ([]*Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		var t Task
		var source, output, errMsg, tail, startedAt, finishedAt sql.NullString
		var exitCode sql.NullInt64
		var inPoint, duration int64

		if err := rows.Scan(&t.RunID, &t.Index, &t.Label, &t.Row, &source, &output, &inPoint, &duration,
			&t.Status, &errMsg, &exitCode, &tail, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		t.Source = source.String
		t.Output = output.String
		t.InPoint = time.Duration(inPoint) * time.Millisecond
		t.Duration = time.Duration(duration) * time.Millisecond
		t.Error = errMsg.String
		t.ExitCode = int(exitCode.Int64)
		t.OutputTail = tail.String
		t.StartedAt = parseNullTime(startedAt)
		t.FinishedAt = parseNullTime(finishedAt)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var sheet, source, output, errMsg, finishedAt sql.NullString
	var startedAt, updatedAt string
	var startMs, endMs, minMs int64

	err := row.Scan(&run.ID, &run.Status, &sheet, &source, &output, &run.Quality,
		&startMs, &endMs, &minMs, &run.Total, &run.Completed, &run.Failed, &run.Skipped,
		&errMsg, &startedAt, &finishedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	run.SheetPath = sheet.String
	run.SourceDir = source.String
	run.OutputDir = output.String
	run.StartOffset = time.Duration(startMs) * time.Millisecond
	run.EndOffset = time.Duration(endMs) * time.Millisecond
	run.MinDuration = time.Duration(minMs) * time.Millisecond
	run.Error = errMsg.String
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.FinishedAt = parseNullTime(finishedAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &run, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}
