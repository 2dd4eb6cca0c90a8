package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// QueueStore implements store.QueueStore over database/sql.
type QueueStore struct{ db *DB }

func NewQueueStore(db *DB) *QueueStore { return &QueueStore{db: db} }

func (s *QueueStore) Insert(ctx context.Context, job store.JobRecord) error {
	paths, _ := json.Marshal(job.ResultPaths)
	_, err := s.db.ExecContext(ctx, s.db.rebind(
		`INSERT INTO queue_jobs (id, context_key, priority, status, request, result_paths, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.ContextKey, job.Priority, job.Status, job.Request, string(paths), job.Error, job.Created,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert job", err)
	}
	return nil
}

func (s *QueueStore) UpdateStatus(ctx context.Context, id, status, errMsg string, resultPaths []string) error {
	paths, _ := json.Marshal(resultPaths)
	now := time.Now()

	switch status {
	case "running":
		_, err := s.db.ExecContext(ctx, s.db.rebind(
			`UPDATE queue_jobs SET status = ?, started_at = ? WHERE id = ?`), status, now, id)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "update job status", err)
		}
	case "done", "failed", "canceled":
		_, err := s.db.ExecContext(ctx, s.db.rebind(
			`UPDATE queue_jobs SET status = ?, error = ?, result_paths = ?, finished_at = ? WHERE id = ?`),
			status, errMsg, string(paths), now, id)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "update job status", err)
		}
	default:
		_, err := s.db.ExecContext(ctx, s.db.rebind(
			`UPDATE queue_jobs SET status = ? WHERE id = ?`), status, id)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "update job status", err)
		}
	}
	return nil
}

func (s *QueueStore) scanJob(row interface{ Scan(...any) error }) (*store.JobRecord, error) {
	var j store.JobRecord
	var paths string
	var started, finished sql.NullTime
	if err := row.Scan(&j.ID, &j.ContextKey, &j.Priority, &j.Status, &j.Request, &paths, &j.Error,
		&j.Created, &started, &finished); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(paths), &j.ResultPaths)
	if started.Valid {
		j.Started = started.Time
	}
	if finished.Valid {
		j.Finished = finished.Time
	}
	return &j, nil
}

func (s *QueueStore) Get(ctx context.Context, id string) (*store.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, s.db.rebind(
		`SELECT id, context_key, priority, status, request, result_paths, error, created_at, started_at, finished_at
		 FROM queue_jobs WHERE id = ?`), id)
	j, err := s.scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.Newf(apperr.NotFound, "job %q not found", id)
		}
		return nil, apperr.Wrap(apperr.Internal, "get job", err)
	}
	return j, nil
}

func (s *QueueStore) ListByContext(ctx context.Context, contextKey string, limit int) ([]store.JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.db.rebind(
		`SELECT id, context_key, priority, status, request, result_paths, error, created_at, started_at, finished_at
		 FROM queue_jobs WHERE context_key = ? ORDER BY created_at DESC LIMIT ?`), contextKey, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list jobs", err)
	}
	defer rows.Close()

	var out []store.JobRecord
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (s *QueueStore) ListPending(ctx context.Context) ([]store.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.db.rebind(
		`SELECT id, context_key, priority, status, request, result_paths, error, created_at, started_at, finished_at
		 FROM queue_jobs WHERE status IN ('queued', 'running') ORDER BY priority DESC, created_at ASC`))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list pending jobs", err)
	}
	defer rows.Close()

	var out []store.JobRecord
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}
