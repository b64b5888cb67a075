package queue

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// timeFormat is fixed-width so stored timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Queue is the SQLite-backed build queue. Builds wait as pending until their
// quiet period passes and Release hands them on.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Queue over db. The build_queue table must already exist;
// storage.OpenSQLite creates it.
func New(db *sql.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// Fingerprint identifies a build by job and ordered parameters. Two requests
// with the same fingerprint are the same build as far as the queue is concerned.
func Fingerprint(job string, params []Parameter) string {
	h := blake3.New()
	h.Write([]byte(job))
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p.Name))
		h.Write([]byte{0})
		h.Write([]byte(p.Kind))
		h.Write([]byte{0})
		h.Write([]byte(p.Value))
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil))
}

// Schedule queues a build. If a pending build with the same fingerprint
// exists, the request is coalesced into it and its start is pushed out to
// honour the new quiet period.
func (q *Queue) Schedule(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	if req.Job == "" {
		return ScheduleResult{}, fmt.Errorf("job is empty")
	}
	if req.SubmittedBy == "" {
		return ScheduleResult{}, fmt.Errorf("submitted_by is empty")
	}
	quiet := req.QuietPeriod
	if quiet < 0 {
		quiet = 0
	}

	params := req.Parameters
	if params == nil {
		params = []Parameter{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("encode parameters: %w", err)
	}
	fingerprint := Fingerprint(req.Job, params)

	now := q.now().UTC()
	notBefore := now.Add(time.Duration(quiet) * time.Second)

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		existingID        string
		existingNotBefore string
	)
	err = tx.QueryRowContext(ctx, `
SELECT id, not_before
FROM build_queue
WHERE fingerprint = ? AND status = ?
ORDER BY created_at ASC
LIMIT 1;
`, fingerprint, StatusPending).Scan(&existingID, &existingNotBefore)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := uuid.NewString()
		_, err = tx.ExecContext(ctx, `
INSERT INTO build_queue(id, job, parameters, fingerprint, cause, submitted_by, status, triggers, created_at, not_before)
VALUES(?, ?, ?, ?, ?, ?, ?, 1, ?, ?);
`, id, req.Job, string(paramsJSON), fingerprint, req.Cause, req.SubmittedBy, StatusPending,
			now.Format(timeFormat), notBefore.Format(timeFormat))
		if err != nil {
			return ScheduleResult{}, fmt.Errorf("insert build: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return ScheduleResult{}, fmt.Errorf("commit tx: %w", err)
		}
		return ScheduleResult{ID: id, NotBefore: notBefore}, nil

	case err != nil:
		return ScheduleResult{}, fmt.Errorf("find pending build: %w", err)
	}

	if prev, perr := time.Parse(timeFormat, existingNotBefore); perr == nil && prev.After(notBefore) {
		notBefore = prev
	}
	_, err = tx.ExecContext(ctx, `
UPDATE build_queue
SET triggers = triggers + 1, not_before = ?
WHERE id = ?;
`, notBefore.Format(timeFormat), existingID)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("coalesce build: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return ScheduleResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return ScheduleResult{ID: existingID, Coalesced: true, NotBefore: notBefore}, nil
}

// Get returns a queued build by id.
func (q *Queue) Get(ctx context.Context, id string) (*Build, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT id, job, parameters, fingerprint, cause, submitted_by, status, triggers, created_at, not_before
FROM build_queue
WHERE id = ?;
`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBuildNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}
	return b, nil
}

// Release marks every pending build whose quiet period has elapsed as
// released and returns them in queue order.
func (q *Queue) Release(ctx context.Context) ([]*Build, error) {
	now := q.now().UTC().Format(timeFormat)
	rows, err := q.db.QueryContext(ctx, `
UPDATE build_queue
SET status = ?
WHERE status = ? AND not_before <= ?
RETURNING id, job, parameters, fingerprint, cause, submitted_by, status, triggers, created_at, not_before;
`, StatusReleased, StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("release builds: %w", err)
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("release builds: %w", err)
	}
	slices.SortStableFunc(builds, func(a, b *Build) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return builds, nil
}

// Depth returns the number of pending builds.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM build_queue WHERE status = ?;`, StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(s scanner) (*Build, error) {
	var (
		b          Build
		params     string
		cause      sql.NullString
		status     string
		createdAt  string
		notBeforeS string
	)
	if err := s.Scan(&b.ID, &b.Job, &params, &b.Fingerprint, &cause, &b.SubmittedBy, &status, &b.Triggers, &createdAt, &notBeforeS); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	if cause.Valid {
		b.Cause = cause.String
	}
	if err := json.Unmarshal([]byte(params), &b.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	if t, err := time.Parse(timeFormat, createdAt); err == nil {
		b.CreatedAt = t
	}
	if t, err := time.Parse(timeFormat, notBeforeS); err == nil {
		b.NotBefore = t
	}
	return &b, nil
}

// Pending lists pending builds for a job, oldest first. An empty job lists
// every pending build.
func (q *Queue) Pending(ctx context.Context, job string) ([]*Build, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, job, parameters, fingerprint, cause, submitted_by, status, triggers, created_at, not_before
FROM build_queue
WHERE status = ? AND (? = '' OR job = ?)
ORDER BY created_at ASC, id ASC;
`, StatusPending, job, job)
	if err != nil {
		return nil, fmt.Errorf("list pending builds: %w", err)
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending builds: %w", err)
	}
	return builds, nil
}
