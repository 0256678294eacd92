package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/valpere/epubtran/internal"
)

const jobColumns = `id, input_name, input_path, target_lang, provider, status, progress, output_path, output_name, error, report, created_at, updated_at`

// CreateJob inserts a new job record. CreatedAt and UpdatedAt default to now.
func (s *Store) CreateJob(ctx context.Context, job internal.JobRecord) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.InputName, job.InputPath, job.TargetLang, job.Provider, string(job.Status), job.Progress,
		job.OutputPath, job.OutputName, job.Error, job.Report, job.CreatedAt, job.UpdatedAt)
	return err
}

// UpdateJob overwrites the mutable fields of a job.
func (s *Store) UpdateJob(ctx context.Context, job internal.JobRecord) error {
	return s.execOne(ctx,
		`UPDATE jobs SET status = ?, progress = ?, output_path = ?, error = ?, report = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), job.Progress, job.OutputPath, job.Error, job.Report, time.Now(), job.ID)
}

// UpdateJobProgress records progress only.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, progress float64) error {
	return s.execOne(ctx, `UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?`, progress, time.Now(), id)
}

func (s *Store) GetJob(ctx context.Context, id string) (*internal.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// ListJobs returns jobs newest first. limit <= 0 returns everything.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]internal.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []internal.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job and its saved documents.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	if err := s.DeleteJobDocuments(ctx, id); err != nil {
		return err
	}
	return s.execOne(ctx, `DELETE FROM jobs WHERE id = ?`, id)
}

// SaveJobDocument stores the finished markup of one document of a job.
func (s *Store) SaveJobDocument(ctx context.Context, jobID, itemID string, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO job_documents (job_id, item_id, content, created_at) VALUES (?, ?, ?, ?)`,
		jobID, itemID, content, time.Now())
	return err
}

// JobDocuments returns the saved documents of a job keyed by item id.
func (s *Store) JobDocuments(ctx context.Context, jobID string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id, content FROM job_documents WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make(map[string][]byte)
	for rows.Next() {
		var id string
		var content []byte
		if err := rows.Scan(&id, &content); err != nil {
			return nil, err
		}
		docs[id] = content
	}
	return docs, rows.Err()
}

func (s *Store) DeleteJobDocuments(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM job_documents WHERE job_id = ?`, jobID)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(r rowScanner) (*internal.JobRecord, error) {
	var job internal.JobRecord
	var status string
	err := r.Scan(&job.ID, &job.InputName, &job.InputPath, &job.TargetLang, &job.Provider, &status, &job.Progress,
		&job.OutputPath, &job.OutputName, &job.Error, &job.Report, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.Status = internal.JobStatus(status)
	return &job, nil
}

// JobCheckpoint exposes a job's saved documents to the orchestrator.
type JobCheckpoint struct {
	store *Store
	jobID string
}

func (s *Store) Checkpoint(jobID string) *JobCheckpoint {
	return &JobCheckpoint{store: s, jobID: jobID}
}

func (c *JobCheckpoint) Load(ctx context.Context) (map[string][]byte, error) {
	return c.store.JobDocuments(ctx, c.jobID)
}

func (c *JobCheckpoint) Save(ctx context.Context, itemID string, content []byte) error {
	return c.store.SaveJobDocument(ctx, c.jobID, itemID, content)
}
