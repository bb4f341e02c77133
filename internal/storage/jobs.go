package storage

import (
	"database/sql"
	"time"
)

// jobColumns is the standard SELECT column list using COALESCE to avoid
// sql.NullString overhead for optional columns.
const jobColumns = `job_id, filename, COALESCE(title,''), COALESCE(cover_url,''), url,
	total_size, downloaded, status, created_at, completed_at, COALESCE(error_message,''),
	retry_count, max_retries`

// JobRepository handles CRUD operations over the downloads table.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record. job_id is caller-supplied (the opaque
// job identifier), never generated here.
func (r *JobRepository) Create(j *Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO downloads (job_id, filename, title, cover_url, url, total_size, downloaded,
			status, created_at, retry_count, max_retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.conn.Exec(query,
		j.JobID, j.Filename, j.Title, j.CoverURL, j.URL, j.TotalSize, j.Downloaded,
		j.Status, j.CreatedAt, j.RetryCount, j.MaxRetries,
	)
	return err
}

// Update performs a full-field update of an existing job record.
func (r *JobRepository) Update(j *Job) error {
	query := `
		UPDATE downloads SET
			filename = ?, title = ?, cover_url = ?, url = ?,
			total_size = ?, downloaded = ?, status = ?,
			completed_at = ?, error_message = ?, retry_count = ?, max_retries = ?
		WHERE job_id = ?
	`
	_, err := r.db.conn.Exec(query,
		j.Filename, j.Title, j.CoverURL, j.URL,
		j.TotalSize, j.Downloaded, j.Status,
		j.CompletedAt, j.ErrorMessage, j.RetryCount, j.MaxRetries,
		j.JobID,
	)
	return err
}

// UpdateStatus updates only the status column.
func (r *JobRepository) UpdateStatus(jobID string, status Status) error {
	_, err := r.db.conn.Exec("UPDATE downloads SET status = ? WHERE job_id = ?", status, jobID)
	return err
}

// UpdateProgress persists the downloaded byte counter. Called at the
// progress_interval cadence by the job controller, and after every ≥1%
// advance by the single-stream worker.
func (r *JobRepository) UpdateProgress(jobID string, downloaded int64) error {
	_, err := r.db.conn.Exec("UPDATE downloads SET downloaded = ? WHERE job_id = ?", downloaded, jobID)
	return err
}

// UpdateTotalSize persists the total_size column once it's learned from a
// probe, without touching any other field.
func (r *JobRepository) UpdateTotalSize(jobID string, totalSize int64) error {
	_, err := r.db.conn.Exec("UPDATE downloads SET total_size = ? WHERE job_id = ?", totalSize, jobID)
	return err
}

// MarkCompleted sets status=completed, downloaded=total_size and
// completed_at in one write.
func (r *JobRepository) MarkCompleted(jobID string, completedAt time.Time) error {
	_, err := r.db.conn.Exec(
		`UPDATE downloads SET status = ?, downloaded = total_size, completed_at = ? WHERE job_id = ?`,
		StatusCompleted, completedAt, jobID,
	)
	return err
}

// MarkError sets status=error and the error message.
func (r *JobRepository) MarkError(jobID, message string) error {
	_, err := r.db.conn.Exec(
		`UPDATE downloads SET status = ?, error_message = ? WHERE job_id = ?`,
		StatusError, message, jobID,
	)
	return err
}

// Get retrieves a job by job_id. Returns nil, nil if not found.
func (r *JobRepository) Get(jobID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM downloads WHERE job_id = ?`
	j := &Job{}
	err := r.db.conn.QueryRow(query, jobID).Scan(
		&j.JobID, &j.Filename, &j.Title, &j.CoverURL, &j.URL,
		&j.TotalSize, &j.Downloaded, &j.Status, &j.CreatedAt, &j.CompletedAt,
		&j.ErrorMessage, &j.RetryCount, &j.MaxRetries,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// ListActive retrieves jobs that are downloading or paused, for
// crash-recovery enumeration on startup.
func (r *JobRepository) ListActive() ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM downloads
		WHERE status IN ('downloading', 'paused') ORDER BY created_at ASC`
	return r.query(query)
}

// ListHistoryDesc retrieves all persisted records, newest first.
func (r *JobRepository) ListHistoryDesc() ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM downloads ORDER BY created_at DESC`
	return r.query(query)
}

// Delete removes a job record.
func (r *JobRepository) Delete(jobID string) error {
	_, err := r.db.conn.Exec("DELETE FROM downloads WHERE job_id = ?", jobID)
	return err
}

// query executes a column-list query with args and scans the result.
func (r *JobRepository) query(query string, args ...interface{}) ([]*Job, error) {
	rows, err := r.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanJobs(rows)
}

// scanJobs scans rows into Job structs. Uses COALESCE in queries to avoid
// sql.NullString allocations for optional columns.
func (r *JobRepository) scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j := &Job{}
		err := rows.Scan(
			&j.JobID, &j.Filename, &j.Title, &j.CoverURL, &j.URL,
			&j.TotalSize, &j.Downloaded, &j.Status, &j.CreatedAt, &j.CompletedAt,
			&j.ErrorMessage, &j.RetryCount, &j.MaxRetries,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
