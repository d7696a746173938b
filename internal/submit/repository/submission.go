package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/judge/result"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
	defaultListLimit               = 50
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionNotPending is returned when a resolved submission would be written twice.
	ErrSubmissionNotPending = errors.New("submission is not pending")
)

// Submission represents a judge submission record.
type Submission struct {
	ID              string        `json:"id"`
	UserID          int64         `json:"user_id"`
	ProblemID       int64         `json:"problem_id"`
	Language        string        `json:"language"`
	SourceCode      string        `json:"source_code"`
	Status          result.Status `json:"status"`
	PassedTestCases int           `json:"passed_test_cases"`
	TotalTestCases  int           `json:"total_test_cases"`
	Runtime         float64       `json:"runtime"`
	Memory          int64         `json:"memory"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *Submission) error
	// MarkResolved writes the outcome once; a second call returns ErrSubmissionNotPending.
	MarkResolved(ctx context.Context, submissionID string, outcome result.Outcome) error
	GetByID(ctx context.Context, submissionID string) (*Submission, error)
	ListByUserAndProblem(ctx context.Context, userID, problemID int64, limit int) ([]Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepositoryWithTTL creates a submission repository; non-positive TTLs use the defaults.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "id, user_id, problem_id, language, source_code, status, passed_test_cases, total_test_cases, runtime, memory, error_message, created_at, updated_at"

// Create inserts a pending submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submissionID is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.UserID <= 0 {
		return errors.New("userID is required")
	}
	if submission.Language == "" {
		return errors.New("language is required")
	}
	if submission.Status == "" {
		submission.Status = result.StatusPending
	}

	query := `
		INSERT INTO submissions
		(id, user_id, problem_id, language, source_code, status, passed_test_cases, total_test_cases)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		submission.ID,
		submission.UserID,
		submission.ProblemID,
		submission.Language,
		submission.SourceCode,
		string(submission.Status),
		submission.PassedTestCases,
		submission.TotalTestCases,
	)
	return err
}

// MarkResolved moves a pending submission to its final status.
func (r *MySQLSubmissionRepository) MarkResolved(ctx context.Context, submissionID string, outcome result.Outcome) error {
	if submissionID == "" {
		return errors.New("submissionID is required")
	}
	if !outcome.Status.Final() {
		return errors.New("outcome status must be final")
	}
	if outcome.Passed > outcome.Total {
		return errors.New("passed test cases exceed total")
	}

	query := `
		UPDATE submissions
		SET status = ?, passed_test_cases = ?, total_test_cases = ?, runtime = ?, memory = ?, error_message = ?
		WHERE id = ? AND status = ?
	`
	res, err := r.db.Exec(
		ctx,
		query,
		string(outcome.Status),
		outcome.Passed,
		outcome.Total,
		outcome.Runtime,
		outcome.Memory,
		nullableString(outcome.ErrorMessage),
		submissionID,
		string(result.StatusPending),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSubmissionNotPending
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, submissionCacheKey(submissionID))
	}
	return nil
}

// GetByID retrieves a submission by id through the cache.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	if r.cache != nil {
		submission, err := cache.GetWithCached[*Submission](
			ctx,
			r.cache,
			submissionCacheKey(submissionID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(submission *Submission) bool { return submission == nil },
			marshalSubmission,
			unmarshalSubmission,
			func(ctx context.Context) (*Submission, error) {
				submission, err := r.getByIDFromDB(ctx, submissionID)
				if err != nil {
					if errors.Is(err, ErrSubmissionNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return submission, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if submission == nil {
			return nil, ErrSubmissionNotFound
		}
		return submission, nil
	}
	return r.getByIDFromDB(ctx, submissionID)
}

// ListByUserAndProblem returns the newest submissions first.
func (r *MySQLSubmissionRepository) ListByUserAndProblem(ctx context.Context, userID, problemID int64, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE user_id = ? AND problem_id = ? ORDER BY created_at DESC LIMIT ?"
	rows, err := r.db.Query(ctx, query, userID, problemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, *submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, submissionID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, submissionID)
	submission, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func scanSubmission(scanner db.Scanner) (*Submission, error) {
	submission := &Submission{}
	var status string
	var errorMessage sql.NullString
	if err := scanner.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.Language,
		&submission.SourceCode,
		&status,
		&submission.PassedTestCases,
		&submission.TotalTestCases,
		&submission.Runtime,
		&submission.Memory,
		&errorMessage,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	); err != nil {
		return nil, err
	}
	submission.Status = result.Status(status)
	submission.ErrorMessage = errorMessage.String
	return submission, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func marshalSubmission(submission *Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var submission Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}
