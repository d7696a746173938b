package repository

import (
	"context"
	"errors"

	"codejudge/internal/common/db"
)

// SolvedRepository tracks which problems a user has fully solved.
type SolvedRepository interface {
	HasSolved(ctx context.Context, userID, problemID int64) (bool, error)
	// AddSolved is idempotent: a problem already in the set is not an error.
	AddSolved(ctx context.Context, userID, problemID int64) (bool, error)
	ListSolved(ctx context.Context, userID int64) ([]int64, error)
}

// MySQLSolvedRepository stores the solved set in user_solved_problems.
type MySQLSolvedRepository struct {
	db db.Database
}

func NewSolvedRepository(database db.Database) *MySQLSolvedRepository {
	return &MySQLSolvedRepository{db: database}
}

func (r *MySQLSolvedRepository) HasSolved(ctx context.Context, userID, problemID int64) (bool, error) {
	if userID <= 0 || problemID <= 0 {
		return false, errors.New("userID and problemID are required")
	}
	query := "SELECT 1 FROM user_solved_problems WHERE user_id = ? AND problem_id = ? LIMIT 1"
	var one int
	if err := r.db.QueryRow(ctx, query, userID, problemID).Scan(&one); err != nil {
		if db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AddSolved reports whether the problem was newly added.
func (r *MySQLSolvedRepository) AddSolved(ctx context.Context, userID, problemID int64) (bool, error) {
	if userID <= 0 || problemID <= 0 {
		return false, errors.New("userID and problemID are required")
	}
	query := "INSERT INTO user_solved_problems (user_id, problem_id) VALUES (?, ?)"
	if _, err := r.db.Exec(ctx, query, userID, problemID); err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *MySQLSolvedRepository) ListSolved(ctx context.Context, userID int64) ([]int64, error) {
	query := "SELECT problem_id FROM user_solved_problems WHERE user_id = ? ORDER BY solved_at ASC"
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	problemIDs := make([]int64, 0)
	for rows.Next() {
		var problemID int64
		if err := rows.Scan(&problemID); err != nil {
			return nil, err
		}
		problemIDs = append(problemIDs, problemID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return problemIDs, nil
}
