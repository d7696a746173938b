package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/judge/execution"
)

const (
	defaultTestCaseTTL      = 30 * time.Minute
	defaultTestCaseEmptyTTL = 5 * time.Minute
	testCaseKeyPrefix       = "problem:tc:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

// TestCaseRepository loads the cases a problem is judged against.
// Hidden cases decide submissions; visible cases back the "run" action.
type TestCaseRepository interface {
	GetHiddenTestCases(ctx context.Context, problemID int64) ([]execution.TestCase, error)
	GetVisibleTestCases(ctx context.Context, problemID int64) ([]execution.TestCase, error)
}

// problemCases is the cached form. ProblemID == 0 marks a missing problem,
// while an existing problem may legitimately have no cases.
type problemCases struct {
	ProblemID int64                `json:"problem_id"`
	Cases     []execution.TestCase `json:"cases"`
}

type MySQLTestCaseRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewTestCaseRepositoryWithTTL falls back to the default TTLs for non-positive values.
func NewTestCaseRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLTestCaseRepository {
	if ttl <= 0 {
		ttl = defaultTestCaseTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultTestCaseEmptyTTL
	}
	return &MySQLTestCaseRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func (r *MySQLTestCaseRepository) GetHiddenTestCases(ctx context.Context, problemID int64) ([]execution.TestCase, error) {
	return r.getTestCases(ctx, problemID, true)
}

func (r *MySQLTestCaseRepository) GetVisibleTestCases(ctx context.Context, problemID int64) ([]execution.TestCase, error) {
	return r.getTestCases(ctx, problemID, false)
}

func (r *MySQLTestCaseRepository) getTestCases(ctx context.Context, problemID int64, hidden bool) ([]execution.TestCase, error) {
	if problemID <= 0 {
		return nil, ErrProblemNotFound
	}
	if r.cache == nil {
		loaded, err := r.loadFromDB(ctx, problemID, hidden)
		if err != nil {
			return nil, err
		}
		return loaded.Cases, nil
	}

	loaded, err := cache.GetWithCached[problemCases](
		ctx,
		r.cache,
		testCaseKey(problemID, hidden),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(pc problemCases) bool { return pc.ProblemID == 0 },
		marshalProblemCases,
		unmarshalProblemCases,
		func(ctx context.Context) (problemCases, error) {
			pc, err := r.loadFromDB(ctx, problemID, hidden)
			if errors.Is(err, ErrProblemNotFound) {
				return problemCases{}, nil
			}
			return pc, err
		},
	)
	if err != nil {
		return nil, err
	}
	if loaded.ProblemID == 0 {
		return nil, ErrProblemNotFound
	}
	return loaded.Cases, nil
}

func (r *MySQLTestCaseRepository) loadFromDB(ctx context.Context, problemID int64, hidden bool) (problemCases, error) {
	var id int64
	err := r.db.QueryRow(ctx, "SELECT id FROM problems WHERE id = ?", problemID).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return problemCases{}, ErrProblemNotFound
		}
		return problemCases{}, err
	}

	query := `
		SELECT input, expected_output
		FROM problem_test_cases
		WHERE problem_id = ? AND hidden = ?
		ORDER BY ordinal ASC`
	rows, err := r.db.Query(ctx, query, problemID, hidden)
	if err != nil {
		return problemCases{}, err
	}
	defer rows.Close()

	pc := problemCases{ProblemID: id, Cases: []execution.TestCase{}}
	for rows.Next() {
		var tc execution.TestCase
		if err := rows.Scan(&tc.Input, &tc.ExpectedOutput); err != nil {
			return problemCases{}, err
		}
		pc.Cases = append(pc.Cases, tc)
	}
	if err := rows.Err(); err != nil {
		return problemCases{}, err
	}
	return pc, nil
}

func testCaseKey(problemID int64, hidden bool) string {
	kind := "visible:"
	if hidden {
		kind = "hidden:"
	}
	return testCaseKeyPrefix + kind + strconv.FormatInt(problemID, 10)
}

func marshalProblemCases(pc problemCases) string {
	payload, err := json.Marshal(pc)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalProblemCases(data string) (problemCases, error) {
	if data == "" {
		return problemCases{}, nil
	}
	var pc problemCases
	if err := json.Unmarshal([]byte(data), &pc); err != nil {
		return problemCases{}, err
	}
	return pc, nil
}
