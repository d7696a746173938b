package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"codejudge/internal/common/db/dbtest"
	"codejudge/internal/user/repository"

	"github.com/go-sql-driver/mysql"
)

func newSolvedTable(fake *dbtest.FakeDB) {
	var mu sync.Mutex
	solved := map[[2]int64]bool{}
	var order [][2]int64
	fake.OnExec("INSERT INTO user_solved_problems", func(args []interface{}) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		key := [2]int64{args[0].(int64), args[1].(int64)}
		if solved[key] {
			return 0, fmt.Errorf("exec failed: %w", &mysql.MySQLError{
				Number:  1062,
				Message: "Duplicate entry '1-2' for key 'PRIMARY'",
			})
		}
		solved[key] = true
		order = append(order, key)
		return 1, nil
	})
	fake.OnQuery("SELECT 1 FROM user_solved_problems", func(args []interface{}) ([][]interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		if solved[[2]int64{args[0].(int64), args[1].(int64)}] {
			return [][]interface{}{{1}}, nil
		}
		return nil, nil
	})
	fake.OnQuery("SELECT problem_id FROM user_solved_problems", func(args []interface{}) ([][]interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		var out [][]interface{}
		for _, key := range order {
			if key[0] == args[0].(int64) {
				out = append(out, []interface{}{key[1]})
			}
		}
		return out, nil
	})
}

func TestAddSolvedIsIdempotent(t *testing.T) {
	fake := dbtest.New()
	newSolvedTable(fake)
	repo := repository.NewSolvedRepository(fake)
	ctx := context.Background()

	added, err := repo.AddSolved(ctx, 1, 2)
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = repo.AddSolved(ctx, 1, 2)
	if err != nil || added {
		t.Fatalf("duplicate add: added=%v err=%v", added, err)
	}
	if _, err := repo.AddSolved(ctx, 1, 3); err != nil {
		t.Fatalf("add: %v", err)
	}

	list, err := repo.ListSolved(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0] != 2 || list[1] != 3 {
		t.Fatalf("expected [2 3], got %v", list)
	}
}

func TestHasSolved(t *testing.T) {
	fake := dbtest.New()
	newSolvedTable(fake)
	repo := repository.NewSolvedRepository(fake)
	ctx := context.Background()

	ok, err := repo.HasSolved(ctx, 1, 2)
	if err != nil || ok {
		t.Fatalf("expected unsolved, got %v %v", ok, err)
	}
	if _, err := repo.AddSolved(ctx, 1, 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	ok, err = repo.HasSolved(ctx, 1, 2)
	if err != nil || !ok {
		t.Fatalf("expected solved, got %v %v", ok, err)
	}
}

func TestListSolvedEmpty(t *testing.T) {
	fake := dbtest.New()
	newSolvedTable(fake)
	list, err := repository.NewSolvedRepository(fake).ListSolved(context.Background(), 99)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", list)
	}
}
