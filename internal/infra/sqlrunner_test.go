package infra

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordingDB struct {
	queries []string
}

func (d *recordingDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	d.queries = append(d.queries, query)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (d *recordingDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	d.queries = append(d.queries, query)
	return errorRow{err: pgx.ErrNoRows}
}

func (d *recordingDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	d.queries = append(d.queries, query)
	return nil, errors.New("not implemented")
}

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker("--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db\nselect 1;\n")
	if err != nil {
		t.Fatalf("extractMarker returned error: %v", err)
	}
	if marker != "4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db" {
		t.Fatalf("marker = %q", marker)
	}
	if strings.TrimSpace(body) != "select 1;" {
		t.Fatalf("body = %q", body)
	}

	if _, _, err := extractMarker("select 1;"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("extractMarker without marker error = %v, want ErrMissingMarker", err)
	}
}

func TestSQLRunnerStripsMarker(t *testing.T) {
	db := &recordingDB{}
	runner := NewSQLRunner(db, nil)

	tag, err := runner.Exec(context.Background(), "--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3\nupdate jobs set status = $1;", "completed")
	if err != nil {
		t.Fatalf("Exec returned error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Fatalf("RowsAffected = %d, want 1", tag.RowsAffected())
	}
	if len(db.queries) != 1 || strings.Contains(db.queries[0], "--sql") {
		t.Fatalf("marker leaked to database: %#v", db.queries)
	}

	if _, err := runner.Exec(context.Background(), "update jobs set status = $1;"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Exec without marker error = %v", err)
	}
	if len(db.queries) != 1 {
		t.Fatalf("unmarked statement reached database")
	}

	row := runner.QueryRow(context.Background(), "--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3\nselect 1;")
	var n int
	if err := row.Scan(&n); !IsNoRows(err) {
		t.Fatalf("Scan error = %v, want no rows", err)
	}
}
