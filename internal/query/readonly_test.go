package query

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCheckReadOnlyAcceptsQueries(t *testing.T) {
	accepted := []string{
		"SELECT * FROM accounts",
		"select account from accounts;",
		"  -- top deals\nSELECT account FROM sales_pipeline ORDER BY close_value DESC LIMIT 5",
		"WITH won AS (SELECT * FROM sales_pipeline WHERE deal_stage = 'Won') SELECT COUNT(*) FROM won",
		"(SELECT 1) UNION ALL (SELECT 2)",
		"SELECT comment FROM interactions WHERE comment LIKE '%please delete this%'",
		`SELECT "update" FROM audit`,
		"SELECT updated_at, created_by FROM accounts",
		"FROM accounts SELECT account",
		"/* drop table? no */ SELECT 1",
		`SELECT E'it\'s; drop' AS note`,
		"SELECT $$a; delete$$ AS body",
		"SELECT $note$ insert; $$ $note$ AS body",
		"SELECT * FROM accounts WHERE account = $1 LIMIT $2",
		"SELECT 'C:\\temp\\' AS path",
	}
	for _, sqlText := range accepted {
		if err := CheckReadOnly(sqlText); err != nil {
			t.Fatalf("CheckReadOnly(%q) error = %v", sqlText, err)
		}
	}
}

func TestCheckReadOnlyRejectsWrites(t *testing.T) {
	rejected := []string{
		"",
		"   ;",
		"DELETE FROM accounts",
		"INSERT INTO accounts VALUES (1)",
		"DROP TABLE accounts",
		"SELECT 1; DROP TABLE accounts",
		"WITH gone AS (DELETE FROM accounts RETURNING *) SELECT * FROM gone",
		"ATTACH 'other.duckdb' AS other",
		"PRAGMA table_info('accounts')",
		"SELECT * FROM accounts; SELECT 1",
		"COPY accounts TO 'out.csv'",
		"SELECT * INTO backup FROM accounts; INSERT INTO x VALUES (1)",
		`SELECT E'\' , 'x; COPY (SELECT 42 AS v) TO '/tmp/out.csv'; --'`,
		`SELECT e'\\' ; DROP TABLE accounts`,
		"SELECT $$ x $$; COPY accounts TO 'out.csv'",
		"SELECT $tag$ x $tag$; DELETE FROM accounts",
		"SELECT $$ never closed",
		"SELECT a$$ ' $$; COPY accounts TO 'x' --'",
		"SELECT 'unterminated",
		"SELECT 1 /* open comment",
	}
	for _, sqlText := range rejected {
		err := CheckReadOnly(sqlText)
		if !errors.Is(err, ErrNotReadOnly) {
			t.Fatalf("CheckReadOnly(%q) error = %v, want ErrNotReadOnly", sqlText, err)
		}
	}
}

func TestTrimStatement(t *testing.T) {
	if got := TrimStatement("  SELECT 1 ;; \n"); got != "SELECT 1" {
		t.Fatalf("TrimStatement() = %q", got)
	}
}

func TestResultTruncate(t *testing.T) {
	result := Result{Columns: []string{"n"}, Rows: [][]any{{1}, {2}, {3}}}

	truncated := result.Truncate(2)
	if truncated.Len() != 2 || truncated.Omitted != 1 {
		t.Fatalf("Truncate(2) = %d rows, %d omitted", truncated.Len(), truncated.Omitted)
	}
	if same := result.Truncate(0); same.Len() != 3 || same.Omitted != 0 {
		t.Fatalf("Truncate(0) changed the result: %+v", same)
	}
	if result.Len() != 3 {
		t.Fatal("Truncate mutated the receiver")
	}
}

func TestResultText(t *testing.T) {
	result := Result{
		Columns: []string{"account", "close_value", "close_date"},
		Rows: [][]any{
			{"Acme Corporation", 5100.5, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
			{"Cancity", nil, time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC)},
		},
		Omitted: 4,
	}
	text := result.Text()
	lines := strings.Split(text, "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d: %q", len(lines), text)
	}
	if !strings.HasPrefix(lines[0], "account") || !strings.Contains(lines[0], "close_value") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "5100.5") || !strings.Contains(lines[1], "2026-10-01") {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "NULL") || !strings.Contains(lines[2], "2026-10-02 09:30:00") {
		t.Fatalf("row 2 = %q", lines[2])
	}
	if lines[3] != "(4 more rows not shown)" {
		t.Fatalf("footer = %q", lines[3])
	}
}

func TestResultColumn(t *testing.T) {
	result := Result{Columns: []string{"a", "b"}, Rows: [][]any{{"x", 1}, {"y", 2}}}
	values := result.Column("b")
	if len(values) != 2 || values[1] != 2 {
		t.Fatalf("Column(b) = %#v", values)
	}
	if result.Column("missing") != nil {
		t.Fatal("expected nil for missing column")
	}
}

func TestUnavailableWrapsOnce(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := Unavailable(Unavailable(base))
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, base) {
		t.Fatalf("Unavailable() = %v", err)
	}
	if strings.Count(err.Error(), "unavailable") != 1 {
		t.Fatalf("wrapped twice: %v", err)
	}
	if Unavailable(nil) != nil {
		t.Fatal("Unavailable(nil) should be nil")
	}
}
