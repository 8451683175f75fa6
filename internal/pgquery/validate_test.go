package pgquery

import "testing"

func TestValidateAllows(t *testing.T) {
	queries := []string{
		"SELECT 1",
		"select id from public.client_computer where uuid = $1",
		"EXPLAIN SELECT * FROM foo",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"SHOW pool_nodes",
		"  SELECT 1 ;  ",
		"SELECT '; not a statement separator' AS note",
	}
	for _, q := range queries {
		if err := Validate(q); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", q, err)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	queries := []string{
		"",
		"   ",
		"INSERT INTO foo VALUES (1)",
		"DELETE FROM foo",
		"DROP TABLE foo",
		"SELECT 1; DROP TABLE foo",
		"SELECT 1 -- ; DROP TABLE foo\n; DROP TABLE foo",
		"do $$ begin perform 1; end $$",
	}
	for _, q := range queries {
		if err := Validate(q); err == nil {
			t.Errorf("Validate(%q) = nil, want error", q)
		}
	}
}

func TestValidateStripsComments(t *testing.T) {
	if err := Validate("SELECT 1 -- trailing comment\n"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Validate("/* leading */ SELECT 1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
