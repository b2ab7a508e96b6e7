package store

import "testing"

func TestRebindPostgresPlaceholders(t *testing.T) {
	cases := []struct {
		dialect string
		in      string
		want    string
	}{
		{DialectPostgres, "SELECT 1", "SELECT 1"},
		{DialectPostgres, "SELECT * FROM users WHERE id=?", "SELECT * FROM users WHERE id=$1"},
		{DialectPostgres, "INSERT INTO t(a,b,c) VALUES(?,?,?)", "INSERT INTO t(a,b,c) VALUES($1,$2,$3)"},
		{DialectPostgres, "UPDATE incidents SET status=? WHERE id=? AND version=?", "UPDATE incidents SET status=$1 WHERE id=$2 AND version=$3"},
		{DialectSQLite, "SELECT * FROM users WHERE id=?", "SELECT * FROM users WHERE id=?"},
	}
	for _, tc := range cases {
		if got := rebind(tc.dialect, tc.in); got != tc.want {
			t.Errorf("rebind(%s, %q) = %q, want %q", tc.dialect, tc.in, got, tc.want)
		}
	}
}

func TestDBDialect(t *testing.T) {
	db := setupDB(t)
	if db.Dialect() != DialectSQLite {
		t.Fatalf("dialect = %q", db.Dialect())
	}
	// sqlite queries pass through Rebind untouched.
	q := "SELECT id FROM users WHERE username=?"
	if got := db.Rebind(q); got != q {
		t.Fatalf("Rebind(%q) = %q", q, got)
	}
}
