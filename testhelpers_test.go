package sqlgate_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	sqlgate "github.com/rickchristie/sqlgate"
	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

const testToken = "test-token"

// testSchema mirrors the settings tables of the desktop client. The dbo
// schema is an attached SQLite database.
var testSchema = []string{
	"CREATE TABLE dbo.AppMeta (K TEXT PRIMARY KEY, V TEXT)",
	"CREATE TABLE dbo.NoteRules (Id INTEGER PRIMARY KEY AUTOINCREMENT, Name TEXT, Payload BLOB)",
	"CREATE TABLE dbo.Snapshots (Id INTEGER PRIMARY KEY, Taken TEXT, Data BLOB)",
	"CREATE TABLE dbo.AppUsers (Id INTEGER PRIMARY KEY, Name TEXT, NationalId TEXT)",
	"CREATE TABLE dbo.Secrets (Id INTEGER PRIMARY KEY, Value TEXT)",
	"INSERT INTO dbo.AppMeta (K, V) VALUES ('theme', 'dark'), ('lang', 'tr')",
	"INSERT INTO dbo.AppUsers (Id, Name, NationalId) VALUES (1, 'ayse', '12345678901')",
	"INSERT INTO dbo.Secrets (Id, Value) VALUES (1, 'hunter2')",
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

// testDB is a SQLite main database with an attached dbo database.
type testDB struct {
	mainPath string
	attach   string
}

func newTestDB(t *testing.T) testDB {
	t.Helper()
	dir := t.TempDir()
	db := testDB{
		mainPath: filepath.Join(dir, "main.db"),
		attach:   fmt.Sprintf("ATTACH DATABASE '%s' AS dbo", filepath.Join(dir, "dbo.db")),
	}
	db.exec(t, testSchema...)
	return db
}

// exec runs statements directly, bypassing the gateway.
func (d testDB) exec(t *testing.T, statements ...string) {
	t.Helper()
	conn, err := sql.Open("sqlite", d.mainPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	defer conn.Close()
	conn.SetMaxOpenConns(1)
	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, d.attach); err != nil {
		t.Fatalf("failed to attach dbo: %v", err)
	}
	for _, s := range statements {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			t.Fatalf("setup statement %q failed: %v", s, err)
		}
	}
}

func defaultConfig(db testDB) sqlgate.Config {
	return sqlgate.Config{
		Database: sqlgate.DatabaseConfig{
			Driver:         "sqlite",
			MaxConns:       4,
			InitStatements: []string{db.attach},
		},
		Protection: sqlgate.ProtectionConfig{
			AllowedObjects: []string{
				"dbo.AppMeta", "dbo.NoteRules", "dbo.Snapshots", "dbo.AppUsers",
			},
			AllowedProcedures: []string{"dbo.sp_ItemaOtomatikAyar"},
		},
		Auth: sqlgate.AuthConfig{Token: testToken},
	}
}

func newTestGateway(t *testing.T, mutate func(*sqlgate.Config)) (*sqlgate.Gateway, testDB) {
	t.Helper()
	db := newTestDB(t)
	config := defaultConfig(db)
	if mutate != nil {
		mutate(&config)
	}
	g, err := sqlgate.New(db.mainPath, config, testLogger())
	if err != nil {
		t.Fatalf("failed to create Gateway: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g, db
}

func execute(t *testing.T, g *sqlgate.Gateway, query string, params ...any) *sqlgate.QueryOutput {
	t.Helper()
	output, err := g.Execute(context.Background(), sqlgate.ExecuteInput{Query: query, Params: params, Token: testToken})
	if err != nil {
		t.Fatalf("query %q failed: %v", query, err)
	}
	return output
}

func executeErr(t *testing.T, g *sqlgate.Gateway, query string, params ...any) *sqlgate.Error {
	t.Helper()
	_, err := g.Execute(context.Background(), sqlgate.ExecuteInput{Query: query, Params: params, Token: testToken})
	if err == nil {
		t.Fatalf("expected error for %q, got nil", query)
	}
	gerr, ok := err.(*sqlgate.Error)
	if !ok {
		t.Fatalf("expected *sqlgate.Error, got %T: %v", err, err)
	}
	return gerr
}
