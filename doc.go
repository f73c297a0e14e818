// Package sqlgate is a guarded SQL gateway for a single relational
// database. Callers send one SQL statement with positional parameters; the
// gateway admits it only when the shared-secret token matches, no
// forbidden keyword appears anywhere in the text, the head verb is one of
// SELECT, INSERT, UPDATE, DELETE, EXEC or WITH, and every schema-qualified
// object and EXEC target is allow-listed.
//
// Admitted statements run in their own transaction on a fresh connection
// and are committed. The query text is never rewritten; values travel only
// as driver parameters. Base64 parameters bound to declared binary columns
// of an INSERT are decoded to bytes, and binary results come back as
// base64.
//
// SQL Server is the primary target. PostgreSQL and SQLite are also
// supported through the same pipeline.
//
// # Library Usage
//
//	g, err := sqlgate.New(connString, sqlgate.Config{
//		Database: sqlgate.DatabaseConfig{Driver: "sqlserver", MaxConns: 10},
//		Protection: sqlgate.ProtectionConfig{
//			AllowedObjects:    []string{"dbo.AppMeta", "dbo.NoteRules"},
//			AllowedProcedures: []string{"dbo.sp_ItemaOtomatikAyar"},
//		},
//		Auth: sqlgate.AuthConfig{Token: token},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer g.Close()
//
//	// Use directly
//	output, err := g.Execute(ctx, sqlgate.ExecuteInput{
//		Query:  "SELECT V FROM dbo.AppMeta WHERE K = ?",
//		Params: []any{"theme"},
//		Token:  token,
//	})
//
//	// Or serve POST /sql and GET /health
//	http.ListenAndServe(":8080", sqlgate.NewRouter(g, sqlgate.RouterConfig{}))
//
// Every failure from Execute is an *[Error]; its StatusCode is the HTTP
// status the router answers with (400, 401, 403 or 500).
package sqlgate
