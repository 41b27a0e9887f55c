// Package testdb provides helpers for tests that need a real PostgreSQL
// database.
//
// Tests call GetTestDBWithT to obtain a migrated connection. When no database
// URL is configured the test is skipped, so the package can be used from
// ordinary `go test ./...` runs without extra build tags.
//
// Each test should isolate its writes with WithTx, which always rolls the
// transaction back:
//
//	db := testdb.GetTestDBWithT(t)
//	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//		creds := postgres.NewPostgresCredentialStore(tx, logger.NopLogger())
//		// ...
//	})
package testdb
