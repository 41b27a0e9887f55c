// Package postgres provides PostgreSQL implementations of the credential and
// generation stores defined in internal/store, together with the embedded
// goose migrations that create their tables.
//
// Stores accept a store.DBTX so the same code runs against a *sql.DB or a
// transaction handed out by WithTx. Database errors are translated to store
// sentinels through MapError before they leave the package.
package postgres
