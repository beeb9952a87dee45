// Package database opens the gateway's SQLite file and applies its schema.
//
// The media catalogue and the persisted routes share one database in the
// configured data directory. Open applies the embedded migrations in order
// and records each applied version in schema_migrations, so upgrading the
// binary upgrades the file in place. Writes go through Exec or Tx, which retry
// briefly when another connection holds the write lock.
package database
