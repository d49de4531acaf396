// Package journal records pipeline runs and per-file actions in a SQLite
// database.
//
// The journal is an audit trail only. The media directory itself remains the
// state of record: deleting the journal never changes what a run does.
//
// The database uses WAL mode and is created on first open.
package journal
