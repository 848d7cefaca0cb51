// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: JSONB payload columns, LISTEN/NOTIFY nudges for event
// subscribers, and tracked in-code SQL migrations.
package postgres
