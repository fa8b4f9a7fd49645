package db

import "embed"

// MigrationFS embeds the schema for identities, refresh tokens, sessions, the audit trail
// and security threats. Applied by cmd/migrate through the migrate runner.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
