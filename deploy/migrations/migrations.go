package migrations

import "embed"

// Files exposes every SQL migration for the journal schema.
//
//go:embed *.sql
var Files embed.FS
