// Package migrations embeds the sqlite schema for chat history and artifact
// records.
package migrations

import "embed"

// FS holds the numbered up/down migrations.
//
//go:embed *.sql
var FS embed.FS
