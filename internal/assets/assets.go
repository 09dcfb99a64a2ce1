// Package assets embeds the jq helper functions installed by `functions install`.
package assets

import "embed"

// Functions holds functions/*.jq.
//
//go:embed functions/*.jq
var Functions embed.FS
