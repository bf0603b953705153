// Package schemas содержит JSON Schema форматов, которыми сервис обменивается с внешним миром.
package schemas

import "embed"

//go:embed backups/*.json
var SchemasFS embed.FS
