// Package assets holds files compiled into the binaries.
package assets

import (
	"embed"
)

// Templates are the text/template sources for invoices and emails.
//
//go:embed templates/*.tmpl
var Templates embed.FS
