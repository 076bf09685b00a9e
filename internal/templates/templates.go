// Package templates holds the built-in komponent templates. They are
// served as the embedded repo "kreate", so a klass refers to them as
// "kreate:templates/<Kind>.yaml".
package templates

import (
	"embed"

	"github.com/conneroisu/kreate/internal/repo"
)

// Package is the embedded repo name of the built-in templates.
const Package = "kreate"

//go:embed templates/*
var files embed.FS

func init() {
	repo.RegisterEmbedded(Package, files)
}

// Ref returns the reference of the built-in template file name.
func Ref(name string) string {
	return Package + ":templates/" + name
}
