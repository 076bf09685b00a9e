// Package cmd provides the command-line interface for kreate.
//
// This package implements all CLI commands using the Cobra framework.
//
// # Available Commands
//
//   - build: Render the konfig and write the manifests
//   - view: Print the merged konfig, or part of it
//   - list: List all komponents with their output files
//   - watch: Rebuild whenever a konfig file changes
//   - version: Show build information
//
// # Command Examples
//
//	// Build the konfig in the current directory
//	kreate build
//
//	// Build another konfig for production
//	kreate build -k deploy/shop.konf --set app.env=prd
//
//	// Render without the age key
//	kreate build --dummy
//
//	// Show the values of the merged konfig as JSON
//	kreate view val -f json
//
//	// List komponents as YAML
//	kreate list -f yaml
//
// # Configuration Integration
//
// Commands respect settings from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (KREATE_*)
//  3. Settings file (.kreate.yml)
//  4. Default values (lowest priority)
//
// Settings only say where the konfig lives and how a run behaves. Konfig
// values are changed with repeated --set path=value flags, which win over
// every konfig layer.
//
// # Error Handling
//
// Fatal errors abort the command with a non-zero exit code. Non-fatal
// conditions, such as unknown kinds or branch versions of repos, are
// collected during the run and printed as a summary on stderr.
package cmd
