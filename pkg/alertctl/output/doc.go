// Package output renders command results as JSON, YAML, tables or
// user-supplied templates.
package output
