// Package config reads the optional alertctl configuration file. The file is
// never written by the CLIs; secrets are best referenced through the *-env and
// *-file fields rather than stored inline.
package config
