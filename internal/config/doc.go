// Package config loads and validates node configuration.
//
// A configuration file is either CUE or YAML. Both are unified with an
// embedded CUE schema (schema.cue) that supplies defaults and enforces the
// limits of every table. Validation failures are reported as *Error values
// carrying a stable code and, for CUE input, the source position.
package config
