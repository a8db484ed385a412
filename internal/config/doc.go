// Package config loads, validates, and provides typed access to the
// engine configuration. Configuration comes from a YAML file layered over
// built-in defaults, with the transcription API key overridable from the
// environment.
package config
