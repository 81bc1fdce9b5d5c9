// Package config loads telemetrykit settings.
//
// Sources are layered, later ones winning:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file
//  3. environment variables prefixed TELEMETRY_, with "__" separating
//     nested keys: TELEMETRY_GROWTH__HIGH_WATER=200 sets growth.high_water
//
// The log directory may reference environment variables as ${VAR}; a
// reference to an unset variable is an error rather than an empty string.
// Load validates the result and wraps every failure in ErrInvalidConfig.
package config
