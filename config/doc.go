// Package config handles application configuration loading and validation.
//
// Static configuration is loaded from config.yml and validated using struct
// tags. The user-adjustable filtering settings additionally go through a
// runtime Manager that validates each field independently, substitutes the
// documented default for any invalid field, and notifies subscribers of the
// applied change before returning to the caller.
package config
