// Package config loads the bot configuration from JSON or YAML, validates
// it, and hot-reloads edits via fsnotify. A reload that fails validation
// keeps the previous snapshot.
package config
