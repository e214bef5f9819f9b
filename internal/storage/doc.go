// Package storage persists dispatch history.
//
// Two drivers share one interface: a JSON Lines file store (default, no
// cgo, no extra deps) and a sqlite store compiled in with the "sqlite"
// build tag.
package storage
