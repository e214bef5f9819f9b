// Package vault keeps the bot credential encrypted at rest.
//
// The key is derived from an external passphrase with PBKDF2-SHA256 and a
// fresh per-encryption salt; the secret is sealed with XChaCha20-Poly1305.
// The envelope header (salt, algorithm tag, iteration count, timestamp,
// version) is bound as additional authenticated data, so tampering with
// any field fails authentication.
//
// All operations are rate limited, and every failure surfaces as the same
// generic ErrSecurity so callers cannot learn which validation step
// failed.
package vault
