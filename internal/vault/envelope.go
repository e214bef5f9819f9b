package vault

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AlgorithmTag identifies the current sealing scheme. Old tags remain
// decryptable but trigger a rotation advisory.
const AlgorithmTag = "pbkdf2-sha256+xchacha20poly1305"

// EnvelopeVersion is bumped when the envelope layout changes.
const EnvelopeVersion = 2

// deprecatedAlgorithms are recognized legacy tags: still accepted, but
// flagged for rotation.
var deprecatedAlgorithms = map[string]bool{
	"pbkdf2-sha256+chacha20poly1305": true,
}

// envelope is the persisted artifact: a single JSON blob, rewritten
// wholesale on every re-encryption.
type envelope struct {
	Ciphertext  string `json:"ciphertext"`
	Nonce       string `json:"nonce"`
	Salt        string `json:"salt"`
	Algorithm   string `json:"algorithm_tag"`
	Iterations  int    `json:"iteration_count"`
	EncryptedAt int64  `json:"encrypted_at"`
	Version     int    `json:"version"`
}

// payload is the authenticated plaintext. It repeats the envelope header
// so a decrypted secret can be cross-checked against the (also
// authenticated) outer fields.
type payload struct {
	Secret      string `json:"secret"`
	Salt        string `json:"salt"`
	Algorithm   string `json:"algorithm_tag"`
	Iterations  int    `json:"iteration_count"`
	EncryptedAt int64  `json:"encrypted_at"`
	Version     int    `json:"version"`
}

func (e envelope) complete() bool {
	return e.Ciphertext != "" &&
		e.Nonce != "" &&
		e.Salt != "" &&
		e.Algorithm != "" &&
		e.Iterations > 0 &&
		e.EncryptedAt > 0 &&
		e.Version > 0
}

// aad is the canonical header encoding bound into the AEAD. Any change
// to a header field invalidates authentication.
func (e envelope) aad() []byte {
	return []byte(fmt.Sprintf("%s|%d|%s|%d|%d", e.Algorithm, e.Iterations, e.Salt, e.EncryptedAt, e.Version))
}

func (e envelope) matches(p payload) bool {
	return e.Salt == p.Salt &&
		e.Algorithm == p.Algorithm &&
		e.Iterations == p.Iterations &&
		e.EncryptedAt == p.EncryptedAt &&
		e.Version == p.Version
}

func parseEnvelope(blob string) (envelope, bool) {
	var e envelope
	dec := json.NewDecoder(strings.NewReader(blob))
	if err := dec.Decode(&e); err != nil {
		return envelope{}, false
	}
	if !e.complete() {
		return envelope{}, false
	}
	return e, true
}
