package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"tpmb/pkg/logx"
)

const testToken = "123456789:AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// testVault uses the minimum iteration count so the suite stays fast.
func testVault(t *testing.T, cfg Config) *Vault {
	t.Helper()
	if cfg.Iterations == 0 {
		cfg.Iterations = minIterations
	}
	v, err := New("correct horse battery staple", cfg, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := testVault(t, Config{})
	blob, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := v.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != testToken {
		t.Fatalf("Decrypt = %q, want %q", got, testToken)
	}
}

func TestEncryptUsesFreshSalt(t *testing.T) {
	v := testVault(t, Config{})
	b1, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b2, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	e1, ok := parseEnvelope(b1)
	if !ok {
		t.Fatalf("first envelope did not parse")
	}
	e2, ok := parseEnvelope(b2)
	if !ok {
		t.Fatalf("second envelope did not parse")
	}
	if e1.Salt == e2.Salt {
		t.Fatalf("salt reused across encryptions")
	}
	if e1.Nonce == e2.Nonce {
		t.Fatalf("nonce reused across encryptions")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	v := testVault(t, Config{})
	blob, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	var e envelope
	if err := json.Unmarshal([]byte(blob), &e); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	ct, err := base64.RawURLEncoding.DecodeString(e.Ciphertext)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}
	ct[0] ^= 0x01
	e.Ciphertext = base64.RawURLEncoding.EncodeToString(ct)
	tampered, _ := json.Marshal(e)

	if _, err := v.Decrypt(string(tampered)); !errors.Is(err, ErrSecurity) {
		t.Fatalf("Decrypt(tampered) = %v, want ErrSecurity", err)
	}
}

func TestDecryptTamperedHeader(t *testing.T) {
	v := testVault(t, Config{})
	blob, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	var e envelope
	if err := json.Unmarshal([]byte(blob), &e); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	// The header is bound as AAD; lowering the count must break auth.
	e.Iterations = minIterations - 1000
	tampered, _ := json.Marshal(e)
	if _, err := v.Decrypt(string(tampered)); !errors.Is(err, ErrSecurity) {
		t.Fatalf("Decrypt(header-tampered) = %v, want ErrSecurity", err)
	}
}

func TestDecryptRejectsOversizedIterationCount(t *testing.T) {
	v := testVault(t, Config{})
	blob, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	var e envelope
	if err := json.Unmarshal([]byte(blob), &e); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	// The claimed count drives key derivation before the envelope is
	// authenticated, so it must be rejected outright, not derived with.
	// A billion iterations would otherwise take minutes of CPU.
	e.Iterations = 1_000_000_000
	tampered, _ := json.Marshal(e)

	start := time.Now()
	if _, err := v.Decrypt(string(tampered)); !errors.Is(err, ErrSecurity) {
		t.Fatalf("Decrypt(oversized count) = %v, want ErrSecurity", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("rejection took %v; claimed count was derived with", took)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	v := testVault(t, Config{})
	for _, blob := range []string{
		"",
		"not json",
		"{}",
		`{"ciphertext":"x"}`,
	} {
		if _, err := v.Decrypt(blob); !errors.Is(err, ErrSecurity) {
			t.Fatalf("Decrypt(%q) = %v, want ErrSecurity", blob, err)
		}
	}
}

func TestDecryptUnknownAlgorithm(t *testing.T) {
	v := testVault(t, Config{})
	blob, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	var e envelope
	_ = json.Unmarshal([]byte(blob), &e)
	e.Algorithm = "rot13+hope"
	tampered, _ := json.Marshal(e)
	if _, err := v.Decrypt(string(tampered)); !errors.Is(err, ErrSecurity) {
		t.Fatalf("Decrypt(unknown alg) = %v, want ErrSecurity", err)
	}
}

func TestWrongPassphraseFails(t *testing.T) {
	v := testVault(t, Config{})
	blob, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	other, err := New("a different passphrase", Config{Iterations: minIterations}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := other.Decrypt(blob); !errors.Is(err, ErrSecurity) {
		t.Fatalf("Decrypt with wrong passphrase = %v, want ErrSecurity", err)
	}
}

func TestRateBudgetExhaustion(t *testing.T) {
	v := testVault(t, Config{Budget: Budget{Attempts: 2, Window: time.Minute}})
	if _, err := v.Encrypt(testToken); err != nil {
		t.Fatalf("Encrypt 1: %v", err)
	}
	if _, err := v.Encrypt(testToken); err != nil {
		t.Fatalf("Encrypt 2: %v", err)
	}
	if _, err := v.Encrypt(testToken); !errors.Is(err, ErrSecurity) {
		t.Fatalf("Encrypt over budget = %v, want ErrSecurity", err)
	}
}

func TestVerify(t *testing.T) {
	v := testVault(t, Config{})
	blob, err := v.Encrypt(testToken)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := v.Verify(blob); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	notAToken, err := v.Encrypt("just some secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := v.Verify(notAToken); !errors.Is(err, ErrSecurity) {
		t.Fatalf("Verify(non-token secret) = %v, want ErrSecurity", err)
	}
}

func TestSaveLoad(t *testing.T) {
	v := testVault(t, Config{})
	path := filepath.Join(t.TempDir(), "sub", "token.enc")

	if err := v.Save(testToken, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if perm := fi.Mode().Perm(); perm != 0o600 {
			t.Fatalf("envelope perm = %o, want 600", perm)
		}
	}

	got, err := v.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != testToken {
		t.Fatalf("Load = %q, want %q", got, testToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	v := testVault(t, Config{})
	if _, err := v.Load(filepath.Join(t.TempDir(), "absent.enc")); !errors.Is(err, ErrSecurity) {
		t.Fatalf("Load(missing) = %v, want ErrSecurity", err)
	}
}

func TestConstructorValidation(t *testing.T) {
	if _, err := New("", Config{}, nil, logx.Nop()); err == nil {
		t.Fatalf("empty passphrase accepted")
	}
	if _, err := New("pass", Config{Iterations: 1000}, nil, logx.Nop()); err == nil {
		t.Fatalf("iteration count below floor accepted")
	}
	if _, err := New("pass", Config{Iterations: maxIterations + 1}, nil, logx.Nop()); err == nil {
		t.Fatalf("iteration count above ceiling accepted")
	}
}
