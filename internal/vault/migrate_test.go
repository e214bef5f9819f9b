package vault

import (
	"os"
	"path/filepath"
	"testing"

	"tpmb/pkg/logx"
)

func TestMigrateLegacy(t *testing.T) {
	v := testVault(t, Config{})
	dir := t.TempDir()
	plain := filepath.Join(dir, "token.txt")
	enc := filepath.Join(dir, "token.enc")

	if err := os.WriteFile(plain, []byte(testToken+"\n"), 0o600); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}

	migrated, err := v.MigrateLegacy(plain, enc)
	if err != nil {
		t.Fatalf("MigrateLegacy: %v", err)
	}
	if !migrated {
		t.Fatalf("expected migration to run")
	}

	if _, err := os.Stat(plain); !os.IsNotExist(err) {
		t.Fatalf("plaintext file still present after migration")
	}
	if _, err := os.Stat(plain + ".bak"); err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	got, err := v.Load(enc)
	if err != nil {
		t.Fatalf("Load migrated envelope: %v", err)
	}
	if got != testToken {
		t.Fatalf("migrated secret = %q, want %q", got, testToken)
	}
}

func TestMigrateLegacyNoops(t *testing.T) {
	v := testVault(t, Config{})
	dir := t.TempDir()
	plain := filepath.Join(dir, "token.txt")
	enc := filepath.Join(dir, "token.enc")

	// No plaintext file at all.
	if migrated, err := v.MigrateLegacy(plain, enc); err != nil || migrated {
		t.Fatalf("MigrateLegacy(missing) = %v, %v; want false, nil", migrated, err)
	}

	// Envelope already exists.
	if err := v.Save(testToken, enc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(plain, []byte(testToken), 0o600); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}
	if migrated, err := v.MigrateLegacy(plain, enc); err != nil || migrated {
		t.Fatalf("MigrateLegacy(envelope exists) = %v, %v; want false, nil", migrated, err)
	}
	if _, err := os.Stat(plain); err != nil {
		t.Fatalf("plaintext was touched despite existing envelope: %v", err)
	}
}

func TestMigrateLegacyRejectsBadFormat(t *testing.T) {
	v, err := New("pass", Config{Iterations: minIterations}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir := t.TempDir()
	plain := filepath.Join(dir, "token.txt")
	enc := filepath.Join(dir, "token.enc")

	if err := os.WriteFile(plain, []byte("definitely not a token"), 0o600); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}
	if _, err := v.MigrateLegacy(plain, enc); err == nil {
		t.Fatalf("expected error for unrecognized secret format")
	}
	// Aborted migration must leave the original in place.
	if _, err := os.Stat(plain); err != nil {
		t.Fatalf("plaintext removed on aborted migration: %v", err)
	}
	if _, err := os.Stat(enc); !os.IsNotExist(err) {
		t.Fatalf("envelope written on aborted migration")
	}
}
