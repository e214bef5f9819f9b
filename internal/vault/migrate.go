package vault

import (
	"fmt"
	"os"
	"strings"

	"tpmb/pkg/logx"
)

// MigrateLegacy performs the one-time move from a plaintext secret file
// to an encrypted envelope. It is a no-op when the envelope already
// exists or no plaintext file is present.
//
// The plaintext is format-validated first; on failure the migration
// aborts and the plaintext file is left untouched. On success the
// plaintext is backed up with owner-only permissions, the envelope is
// written, and the plaintext is deleted.
func (v *Vault) MigrateLegacy(plainPath, encPath string) (bool, error) {
	if plainPath == "" || encPath == "" {
		return false, nil
	}
	if _, err := os.Stat(encPath); err == nil {
		return false, nil
	}
	raw, err := os.ReadFile(plainPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	secret := strings.TrimSpace(string(raw))
	if !ValidateToken(secret) {
		return false, fmt.Errorf("legacy secret file %s has unrecognized format; not migrating", plainPath)
	}

	backup := plainPath + ".bak"
	if err := writeFileAtomic(backup, raw, 0o600); err != nil {
		return false, fmt.Errorf("backing up legacy secret: %w", err)
	}
	if err := v.Save(secret, encPath); err != nil {
		return false, err
	}
	if err := os.Remove(plainPath); err != nil {
		return false, fmt.Errorf("removing legacy secret: %w", err)
	}

	v.log.Info("legacy secret migrated to encrypted storage",
		logx.String("envelope", encPath),
		logx.String("backup", backup))
	return true, nil
}
