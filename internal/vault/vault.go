package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"tpmb/internal/ratelimit"
	"tpmb/pkg/logx"
)

// ErrSecurity is the only error the vault returns for access failures:
// missing file, malformed envelope, authentication failure, or an
// exhausted rate budget. The message is deliberately uniform.
var ErrSecurity = errors.New("vault: access denied")

const (
	// DefaultIterations follows current OWASP guidance for
	// PBKDF2-HMAC-SHA256 with generous headroom.
	DefaultIterations = 480_000
	// minIterations is the floor below which a configured count is
	// rejected at construction.
	minIterations = 210_000
	// maxIterations bounds the count a stored envelope may claim. The
	// count is read before the envelope is authenticated, so without a
	// ceiling a forged header could make deriveKey grind for minutes.
	maxIterations = 5_000_000

	keySize  = 32
	saltSize = 32

	// staleAfter is the advisory age threshold for the stored secret.
	staleAfter = 90 * 24 * time.Hour
)

// Budget caps vault operations per trailing window.
type Budget struct {
	Attempts int
	Window   time.Duration
}

func (b Budget) withDefaults() Budget {
	if b.Attempts <= 0 {
		b.Attempts = 10
	}
	if b.Window <= 0 {
		b.Window = time.Minute
	}
	return b
}

type Config struct {
	Iterations int
	Budget     Budget
}

type Vault struct {
	passphrase []byte
	iterations int
	budget     Budget
	limiter    *ratelimit.Limiter
	log        logx.Logger
	now        func() time.Time
}

// New builds a vault around the given passphrase. The passphrase must be
// stable across restarts or previously persisted envelopes become
// undecryptable.
func New(passphrase string, cfg Config, limiter *ratelimit.Limiter, log logx.Logger) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("vault: passphrase is required")
	}
	iters := cfg.Iterations
	if iters == 0 {
		iters = DefaultIterations
	}
	if iters < minIterations {
		return nil, errors.New("vault: iteration count below minimum")
	}
	if iters > maxIterations {
		return nil, errors.New("vault: iteration count above maximum")
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Vault{
		passphrase: []byte(passphrase),
		iterations: iters,
		budget:     cfg.Budget.withDefaults(),
		limiter:    limiter,
		log:        log,
		now:        time.Now,
	}, nil
}

func (v *Vault) allow(op string) bool {
	return v.limiter.Allow(op, v.budget.Attempts, v.budget.Window)
}

func (v *Vault) deriveKey(salt []byte, iterations int) []byte {
	return pbkdf2.Key(v.passphrase, salt, iterations, keySize, sha256.New)
}

// Encrypt seals secret into an envelope blob. A fresh salt is generated
// on every call; salts are never reused.
func (v *Vault) Encrypt(secret string) (string, error) {
	if !v.allow("vault.encrypt") {
		v.log.Warn("vault encrypt budget exceeded")
		return "", ErrSecurity
	}
	if secret == "" {
		return "", ErrSecurity
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", ErrSecurity
	}

	env := envelope{
		Salt:        base64.RawURLEncoding.EncodeToString(salt),
		Algorithm:   AlgorithmTag,
		Iterations:  v.iterations,
		EncryptedAt: v.now().Unix(),
		Version:     EnvelopeVersion,
	}
	pl := payload{
		Secret:      secret,
		Salt:        env.Salt,
		Algorithm:   env.Algorithm,
		Iterations:  env.Iterations,
		EncryptedAt: env.EncryptedAt,
		Version:     env.Version,
	}
	plain, err := json.Marshal(pl)
	if err != nil {
		return "", ErrSecurity
	}

	aead, err := chacha20poly1305.NewX(v.deriveKey(salt, env.Iterations))
	if err != nil {
		return "", ErrSecurity
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", ErrSecurity
	}
	ct := aead.Seal(nil, nonce, plain, env.aad())

	env.Nonce = base64.RawURLEncoding.EncodeToString(nonce)
	env.Ciphertext = base64.RawURLEncoding.EncodeToString(ct)

	out, err := json.Marshal(env)
	if err != nil {
		return "", ErrSecurity
	}
	return string(out), nil
}

// Decrypt opens an envelope blob and returns the secret. All failure
// modes collapse into ErrSecurity; advisory conditions (stale secret,
// deprecated algorithm tag) are logged, never fatal.
func (v *Vault) Decrypt(blob string) (string, error) {
	if !v.allow("vault.decrypt") {
		v.log.Warn("vault decrypt budget exceeded")
		return "", ErrSecurity
	}
	env, secret, err := v.open(blob)
	if err != nil {
		return "", err
	}
	v.advise(env)
	return secret, nil
}

// Verify decrypts the blob and checks the secret still passes the token
// format validator. It uses its own operation class so health checks do
// not consume the decrypt budget.
func (v *Vault) Verify(blob string) error {
	if !v.allow("vault.verify") {
		return ErrSecurity
	}
	_, secret, err := v.open(blob)
	if err != nil {
		return err
	}
	if !ValidateToken(secret) {
		return ErrSecurity
	}
	return nil
}

// open is the shared decrypt core. Callers pay the rate budget for their
// own operation class before invoking it.
func (v *Vault) open(blob string) (envelope, string, error) {
	env, ok := parseEnvelope(blob)
	if !ok {
		return envelope{}, "", ErrSecurity
	}
	if env.Algorithm != AlgorithmTag && !deprecatedAlgorithms[env.Algorithm] {
		return envelope{}, "", ErrSecurity
	}
	// Bound the claimed cost before deriving anything: the count is
	// unauthenticated at this point.
	if env.Iterations > maxIterations {
		return envelope{}, "", ErrSecurity
	}

	salt, err := base64.RawURLEncoding.DecodeString(env.Salt)
	if err != nil {
		return envelope{}, "", ErrSecurity
	}
	nonce, err := base64.RawURLEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return envelope{}, "", ErrSecurity
	}
	ct, err := base64.RawURLEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return envelope{}, "", ErrSecurity
	}

	aead, err := chacha20poly1305.NewX(v.deriveKey(salt, env.Iterations))
	if err != nil {
		return envelope{}, "", ErrSecurity
	}
	plain, err := aead.Open(nil, nonce, ct, env.aad())
	if err != nil {
		return envelope{}, "", ErrSecurity
	}

	var pl payload
	if err := json.Unmarshal(plain, &pl); err != nil {
		return envelope{}, "", ErrSecurity
	}
	if pl.Secret == "" || !env.matches(pl) {
		return envelope{}, "", ErrSecurity
	}
	return env, pl.Secret, nil
}

// advise emits the non-fatal rotation warnings.
func (v *Vault) advise(env envelope) {
	if deprecatedAlgorithms[env.Algorithm] {
		v.log.Warn("stored secret uses a deprecated algorithm; re-encrypt to rotate",
			logx.String("algorithm", env.Algorithm))
	}
	if age := v.now().Sub(time.Unix(env.EncryptedAt, 0)); age > staleAfter {
		v.log.Warn("stored secret exceeds rotation age",
			logx.Int("age_days", int(age.Hours()/24)))
	}
}

// Save encrypts secret and persists the envelope: write to a temp file,
// fsync, then atomically rename into place with owner-only permissions.
func (v *Vault) Save(secret, path string) error {
	blob, err := v.Encrypt(secret)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(blob), 0o600)
}

// Load reads the envelope at path and decrypts it. A missing file is a
// security error like any other access failure.
func (v *Vault) Load(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		v.log.Warn("vault file unreadable", logx.String("path", path))
		return "", ErrSecurity
	}
	return v.Decrypt(string(b))
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
