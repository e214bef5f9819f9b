package vault

import (
	"regexp"
	"strconv"
	"strings"
)

// Bot tokens look like "<numeric id>:<hash>", where the hash part is at
// least 35 characters from the URL-safe base64 alphabet.
var tokenHashRe = regexp.MustCompile(`^[A-Za-z0-9_-]{35,}$`)

// ValidateToken reports whether token has a plausible bot-token shape.
// It validates format only; liveness is checked against the API.
func ValidateToken(token string) bool {
	id, hash, ok := strings.Cut(token, ":")
	if !ok {
		return false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return false
	}
	return tokenHashRe.MatchString(hash)
}
