package ids

import (
	"crypto/rand"
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

const (
	// TaskPrefix is used for server-issued task ids.
	TaskPrefix = "task"
	// LocalPrefix is used for client placeholders. The server never issues it, so a
	// local id cannot collide with a server id.
	LocalPrefix = "tmp"
)

// NewRandom returns prefix-<suffix> where suffix is 8 chars of base32 (lowercase, no padding).
// 8 chars base32 ~= 40 bits (~1 trillion) of space.
func NewRandom(prefix string) (string, error) {
	var b [5]byte // 40 bits -> 8 base32 chars
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	suffix := strings.ToLower(enc.EncodeToString(b[:]))
	return prefix + "-" + suffix, nil
}

// NewLocal returns a placeholder id for an optimistic entry.
func NewLocal() (string, error) { return NewRandom(LocalPrefix) }

// NewTask returns a server task id.
func NewTask() (string, error) { return NewRandom(TaskPrefix) }

// IsLocal reports whether id was issued by NewLocal.
func IsLocal(id string) bool {
	return strings.HasPrefix(strings.TrimSpace(id), LocalPrefix+"-")
}

// NewRequestToken returns an idempotency token for a create request.
func NewRequestToken() string { return uuid.NewString() }
