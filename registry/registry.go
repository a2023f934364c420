package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"
)

// Credential is created on the first successful auth for a username and
// never changes afterwards.
type Credential struct {
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Registry maps usernames to credentials for the lifetime of the process.
type Registry struct {
	credentials *gocache.Cache
	cost        int
}

func New(cost int) *Registry {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Registry{
		credentials: gocache.New(gocache.NoExpiration, 0),
		cost:        cost,
	}
}

// Register stores a credential for username unless one already exists.
// created is false when the username was already registered, including when
// a concurrent Register for the same name got there first; the returned
// credential is then the existing one.
func (r *Registry) Register(username, password string) (cred Credential, created bool, err error) {
	if existing, ok := r.Lookup(username); ok {
		return existing, false, nil
	}

	hash, err := bcrypt.GenerateFromPassword(prehash(password), r.cost)
	if err != nil {
		return Credential{}, false, fmt.Errorf("hashing password for %s: %w", username, err)
	}
	cred = Credential{Username: username, PasswordHash: hash, CreatedAt: time.Now()}

	if err := r.credentials.Add(username, cred, gocache.NoExpiration); err != nil {
		existing, _ := r.Lookup(username)
		return existing, false, nil
	}
	return cred, true, nil
}

func (r *Registry) Lookup(username string) (Credential, bool) {
	v, ok := r.credentials.Get(username)
	if !ok {
		return Credential{}, false
	}
	return v.(Credential), true
}

// Matches reports whether password is exactly the one cred was created with.
func (r *Registry) Matches(cred Credential, password string) bool {
	return bcrypt.CompareHashAndPassword(cred.PasswordHash, prehash(password)) == nil
}

func (r *Registry) Count() int {
	return r.credentials.ItemCount()
}

// bcrypt ignores input past 72 bytes, so passwords are digested first to keep
// comparison exact for any length.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(hex.EncodeToString(sum[:]))
}
