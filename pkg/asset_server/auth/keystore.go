// Package auth maps presented API keys to ranked roles.
package auth

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Role ranks; a request passes when its resolved rank is at least the
// endpoint's required rank.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

var roleRank = map[string]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// Rank returns the numeric rank of a role, 0 for unknown roles.
func Rank(role string) int { return roleRank[role] }

// Allows reports whether role meets the given minimum role.
func Allows(role, minRole string) bool {
	return Rank(role) >= Rank(minRole) && Rank(role) > 0
}

// defaultKeys keeps a fresh install usable before a key file is provisioned,
// mirroring the demo credentials the pipeline ships with.
var defaultKeys = map[string]string{
	"demo-view":  RoleViewer,
	"demo-edit":  RoleEditor,
	"demo-admin": RoleAdmin,
}

// Keystore resolves API keys to roles from a YAML file (key: role). The file
// is re-read when its mtime changes, so operators can rotate keys without a
// restart. A missing or unreadable file falls back to the built-in demo keys.
type Keystore struct {
	path string

	mu     sync.Mutex
	keys   map[string]string
	loaded time.Time
}

func NewKeystore(path string) *Keystore {
	return &Keystore{path: path}
}

// Lookup returns the role for key and whether the key is known.
func (k *Keystore) Lookup(key string) (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.refreshLocked()
	role, ok := k.keys[key]
	return role, ok
}

func (k *Keystore) refreshLocked() {
	info, err := os.Stat(k.path)
	if err != nil {
		if k.keys == nil {
			k.keys = cloneKeys(defaultKeys)
		}
		return
	}
	if k.keys != nil && !info.ModTime().After(k.loaded) {
		return
	}
	data, err := os.ReadFile(k.path)
	if err != nil {
		if k.keys == nil {
			k.keys = cloneKeys(defaultKeys)
		}
		return
	}
	parsed := map[string]string{}
	if err := yaml.Unmarshal(data, &parsed); err != nil || len(parsed) == 0 {
		if k.keys == nil {
			k.keys = cloneKeys(defaultKeys)
		}
		return
	}
	k.keys = parsed
	k.loaded = info.ModTime()
}

func cloneKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
