// Package policy holds the type blocklist: schema.org types that are never
// emitted regardless of which source registers them. The list can be
// replaced from a TOML file and reloaded while the process runs.
package policy

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/ldschema/errors"
)

// DefaultBlockedTypes are types a childcare site never legitimately emits
var DefaultBlockedTypes = []string{
	"VacationRental", "MobileApplication", "SoftwareApplication", "WebApplication",
	"VideoGame", "RealEstateListing", "Hotel", "Restaurant", "LodgingBusiness",
	"Brand", "Motel", "Resort", "Hostel", "BedAndBreakfast", "Campground",
}

// File is the TOML shape of a blocklist file
type File struct {
	Types []string `toml:"types"`
	// Allow removes entries from the default list instead of replacing it
	Allow []string `toml:"allow"`
}

// Blocklist matches type names case-insensitively and is safe for concurrent use
type Blocklist struct {
	mu    sync.RWMutex
	types map[string]struct{}
}

// New creates a blocklist of the given types
func New(types ...string) *Blocklist {
	b := &Blocklist{}
	b.Replace(types)
	return b
}

// Default creates a blocklist of DefaultBlockedTypes
func Default() *Blocklist {
	return New(DefaultBlockedTypes...)
}

// Blocked reports whether typ is on the list
func (b *Blocklist) Blocked(typ string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.types[strings.ToLower(strings.TrimSpace(typ))]
	return ok
}

// Replace swaps the whole list
func (b *Blocklist) Replace(types []string) {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			set[t] = struct{}{}
		}
	}
	b.mu.Lock()
	b.types = set
	b.mu.Unlock()
}

// Types returns the lower-cased entries, sorted
func (b *Blocklist) Types() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.types))
	for t := range b.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// LoadFile reads a blocklist file. "types" replaces the default list when
// present; "allow" then removes entries from whichever list is in effect.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read blocklist %s", path)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "parse blocklist %s", path)
	}

	types := DefaultBlockedTypes
	if f.Types != nil {
		types = f.Types
	}
	if len(f.Allow) == 0 {
		return append([]string(nil), types...), nil
	}

	allowed := make(map[string]bool, len(f.Allow))
	for _, a := range f.Allow {
		allowed[strings.ToLower(strings.TrimSpace(a))] = true
	}
	out := make([]string, 0, len(types))
	for _, t := range types {
		if !allowed[strings.ToLower(strings.TrimSpace(t))] {
			out = append(out, t)
		}
	}
	return out, nil
}

// Reload replaces the list from path. On error the current list is kept.
func (b *Blocklist) Reload(path string) error {
	types, err := LoadFile(path)
	if err != nil {
		return err
	}
	b.Replace(types)
	return nil
}
