package scraper

import (
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownSource = errors.New("unknown source")

// Entry binds a source key to its display name and constructor.
type Entry struct {
	Key  string
	Name string
	New  func(Options) Adapter
}

var (
	registryMu sync.RWMutex
	registry   []Entry
)

func init() {
	Register(Entry{Key: FanqieKey, Name: FanqieName, New: func(o Options) Adapter { return NewFanqie(o) }})
	Register(Entry{Key: QimaoKey, Name: QimaoName, New: func(o Options) Adapter { return NewQimao(o) }})
	Register(Entry{Key: ShuqiKey, Name: ShuqiName, New: func(o Options) Adapter { return NewShuqi(o) }})
	Register(Entry{Key: ZonghengKey, Name: ZonghengName, New: func(o Options) Adapter { return NewZongheng(o) }})
}

// Register appends an entry. Keys are unique; registering a key twice panics.
func Register(e Entry) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, existing := range registry {
		if existing.Key == e.Key {
			panic(fmt.Sprintf("scraper: source %q registered twice", e.Key))
		}
	}
	registry = append(registry, e)
}

// Entries returns the registered sources in registration order.
func Entries() []Entry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Entry, len(registry))
	copy(out, registry)
	return out
}

func Keys() []string {
	entries := Entries()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

func Lookup(key string) (Entry, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, e := range registry {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// DisplayName returns the registered name for key, or key itself.
func DisplayName(key string) string {
	if e, ok := Lookup(key); ok {
		return e.Name
	}
	return key
}

// New builds the adapter registered under key.
func New(key string, o Options) (Adapter, error) {
	e, ok := Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, key)
	}
	return e.New(o), nil
}

// All builds one adapter per registered source, in registration order.
func All(o Options) []Adapter {
	entries := Entries()
	out := make([]Adapter, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.New(o))
	}
	return out
}
