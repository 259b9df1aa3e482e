// Package store keeps the registry of account store backends. Backends
// register themselves from init, so importing one is enough to enable it.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/govm-net/counter/types"
)

// StoreType names an account store backend
type StoreType string

const (
	// MemoryStoreType keeps everything in process memory
	MemoryStoreType StoreType = "memory"
	// DBStoreType persists to sqlite through gorm
	DBStoreType StoreType = "db"
	// KVStoreType persists to a pebble key/value store
	KVStoreType StoreType = "kv"
)

// ErrNilRecord is returned by Commit when no transaction record is given.
var ErrNilRecord = errors.New("nil transaction record")

// Constructor builds a store from backend specific params such as "db_path"
// or "dir".
type Constructor func(params map[string]any) (types.AccountStore, error)

// Registry manages the available AccountStore implementations
type Registry interface {
	Register(st StoreType, constructor Constructor) error
	SetDefault(st StoreType) error
	Get(st StoreType, params map[string]any) (types.AccountStore, error)
	DefaultStoreType() StoreType
	ListRegistered() []StoreType
}

type registry struct {
	mu           sync.RWMutex
	constructors map[StoreType]Constructor
	defaultSt    StoreType
}

var defaultRegistry Registry = NewRegistry()

// NewRegistry returns an empty registry whose default is the memory store.
func NewRegistry() Registry {
	return &registry{
		constructors: make(map[StoreType]Constructor),
		defaultSt:    MemoryStoreType,
	}
}

// GetRegistry returns the process wide registry backends register into
func GetRegistry() Registry {
	return defaultRegistry
}

func (r *registry) Register(st StoreType, constructor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[st]; exists {
		return fmt.Errorf("store type %s already registered", st)
	}
	r.constructors[st] = constructor
	return nil
}

func (r *registry) SetDefault(st StoreType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[st]; !exists {
		return fmt.Errorf("store type %s not registered", st)
	}
	r.defaultSt = st
	return nil
}

func (r *registry) Get(st StoreType, params map[string]any) (types.AccountStore, error) {
	r.mu.RLock()
	if st == "" {
		st = r.defaultSt
	}
	constructor, exists := r.constructors[st]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("store type %s not found", st)
	}
	if params == nil {
		params = make(map[string]any)
	}
	return constructor(params)
}

func (r *registry) DefaultStoreType() StoreType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultSt
}

func (r *registry) ListRegistered() []StoreType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StoreType, 0, len(r.constructors))
	for st := range r.constructors {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Register adds a backend to the process wide registry
func Register(st StoreType, constructor Constructor) error {
	return GetRegistry().Register(st, constructor)
}

// Get opens a store of the given type; an empty type selects the default
func Get(st StoreType, params map[string]any) (types.AccountStore, error) {
	return GetRegistry().Get(st, params)
}

// ListRegistered returns the registered backends, sorted by name
func ListRegistered() []StoreType {
	return GetRegistry().ListRegistered()
}

// StringParam reads a string param, falling back to def when unset.
func StringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}
