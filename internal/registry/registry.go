package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"apiforge/internal/router"
	"apiforge/internal/schema"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Builder turns a graph into a router for one tenant and API instance.
type Builder func(g *schema.Graph, tenantID, apiIdentifier string) *router.Router

const (
	storeTimeout = 10 * time.Second
	// touchEvery bounds how often lastAccessed is written back.
	touchEvery = time.Minute
)

// Registry publishes routers by apiId and rebuilds them from the store when
// they are not in memory.
type Registry struct {
	store Store
	build Builder

	mu       sync.RWMutex
	routers  map[string]*router.Router
	records  map[string]*Record
	byTenant map[string]map[string]struct{}
	// removing counts in-flight unpublishes per apiId; while set, the
	// store is not consulted and nothing is rebuilt or persisted.
	removing map[string]int

	idMu    sync.Mutex
	entropy io.Reader

	pending sync.WaitGroup
}

func New(store Store, build Builder) *Registry {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Registry{
		store:    store,
		build:    build,
		routers:  make(map[string]*router.Router),
		records:  make(map[string]*Record),
		byTenant: make(map[string]map[string]struct{}),
		removing: make(map[string]int),
		entropy:  ulid.Monotonic(src, 0),
	}
}

// NewIdentifier returns a short random token for physical table names:
// eight lower-case characters of a fresh ULID.
func (r *Registry) NewIdentifier() string {
	r.idMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
	r.idMu.Unlock()
	return strings.ToLower(id[len(id)-8:])
}

func (r *Registry) install(apiID string, rt *router.Router, rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routers[apiID] = rt
	r.records[apiID] = rec
	r.indexLocked(rec.TenantID, apiID)
}

// installRestored is install for rebuilt routers; it refuses apiIds that are
// being unpublished.
func (r *Registry) installRestored(apiID string, rt *router.Router, rec *Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removing[apiID] > 0 {
		return false
	}
	r.routers[apiID] = rt
	r.records[apiID] = rec
	r.indexLocked(rec.TenantID, apiID)
	return true
}

// evictLocked drops apiID from memory and returns whether it was there.
func (r *Registry) evictLocked(apiID string) bool {
	rec, ok := r.records[apiID]
	delete(r.routers, apiID)
	delete(r.records, apiID)
	if ok {
		if set := r.byTenant[rec.TenantID]; set != nil {
			delete(set, apiID)
			if len(set) == 0 {
				delete(r.byTenant, rec.TenantID)
			}
		}
	}
	return ok
}

func (r *Registry) indexLocked(tenantID, apiID string) {
	set, ok := r.byTenant[tenantID]
	if !ok {
		set = make(map[string]struct{})
		r.byTenant[tenantID] = set
	}
	set[apiID] = struct{}{}
}

// persist upserts asynchronously; Flush waits for outstanding writes.
func (r *Registry) persist(rec *Record) {
	r.mu.RLock()
	if r.removing[rec.APIID] > 0 {
		r.mu.RUnlock()
		return
	}
	r.pending.Add(1)
	r.mu.RUnlock()
	go func() {
		defer r.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := r.store.Upsert(ctx, rec); err != nil {
			log.Printf("registry: persist %s: %v", rec.APIID, err)
		}
	}()
}

func (r *Registry) Flush() { r.pending.Wait() }

// Publish installs rt under meta.APIID (a fresh UUID when empty) and returns
// the id. The tenant stored is the router's. Persistence is asynchronous.
func (r *Registry) Publish(rt *router.Router, meta Record) (string, error) {
	if meta.APIID == "" {
		meta.APIID = uuid.NewString()
	} else if _, err := uuid.Parse(meta.APIID); err != nil {
		return "", fmt.Errorf("invalid apiId %q: %w", meta.APIID, err)
	}
	rec := meta.Clone()
	rec.TenantID = rt.TenantID()
	rec.APIIdentifier = rt.APIIdentifier()
	if len(rec.Tables) == 0 {
		rec.Tables = rt.Graph().Tables
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastAccessed.IsZero() {
		rec.LastAccessed = now
	}

	r.install(rec.APIID, rt, rec)
	r.persist(rec.Clone())
	return rec.APIID, nil
}

// Get returns the router for apiID, rebuilding it from the store when it is
// not in memory.
func (r *Registry) Get(ctx context.Context, apiID string) (*router.Router, error) {
	r.mu.Lock()
	rt, ok := r.routers[apiID]
	var touched *Record
	if ok {
		rec := r.records[apiID]
		r.indexLocked(rec.TenantID, apiID)
		now := time.Now().UTC()
		if now.Sub(rec.LastAccessed) >= touchEvery {
			touched = rec.Clone()
			touched.LastAccessed = now
		}
		rec.LastAccessed = now
	}
	r.mu.Unlock()
	if ok {
		if touched != nil {
			r.persist(touched)
		}
		return rt, nil
	}
	return r.reconstruct(ctx, apiID)
}

func (r *Registry) reconstruct(ctx context.Context, apiID string) (*router.Router, error) {
	r.mu.RLock()
	gone := r.removing[apiID] > 0
	r.mu.RUnlock()
	if gone {
		return nil, ErrNotFound
	}
	rec, err := r.store.Get(ctx, apiID)
	if err != nil {
		return nil, err
	}
	return r.restore(rec)
}

// restore rebuilds a router from a stored record. Prefixed names are always
// re-derived from tenant and identifier.
func (r *Registry) restore(rec *Record) (*router.Router, error) {
	if rec.APIIdentifier == "" || rec.TenantID == "" {
		return nil, ErrNotFound
	}
	if rec.APIID == "" {
		return nil, ErrNotFound
	}
	g := rec.Graph().WithPrefixes(rec.TenantID, rec.APIIdentifier)
	rec.Tables = g.Tables
	rt := r.build(g, rec.TenantID, rec.APIIdentifier)
	rec.LastAccessed = time.Now().UTC()
	if !r.installRestored(rec.APIID, rt, rec) {
		return nil, ErrNotFound
	}
	return rt, nil
}

// Record returns a copy of the record for apiID from memory or the store.
func (r *Registry) Record(ctx context.Context, apiID string) (*Record, error) {
	r.mu.RLock()
	rec, ok := r.records[apiID]
	if ok {
		rec = rec.Clone()
	}
	r.mu.RUnlock()
	if ok {
		return rec, nil
	}
	return r.store.Get(ctx, apiID)
}

// Unpublish drops the router and the stored record. Physical tables stay.
// Until the store delete returns, Get reports the API as missing instead of
// rebuilding it from the record being deleted.
func (r *Registry) Unpublish(ctx context.Context, apiID string) (bool, error) {
	r.mu.Lock()
	r.removing[apiID]++
	inMemory := r.evictLocked(apiID)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.evictLocked(apiID)
		if r.removing[apiID]--; r.removing[apiID] <= 0 {
			delete(r.removing, apiID)
		}
		r.mu.Unlock()
	}()

	// a publish may still be writing this record
	r.Flush()
	existed := inMemory
	if !existed {
		if _, err := r.store.Get(ctx, apiID); err == nil {
			existed = true
		} else if !errors.Is(err, ErrNotFound) {
			return false, err
		}
	}
	if err := r.store.Delete(ctx, apiID); err != nil {
		return existed, err
	}
	return existed, nil
}

// LoadAll rebuilds every stored API. Failures are logged per record.
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	n := 0
	err := r.store.Scan(ctx, func(rec *Record) error {
		if _, err := r.restore(rec); err != nil {
			log.Printf("registry: load %s: %v", rec.APIID, err)
			return nil
		}
		n++
		return nil
	})
	return n, err
}

// ListByTenant returns the stored records of one tenant, oldest first.
func (r *Registry) ListByTenant(ctx context.Context, tenantID string) ([]*Record, error) {
	var out []*Record
	err := r.store.Scan(ctx, func(rec *Record) error {
		if rec.TenantID == tenantID {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// TenantAPIs returns the apiIds currently in memory for a tenant.
func (r *Registry) TenantAPIs(tenantID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byTenant[tenantID]))
	for id := range r.byTenant[tenantID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len is the number of routers in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routers)
}
