package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
)

// Registry caches one immutable Catalog per tenant. Catalogs are read from
// <dir>/<tenant>.yaml on first use; concurrent first requests share a single
// load. A reload swaps the whole catalog pointer, never patching in place.
type Registry struct {
	dir    string
	logger *zap.Logger

	mu       sync.RWMutex
	catalogs map[string]*Catalog
	group    singleflight.Group
}

// NewRegistry creates a registry reading catalog documents from dir.
func NewRegistry(dir string, logger *zap.Logger) *Registry {
	return &Registry{
		dir:      dir,
		logger:   logger.Named("catalog"),
		catalogs: make(map[string]*Catalog),
	}
}

// Get returns the tenant's catalog, loading it if needed. A tenant whose
// document fails to load keeps failing until the document is fixed; failures
// are never cached.
func (r *Registry) Get(ctx context.Context, tenant string) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidTenantID(tenant) {
		return nil, apperrors.New(apperrors.KindUnknownTenant, "", tenant, "invalid tenant id")
	}

	r.mu.RLock()
	cat, ok := r.catalogs[tenant]
	r.mu.RUnlock()
	if ok {
		return cat, nil
	}

	ch := r.group.DoChan(tenant, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.catalogs[tenant]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}
		return r.loadAndStore(tenant)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Catalog), nil
	}
}

// Reload re-reads the tenant's document and replaces the cached catalog. If
// the new document is invalid the tenant is evicted so that it stops serving
// until the document is corrected.
func (r *Registry) Reload(tenant string) (*Catalog, error) {
	if !ValidTenantID(tenant) {
		return nil, apperrors.New(apperrors.KindUnknownTenant, "", tenant, "invalid tenant id")
	}
	v, err, _ := r.group.Do("reload:"+tenant, func() (any, error) {
		return r.loadAndStore(tenant)
	})
	if err != nil {
		r.mu.Lock()
		delete(r.catalogs, tenant)
		r.mu.Unlock()
		r.logger.Error("Catalog reload failed; tenant disabled",
			zap.String("tenant", tenant),
			zap.Error(err))
		return nil, err
	}
	return v.(*Catalog), nil
}

// Preload loads every listed tenant and reports all failures together.
func (r *Registry) Preload(ctx context.Context, tenants []string) error {
	var errs []error
	for _, t := range tenants {
		if _, err := r.Get(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", t, err))
		}
	}
	return errors.Join(errs...)
}

// Register installs an already-built catalog, replacing any previous one.
func (r *Registry) Register(cat *Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storeLocked(cat)
}

// Tenants lists the tenants currently loaded, sorted.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.catalogs))
	for t := range r.catalogs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TenantNames maps every loaded tenant to the names it is known by.
func (r *Registry) TenantNames() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.catalogs))
	for t, cat := range r.catalogs {
		out[t] = cat.Names()
	}
	return out
}

func (r *Registry) loadAndStore(tenant string) (*Catalog, error) {
	path := filepath.Join(r.dir, tenant+".yaml")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, apperrors.New(apperrors.KindUnknownTenant, "", tenant, "no catalog document for tenant")
	}

	cat, err := LoadFile(tenant, path)
	if err != nil {
		r.logger.Error("Catalog load failed",
			zap.String("tenant", tenant),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.storeLocked(cat); err != nil {
		return nil, err
	}

	r.logger.Info("Catalog loaded",
		zap.String("tenant", tenant),
		zap.String("schema", cat.Schema()),
		zap.Int("metrics", len(cat.metrics)),
		zap.Int("dimensions", len(cat.dimensions)))
	return cat, nil
}

// storeLocked installs cat after checking no other tenant owns its schema.
func (r *Registry) storeLocked(cat *Catalog) error {
	for tenant, other := range r.catalogs {
		if tenant != cat.tenant && other.schema == cat.schema {
			return &LoadError{
				Tenant: cat.tenant,
				Entry:  "schema",
				Reason: fmt.Sprintf("schema %q is already owned by tenant %s", cat.schema, tenant),
			}
		}
	}
	r.catalogs[cat.tenant] = cat
	return nil
}
