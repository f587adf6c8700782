// Package backend resolves a Metastore DSN into a concrete
// interfaces.Repository, the way relayfile resolves a state backend DSN
// into a StateBackend: a scheme-keyed factory registry that the four
// concrete backend packages register themselves into via init().
package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
)

// Factory builds a Repository from a DSN. ctx bounds any connection setup
// the backend performs (e.g. firestore.NewClient, pgxpool.New).
type Factory func(ctx context.Context, dsn string) (interfaces.Repository, error)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]Factory
}{factories: map[string]Factory{}}

// Register associates scheme with factory. Called from each backend
// package's init(), mirroring RegisterStateBackendFactory.
func Register(scheme string, factory Factory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[scheme] = factory
}

func lookup(scheme string) (Factory, bool) {
	scheme = normalizeScheme(scheme)
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	f, ok := registry.factories[scheme]
	return f, ok
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// Open resolves dsn's scheme against the registry and builds a Repository.
// Supported schemes: memory:// (or empty), firestore://<project-id>,
// postgres:// / postgresql://, sqlite://<path> (or a bare filesystem path).
func Open(ctx context.Context, dsn string) (interfaces.Repository, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || dsn == "memory://" {
		if f, ok := lookup("memory"); ok {
			return f(ctx, dsn)
		}
		return nil, goerr.New("memory backend not registered")
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse metastore dsn")
	}
	scheme := normalizeScheme(parsed.Scheme)
	if scheme == "" {
		// Bare path with no scheme is treated as a sqlite file, matching
		// the CLI convention of accepting a plain --db-path.
		scheme = "sqlite"
	}

	factory, ok := lookup(scheme)
	if !ok {
		return nil, goerr.Wrap(fmt.Errorf("unsupported metastore scheme: %s", scheme), "failed to open metastore", goerr.V("dsn", dsn))
	}
	repo, err := factory(ctx, dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open metastore", goerr.V("scheme", scheme))
	}
	return repo, nil
}
