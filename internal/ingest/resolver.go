package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Storage is the slice of the hierarchical storage collaborator the
// pipeline needs. *drive.Client satisfies it.
type Storage interface {
	FindChildFolder(ctx context.Context, parentID, name string) (string, error)
	CreateFolder(ctx context.Context, parentID, name string) (string, string, error)
	Upload(ctx context.Context, parentID, name, mimeType string, data []byte) (string, error)
}

// Resolver performs idempotent get-or-create of named subfolders. This is
// the system's only idempotency guarantee: folder-level, not
// artifact-level. Concurrent first-time resolutions of the same
// (parent, name) pair collapse into a single create.
type Resolver struct {
	storage Storage
	group   singleflight.Group

	mu    sync.Mutex
	known map[string]string
}

func NewResolver(storage Storage) *Resolver {
	return &Resolver{
		storage: storage,
		known:   make(map[string]string),
	}
}

// Resolve returns the id of the folder called name directly under parentID,
// creating it when no non-trashed match exists.
func (r *Resolver) Resolve(ctx context.Context, parentID, name string) (string, error) {
	key := parentID + "/" + name

	r.mu.Lock()
	if id, ok := r.known[key]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	id, err, _ := r.group.Do(key, func() (any, error) {
		id, err := r.storage.FindChildFolder(ctx, parentID, name)
		if err != nil {
			return "", err
		}
		if id == "" {
			id, _, err = r.storage.CreateFolder(ctx, parentID, name)
			if err != nil {
				return "", err
			}
		}
		r.mu.Lock()
		r.known[key] = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}
