package groqclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elee1766/chatrelay/src/aisdk"
)

// ErrModelNotFound indicates the upstream does not serve the requested model
var ErrModelNotFound = errors.New("model not found")

// ModelCache caches the upstream model list
type ModelCache struct {
	listCache *cachedModelList
	mu        sync.RWMutex
	ttl       time.Duration
	client    *Client
}

type cachedModelList struct {
	models    []*aisdk.ModelInfo
	fetchedAt time.Time
}

// NewModelCache creates a new model cache
func NewModelCache(client *Client, ttl time.Duration) *ModelCache {
	return &ModelCache{
		ttl:    ttl,
		client: client,
	}
}

// GetModel looks a model up in the cached list. A miss on a cached list
// refetches once, so models added upstream since the last fetch are found.
func (mc *ModelCache) GetModel(ctx context.Context, modelID string) (*aisdk.ModelInfo, error) {
	models, fresh, err := mc.modelList(ctx)
	if err != nil {
		return nil, err
	}
	if model := findModel(models, modelID); model != nil {
		return model, nil
	}
	if !fresh {
		mc.ClearCache()
		if models, _, err = mc.modelList(ctx); err != nil {
			return nil, err
		}
		if model := findModel(models, modelID); model != nil {
			return model, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
}

// GetModelList gets the model list from cache or fetches it
func (mc *ModelCache) GetModelList(ctx context.Context) ([]*aisdk.ModelInfo, error) {
	models, _, err := mc.modelList(ctx)
	return models, err
}

// modelList reports whether the list was fetched by this call
func (mc *ModelCache) modelList(ctx context.Context) ([]*aisdk.ModelInfo, bool, error) {
	mc.mu.RLock()
	cached := mc.listCache
	mc.mu.RUnlock()

	if cached != nil && time.Since(cached.fetchedAt) < mc.ttl {
		return cached.models, false, nil
	}

	models, err := mc.client.listModelsUncached(ctx)
	if err != nil {
		return nil, false, err
	}

	mc.mu.Lock()
	mc.listCache = &cachedModelList{
		models:    models,
		fetchedAt: time.Now(),
	}
	mc.mu.Unlock()

	return models, true, nil
}

func findModel(models []*aisdk.ModelInfo, id string) *aisdk.ModelInfo {
	for _, model := range models {
		if model.ID == id {
			return model
		}
	}
	return nil
}

// ClearCache drops the cached list
func (mc *ModelCache) ClearCache() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.listCache = nil
}
