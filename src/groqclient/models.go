package groqclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elee1766/chatrelay/src/aisdk"
)

// ModelsResponse represents the response from the /models endpoint
type ModelsResponse struct {
	Object string             `json:"object"`
	Data   []*aisdk.ModelInfo `json:"data"`
}

// ListModels returns all available models (with caching)
func (c *Client) ListModels(ctx context.Context) ([]*aisdk.ModelInfo, error) {
	return c.modelCache.GetModelList(ctx)
}

// listModelsUncached returns all available models without caching
func (c *Client) listModelsUncached(ctx context.Context) ([]*aisdk.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.doRequestWithRetry(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, c.timeoutAware(ctx, "list models", err)
	}
	defer resp.Body.Close()

	var modelsResp ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return modelsResp.Data, nil
}

// GetModelByID returns a specific model by ID
func (c *Client) GetModelByID(ctx context.Context, modelID string) (*aisdk.ModelInfo, error) {
	return c.modelCache.GetModel(ctx, modelID)
}

// FindModelByName searches for a model by ID, exact match first, then substring (case-insensitive)
func (c *Client) FindModelByName(ctx context.Context, name string) (*aisdk.ModelInfo, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	searchName := strings.ToLower(name)

	for _, model := range models {
		if strings.ToLower(model.ID) == searchName {
			return model, nil
		}
	}

	for _, model := range models {
		if strings.Contains(strings.ToLower(model.ID), searchName) {
			return model, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

// VerifyModels checks that every given model ID is served upstream.
func (c *Client) VerifyModels(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if _, err := c.GetModelByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
