package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/soyeahso/bazaar/internal/domain"
)

// ErrMalformed marks a stored collection that is not a valid JSON array.
var ErrMalformed = errors.New("store: malformed collection")

// LoadAgents reads the agent collection stored under key. An absent or
// empty value is an empty collection. Only a document that is not valid
// JSON or not an array returns an error wrapping ErrMalformed; fields of
// unexpected types are tolerated per agent, and stored keys the agents do
// not model survive SaveAgents.
func LoadAgents(ctx context.Context, kv KV, key string) ([]domain.AgentTemplate, error) {
	raw, err := kv.Get(ctx, key)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var agents []domain.AgentTemplate
	if err := json.Unmarshal([]byte(raw), &agents); err != nil {
		return nil, fmt.Errorf("%w: key %q: %v", ErrMalformed, key, err)
	}
	return agents, nil
}

// SaveAgents replaces the whole collection stored under key.
func SaveAgents(ctx context.Context, kv KV, key string, agents []domain.AgentTemplate) error {
	if agents == nil {
		agents = []domain.AgentTemplate{}
	}
	data, err := json.Marshal(agents)
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", key, err)
	}
	return kv.Set(ctx, key, string(data))
}
