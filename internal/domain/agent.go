package domain

import (
	"bytes"
	"encoding/json"
	"maps"
	"time"
)

// AgentTemplate is a published reusable agent configuration.
//
// Agents decoded from JSON remember the document they came from. Encoding
// such an agent writes back every stored key it does not model, and keeps
// the stored form of every modeled field that was not changed.
type AgentTemplate struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Label         string          `json:"label"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Tags          []string        `json:"tags"`
	Difficulty    string          `json:"difficulty"`
	EstimatedTime string          `json:"estimated_time"`
	AgentConfig   json.RawMessage `json:"agent_config,omitempty"`
	PublishedAt   string          `json:"published_at,omitempty"`
	AuthorID      *string         `json:"author_id"`
	AuthorName    *string         `json:"author_name"`
	IsOfficial    *bool           `json:"is_official,omitempty"`

	src *agentSource
}

// agentSource is the stored form of a decoded agent.
type agentSource struct {
	// opaque holds an element that is not a JSON object.
	opaque json.RawMessage
	// raw is the stored object, key by key.
	raw map[string]json.RawMessage
	// decoded is the encoding of the modeled fields right after decoding.
	decoded map[string]json.RawMessage
}

// agentFields carries the modeled fields without the custom codec.
type agentFields AgentTemplate

// UnmarshalJSON decodes an agent field by field. A field holding an
// unexpected type is left zero instead of failing the whole agent; numbers
// and booleans in text fields are read as text and numeric published_at
// values as epoch milliseconds. An element that is not an object decodes
// to an opaque agent that encodes back to the same bytes.
func (a *AgentTemplate) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil || raw == nil {
		*a = AgentTemplate{src: &agentSource{opaque: append(json.RawMessage(nil), bytes.TrimSpace(b)...)}}
		return nil
	}

	v := AgentTemplate{
		ID:            jsonText(raw["id"]),
		Name:          jsonText(raw["name"]),
		Label:         jsonText(raw["label"]),
		Description:   jsonText(raw["description"]),
		Category:      jsonText(raw["category"]),
		Difficulty:    jsonText(raw["difficulty"]),
		EstimatedTime: jsonText(raw["estimated_time"]),
		PublishedAt:   publishedAtText(raw["published_at"]),
		AuthorID:      nullableText(raw["author_id"]),
		AuthorName:    nullableText(raw["author_name"]),
	}
	if tags, ok := raw["tags"]; ok {
		v.Tags = jsonStrings(tags)
	}
	if cfg, ok := raw["agent_config"]; ok {
		v.AgentConfig = append(json.RawMessage(nil), cfg...)
	}
	switch string(bytes.TrimSpace(raw["is_official"])) {
	case "true":
		v.IsOfficial = Ptr(true)
	case "false":
		v.IsOfficial = Ptr(false)
	}

	decoded, err := v.fieldMap()
	if err != nil {
		return err
	}
	v.src = &agentSource{raw: raw, decoded: decoded}
	*a = v
	return nil
}

// MarshalJSON encodes the agent, merging changes into its stored form when
// it has one.
func (a AgentTemplate) MarshalJSON() ([]byte, error) {
	if a.src == nil {
		return json.Marshal(agentFields(a))
	}
	if a.src.opaque != nil {
		return a.src.opaque, nil
	}

	current, err := a.fieldMap()
	if err != nil {
		return nil, err
	}
	out := maps.Clone(a.src.raw)
	for key, v := range current {
		if bytes.Equal(v, a.src.decoded[key]) {
			continue
		}
		out[key] = v
	}
	for key := range a.src.decoded {
		if _, ok := current[key]; !ok {
			delete(out, key)
		}
	}
	return json.Marshal(out)
}

func (a AgentTemplate) fieldMap() (map[string]json.RawMessage, error) {
	data, err := json.Marshal(agentFields(a))
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Opaque reports whether the agent was decoded from a stored element that
// is not an object. Opaque agents are kept in their collection but never
// listed.
func (a AgentTemplate) Opaque() bool {
	return a.src != nil && a.src.opaque != nil
}

func nullableText(v json.RawMessage) *string {
	if len(v) == 0 || string(bytes.TrimSpace(v)) == "null" {
		return nil
	}
	return Ptr(jsonText(v))
}

func publishedAtText(v json.RawMessage) string {
	var ms json.Number
	if err := json.Unmarshal(v, &ms); err == nil {
		if n, err := ms.Int64(); err == nil {
			return FormatTimestamp(time.UnixMilli(n))
		}
	}
	return jsonText(v)
}

// Listing exposes the fields shared filtering and sorting operate on.
func (a AgentTemplate) Listing() Listing {
	return Listing{
		Name:        a.Name,
		Description: a.Description,
		Category:    a.Category,
		Tags:        a.Tags,
		PublishedAt: a.PublishedAt,
		Official:    a.Official(),
	}
}

// Official reports whether is_official is explicitly true.
func (a AgentTemplate) Official() bool {
	return a.IsOfficial != nil && *a.IsOfficial
}

// HasAuthor reports whether the agent carries a non-empty author_id.
func (a AgentTemplate) HasAuthor() bool {
	return a.AuthorID != nil && *a.AuthorID != ""
}

// User identifies the caller on whose behalf catalog operations run.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// DisplayName returns username, else email, else nil.
func (u User) DisplayName() *string {
	switch {
	case u.Username != "":
		return Ptr(u.Username)
	case u.Email != "":
		return Ptr(u.Email)
	default:
		return nil
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
