package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// errNotFound marks a 404 from the Qdrant API.
var errNotFound = errors.New("qdrant: not found")

// Storage is a minimal REST client to Qdrant storing one collection per document,
// reached through an alias named prefix+key.
// Collections use Dot distance so Qdrant keeps vectors as given; the exact
// float64 values are also mirrored in each point's payload and read back from
// there, because Qdrant stores vectors as float32.
type Storage struct {
	url    string
	apiKey string
	prefix string
	client *http.Client
}

type Config struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.URL == "" {
		cfg.URL = "http://localhost:6333"
	}
	return &Storage{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		prefix: cfg.CollectionPrefix,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Storage) collectionURL(name string) string {
	return fmt.Sprintf("%s/collections/%s", s.url, url.PathEscape(name))
}

// Save uploads the index into a fresh staging collection and then points the
// document's alias at it in one atomic alias update. The previous collection
// is dropped only after the switch, so a failed rebuild leaves the last good
// index in place.
func (s *Storage) Save(ctx context.Context, key string, index *domain.Index) error {
	if err := vectorstore.ValidateKey(key); err != nil {
		return err
	}
	if err := index.Validate(); err != nil {
		return err
	}
	alias := s.prefix + key
	staging := alias + "__" + uuid.NewString()
	body := map[string]any{
		"vectors": map[string]any{
			"size":     index.Dimension,
			"distance": "Dot",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(staging), body, nil); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	if err := s.upload(ctx, staging, index); err != nil {
		_ = s.dropCollection(ctx, staging)
		return fmt.Errorf("upserting points: %w", err)
	}

	previous, err := s.aliasTarget(ctx, alias)
	if err != nil {
		_ = s.dropCollection(ctx, staging)
		return err
	}
	var actions []map[string]any
	if previous != "" {
		actions = append(actions, map[string]any{"delete_alias": map[string]any{"alias_name": alias}})
	} else if err := s.dropCollection(ctx, alias); err != nil {
		// A plain collection under the alias name blocks the alias.
		_ = s.dropCollection(ctx, staging)
		return err
	}
	actions = append(actions, map[string]any{
		"create_alias": map[string]any{"collection_name": staging, "alias_name": alias},
	})
	if err := s.do(ctx, http.MethodPost, s.url+"/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		_ = s.dropCollection(ctx, staging)
		return fmt.Errorf("switching alias: %w", err)
	}
	if previous != "" && previous != staging {
		if err := s.dropCollection(ctx, previous); err != nil {
			return fmt.Errorf("dropping previous collection: %w", err)
		}
	}
	return nil
}

func (s *Storage) upload(ctx context.Context, collection string, index *domain.Index) error {
	builtAt := index.BuiltAt.UTC().Format(time.RFC3339Nano)
	points := make([]map[string]any, len(index.Chunks))
	for i, c := range index.Chunks {
		points[i] = map[string]any{
			"id":     c.Ordinal,
			"vector": index.Vectors[i].Values,
			"payload": map[string]any{
				"document_id": c.DocumentID,
				"chunk_id":    c.ID,
				"ordinal":     c.Ordinal,
				"text":        c.Text,
				"start":       c.Start,
				"end":         c.End,
				"values":      index.Vectors[i].Values,
				"embedder":    index.Embedder,
				"built_at":    builtAt,
			},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(collection)+"/points?wait=true", map[string]any{"points": points}, nil)
}

type aliasesResponse struct {
	Result struct {
		Aliases []struct {
			AliasName      string `json:"alias_name"`
			CollectionName string `json:"collection_name"`
		} `json:"aliases"`
	} `json:"result"`
}

// aliasTarget returns the collection alias points at, or "" if alias is unset.
func (s *Storage) aliasTarget(ctx context.Context, alias string) (string, error) {
	var resp aliasesResponse
	if err := s.do(ctx, http.MethodGet, s.url+"/aliases", nil, &resp); err != nil {
		return "", fmt.Errorf("listing aliases: %w", err)
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == alias {
			return a.CollectionName, nil
		}
	}
	return "", nil
}

func (s *Storage) dropCollection(ctx context.Context, name string) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(name), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("dropping collection %s: %w", name, err)
	}
	return nil
}

type pointPayload struct {
	DocumentID string    `json:"document_id"`
	ChunkID    string    `json:"chunk_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Values     []float64 `json:"values"`
	Embedder   string    `json:"embedder"`
	BuiltAt    string    `json:"built_at"`
}

type scrollResponse struct {
	Result struct {
		Points []struct {
			Payload pointPayload `json:"payload"`
		} `json:"points"`
		NextPageOffset json.RawMessage `json:"next_page_offset"`
	} `json:"result"`
}

// Load scrolls through the whole collection and rebuilds the index in ordinal order.
func (s *Storage) Load(ctx context.Context, key string) (*domain.Index, error) {
	if err := vectorstore.ValidateKey(key); err != nil {
		return nil, err
	}
	var payloads []pointPayload
	var offset json.RawMessage
	for {
		req := map[string]any{
			"limit":        256,
			"with_payload": true,
			"with_vector":  false,
		}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var resp scrollResponse
		err := s.do(ctx, http.MethodPost, s.collectionURL(s.prefix+key)+"/points/scroll", req, &resp)
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, key)
		}
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			payloads = append(payloads, p.Payload)
		}
		next := resp.Result.NextPageOffset
		if len(next) == 0 || string(next) == "null" {
			break
		}
		offset = next
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("%w: %s (empty collection)", domain.ErrIndexNotFound, key)
	}
	sort.Slice(payloads, func(i, j int) bool { return payloads[i].Ordinal < payloads[j].Ordinal })

	idx := &domain.Index{
		DocumentID: key,
		Embedder:   payloads[0].Embedder,
		Dimension:  len(payloads[0].Values),
	}
	builtAt, err := time.Parse(time.RFC3339Nano, payloads[0].BuiltAt)
	if err != nil {
		return nil, fmt.Errorf("parsing built_at: %w", err)
	}
	idx.BuiltAt = builtAt
	for _, p := range payloads {
		idx.Chunks = append(idx.Chunks, domain.Chunk{
			ID:         p.ChunkID,
			DocumentID: p.DocumentID,
			Ordinal:    p.Ordinal,
			Text:       p.Text,
			Start:      p.Start,
			End:        p.End,
		})
		idx.Vectors = append(idx.Vectors, domain.EmbeddingVector{ChunkID: p.ChunkID, Values: p.Values})
	}
	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt index %s: %w", key, err)
	}
	return idx, nil
}

// Delete removes the document's alias and the collection behind it.
// A missing index is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := vectorstore.ValidateKey(key); err != nil {
		return err
	}
	alias := s.prefix + key
	target, err := s.aliasTarget(ctx, alias)
	if err != nil {
		return err
	}
	if target == "" {
		return s.dropCollection(ctx, alias)
	}
	actions := []map[string]any{{"delete_alias": map[string]any{"alias_name": alias}}}
	if err := s.do(ctx, http.MethodPost, s.url+"/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		return fmt.Errorf("removing alias: %w", err)
	}
	return s.dropCollection(ctx, target)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
