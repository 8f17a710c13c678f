// Package redis provides a Redis-backed suggestion store. Records are JSON
// documents under "suggestion:{tenant}:{document}:{id}" so a document's
// suggestions share a scannable key prefix.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"redline/internal/domain"
	models "redline/internal/domain/models/suggestion"
	suggestionRepo "redline/internal/domain/repositories/suggestion"

	"github.com/redis/go-redis/v9"
)

// SuggestionStore implements SuggestionRepository and BatchCreator on Redis
type SuggestionStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var (
	_ suggestionRepo.SuggestionRepository = (*SuggestionStore)(nil)
	_ suggestionRepo.BatchCreator         = (*SuggestionStore)(nil)
)

// NewClient parses redisURL and verifies the server is reachable
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewSuggestionStore creates a store from an existing Redis client
func NewSuggestionStore(client *redis.Client, logger *slog.Logger) *SuggestionStore {
	return &SuggestionStore{
		client: client,
		prefix: "suggestion:",
		logger: logger,
	}
}

// key generates the Redis key for a suggestion
func (s *SuggestionStore) key(tenantID, documentID, id string) string {
	return s.prefix + tenantID + ":" + documentID + ":" + id
}

func (s *SuggestionStore) recordKey(sg *models.Suggestion) string {
	return s.key(sg.TenantID, sg.DocumentID, sg.ID)
}

// match is the SCAN pattern for every suggestion of a document
func (s *SuggestionStore) match(tenantID, documentID string) string {
	return escapeGlob(s.prefix+tenantID+":"+documentID+":") + "*"
}

// Create persists a new suggestion; an existing key is a conflict.
func (s *SuggestionStore) Create(ctx context.Context, sg *models.Suggestion) error {
	data, err := json.Marshal(sg)
	if err != nil {
		return fmt.Errorf("marshal suggestion: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.recordKey(sg), data, 0).Result()
	if err != nil {
		return storeError("create suggestion", err)
	}
	if !ok {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("suggestion '%s' already exists", sg.ID),
			ResourceType: "suggestion",
			ResourceID:   sg.ID,
		}
	}
	return nil
}

// CreateBatch writes every item in one pipeline and reports the items whose
// write did not land.
func (s *SuggestionStore) CreateBatch(ctx context.Context, items []*models.Suggestion) ([]*models.Suggestion, error) {
	if len(items) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.BoolCmd, len(items))
	var failed []*models.Suggestion
	_, execErr := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, sg := range items {
			data, err := json.Marshal(sg)
			if err != nil {
				return fmt.Errorf("marshal suggestion %s: %w", sg.ID, err)
			}
			cmds[i] = pipe.SetNX(ctx, s.recordKey(sg), data, 0)
		}
		return nil
	})

	for i, cmd := range cmds {
		if cmd == nil || cmd.Err() != nil || !cmd.Val() {
			failed = append(failed, items[i])
		}
	}
	if len(failed) > 0 {
		if execErr == nil {
			execErr = errors.New("some keys already existed")
		}
		return failed, storeError("create suggestion batch", execErr)
	}
	return nil, nil
}

// Get retrieves a suggestion by key
func (s *SuggestionStore) Get(ctx context.Context, key suggestionRepo.Key) (*models.Suggestion, error) {
	data, err := s.client.Get(ctx, s.key(key.TenantID, key.DocumentID, key.SuggestionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("suggestion %s: %w", key.SuggestionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeError("get suggestion", err)
	}

	var sg models.Suggestion
	if err := json.Unmarshal(data, &sg); err != nil {
		return nil, fmt.Errorf("unmarshal suggestion %s: %w", key.SuggestionID, err)
	}
	return &sg, nil
}

// Update overwrites an existing suggestion. A missing key is not recreated.
func (s *SuggestionStore) Update(ctx context.Context, sg *models.Suggestion) error {
	data, err := json.Marshal(sg)
	if err != nil {
		return fmt.Errorf("marshal suggestion: %w", err)
	}

	ok, err := s.client.SetXX(ctx, s.recordKey(sg), data, 0).Result()
	if err != nil {
		return storeError("update suggestion", err)
	}
	if !ok {
		return fmt.Errorf("suggestion %s: %w", sg.ID, domain.ErrNotFound)
	}
	return nil
}

// Delete physically removes a suggestion
func (s *SuggestionStore) Delete(ctx context.Context, key suggestionRepo.Key) error {
	n, err := s.client.Del(ctx, s.key(key.TenantID, key.DocumentID, key.SuggestionID)).Result()
	if err != nil {
		return storeError("delete suggestion", err)
	}
	if n == 0 {
		return fmt.Errorf("suggestion %s: %w", key.SuggestionID, domain.ErrNotFound)
	}
	return nil
}

// Scan walks the document's key prefix with SCAN. Version and status are
// filtered client-side, so a page may hold fewer than limit items (or none)
// while the cursor is still non-empty.
func (s *SuggestionStore) Scan(ctx context.Context, prefix suggestionRepo.Prefix, cursor string, limit int) (*suggestionRepo.Page, error) {
	var redisCursor uint64
	if cursor != "" {
		c, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed cursor %q", domain.ErrValidation, cursor)
		}
		redisCursor = c
	}
	if limit <= 0 {
		limit = 100
	}

	keys, next, err := s.client.Scan(ctx, redisCursor, s.match(prefix.TenantID, prefix.DocumentID), int64(limit)).Result()
	if err != nil {
		return nil, storeError("scan suggestions", err)
	}

	page := &suggestionRepo.Page{}
	if next != 0 {
		page.NextCursor = strconv.FormatUint(next, 10)
	}
	if len(keys) == 0 {
		return page, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeError("load suggestions", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between SCAN and MGET
		}
		var sg models.Suggestion
		if err := json.Unmarshal([]byte(raw), &sg); err != nil {
			s.logger.Warn("skipping unreadable suggestion record", "key", keys[i], "error", err)
			continue
		}
		if prefix.Matches(&sg) {
			page.Items = append(page.Items, sg)
		}
	}
	return page, nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrStore, err))
}

// escapeGlob escapes the characters SCAN MATCH treats specially
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
