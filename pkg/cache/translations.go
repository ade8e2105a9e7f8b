package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/llm"
)

// TranslationCache stores translator output keyed by normalized question
// and reference date. Store failures are logged and treated as misses.
type TranslationCache struct {
	store  Store
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewTranslationCache(store Store, prefix string, ttl time.Duration, logger *zap.Logger) *TranslationCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranslationCache{store: store, prefix: prefix, ttl: ttl, logger: logger.Named("cache")}
}

// Key derives the cache key. Questions differing only in case or
// whitespace share a key; relative periods make the date part of it.
func (c *TranslationCache) Key(question string, today time.Time) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(today.Format("2006-01-02") + "\n" + normalized))
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached translation, if any.
func (c *TranslationCache) Get(ctx context.Context, question string, today time.Time) (*llm.Translation, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	raw, err := c.store.Get(ctx, c.Key(question, today))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Translation cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var tr llm.Translation
	if err := json.Unmarshal([]byte(raw), &tr); err != nil {
		c.logger.Warn("Discarding undecodable cached translation", zap.Error(err))
		return nil, false
	}
	return &tr, true
}

// Put stores tr for question.
func (c *TranslationCache) Put(ctx context.Context, question string, today time.Time, tr *llm.Translation) {
	if c == nil || c.ttl <= 0 || tr == nil {
		return
	}
	data, err := json.Marshal(tr)
	if err != nil {
		c.logger.Warn("Failed to encode translation for cache", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.Key(question, today), string(data), c.ttl); err != nil {
		c.logger.Warn("Translation cache write failed", zap.Error(err))
	}
}
