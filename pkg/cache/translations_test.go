package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/clearquote-engine/pkg/llm"
)

var today = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

func TestTranslationCache_Key(t *testing.T) {
	c := NewTranslationCache(NewMemoryStore(0), "cq:", time.Hour, nil)

	a := c.Key("How many  severe dents?", today)
	assert.Equal(t, a, c.Key("  how many severe\tDENTS?", today))
	assert.NotEqual(t, a, c.Key("How many severe dents?", today.AddDate(0, 0, 1)))
	assert.NotEqual(t, a, c.Key("How many minor dents?", today))
	assert.Regexp(t, `^cq:[0-9a-f]{64}$`, a)
}

func TestTranslationCache_RoundTripRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewTranslationCache(NewRedisStore(client), "cq:", time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	_, ok := c.Get(ctx, "q", today)
	assert.False(t, ok)

	want := &llm.Translation{
		SQL:             "SELECT COUNT(*) AS count FROM repairs WHERE created_at >= :start_date",
		Params:          map[string]any{"start_date": "2025-01-01"},
		Assumptions:     []string{"this year"},
		NormalizedTerms: map[string]string{"hood": "bonnet"},
	}
	c.Put(ctx, "q", today, want)

	got, ok := c.Get(ctx, "q", today)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, time.Hour, mr.TTL(c.Key("q", today)))
}

func TestTranslationCache_CorruptEntryIsMiss(t *testing.T) {
	store := NewMemoryStore(0)
	c := NewTranslationCache(store, "", time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, c.Key("q", today), "{not json", time.Hour))
	_, ok := c.Get(ctx, "q", today)
	assert.False(t, ok)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) { return "", errors.New("down") }
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (failingStore) Del(context.Context, string) error { return errors.New("down") }

func TestTranslationCache_StoreFailuresAreMisses(t *testing.T) {
	c := NewTranslationCache(failingStore{}, "", time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	c.Put(ctx, "q", today, &llm.Translation{SQL: "SELECT 1"})
	_, ok := c.Get(ctx, "q", today)
	assert.False(t, ok)
}

func TestTranslationCache_DisabledAndNil(t *testing.T) {
	ctx := context.Background()

	disabled := NewTranslationCache(NewMemoryStore(0), "", 0, nil)
	disabled.Put(ctx, "q", today, &llm.Translation{SQL: "SELECT 1"})
	_, ok := disabled.Get(ctx, "q", today)
	assert.False(t, ok)

	var nilCache *TranslationCache
	nilCache.Put(ctx, "q", today, &llm.Translation{SQL: "SELECT 1"})
	_, ok = nilCache.Get(ctx, "q", today)
	assert.False(t, ok)
}
