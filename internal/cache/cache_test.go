package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

func sampleResult() *ocr.Result {
	return &ocr.Result{
		Text:             "Invoice #42\nTotal: $10.00",
		Confidence:       0.87,
		Provider:         ocr.ProviderOpenAI,
		ProcessingTimeMs: 120,
		Blocks: []ocr.TextBlock{
			{Text: "Invoice #42", Confidence: ocr.Float64(0.87)},
		},
	}
}

func TestGenerateKey(t *testing.T) {
	image := []byte("image-bytes")

	t.Run("deterministic", func(t *testing.T) {
		opts := ocr.Options{Language: "eng", DetectTables: true}
		assert.Equal(t, GenerateKey(image, opts), GenerateKey(image, opts))
		assert.Len(t, GenerateKey(image, opts), 64)
	})

	t.Run("image changes key", func(t *testing.T) {
		assert.NotEqual(t, GenerateKey(image, ocr.Options{}), GenerateKey([]byte("other"), ocr.Options{}))
	})

	t.Run("output-affecting options change key", func(t *testing.T) {
		base := GenerateKey(image, ocr.Options{})
		assert.NotEqual(t, base, GenerateKey(image, ocr.Options{Provider: ocr.ProviderAnthropic}))
		assert.NotEqual(t, base, GenerateKey(image, ocr.Options{DetectTables: true}))
		assert.NotEqual(t, base, GenerateKey(image, ocr.Options{Language: "deu"}))
		assert.NotEqual(t, base, GenerateKey(image, ocr.Options{Consensus: 2}))
		assert.NotEqual(t, base, GenerateKey(image, ocr.Options{Aggressive: true}))
	})

	t.Run("execution options do not change key", func(t *testing.T) {
		base := GenerateKey(image, ocr.Options{})
		assert.Equal(t, base, GenerateKey(image, ocr.Options{Timeout: 5 * time.Second}))
		assert.Equal(t, base, GenerateKey(image, ocr.Options{MaxRetries: 7}))
		assert.Equal(t, base, GenerateKey(image, ocr.Options{Priority: ocr.PriorityHigh}))
		assert.Equal(t, base, GenerateKey(image, ocr.Options{Consensus: 1}))
	})

	t.Run("normalizes case and whitespace", func(t *testing.T) {
		assert.Equal(t,
			GenerateKey(image, ocr.Options{Language: "eng"}),
			GenerateKey(image, ocr.Options{Language: " ENG "}))
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute, 10)
	defer store.Close()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	original := sampleResult()
	require.NoError(t, store.Set(ctx, "k", original, 0))

	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, original, got)

	// Stored copy is isolated from caller mutation
	got.Text = "mutated"
	again, _, _ := store.Get(ctx, "k")
	assert.Equal(t, original.Text, again.Text)

	require.NoError(t, store.Delete(ctx, "k"))
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute, 10)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "short", sampleResult(), 20*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	_, ok, _ := store.Get(ctx, "short")
	assert.False(t, ok)
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(nil, nil, time.Minute)
	defer c.Close()

	key := c.GenerateKey([]byte("img"), ocr.Options{})

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, sampleResult())
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, sampleResult(), got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)

	require.NoError(t, c.Invalidate(ctx, key))
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	c := New(nil, nil, time.Minute)
	defer c.Close()

	c.Set(ctx, "a", sampleResult())
	c.Set(ctx, "b", sampleResult())
	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, 0, c.Stats().Entries)
}

// memoryL2 stands in for a shared store
type memoryL2 struct {
	*MemoryStore
}

func TestCachePromotesL2Hits(t *testing.T) {
	ctx := context.Background()
	l2 := memoryL2{NewMemoryStore(time.Minute, 10)}
	c := New(nil, l2, time.Minute)
	defer c.Close()

	require.NoError(t, l2.Set(ctx, "shared", sampleResult(), time.Minute))

	got, ok := c.Get(ctx, "shared")
	require.True(t, ok)
	assert.Equal(t, "Invoice #42\nTotal: $10.00", got.Text)
	assert.Equal(t, uint64(1), c.Stats().L2Hits)

	// Second read is served from L1
	_, ok = c.Get(ctx, "shared")
	require.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().L2Hits)
	assert.Equal(t, uint64(2), c.Stats().Hits)
}

func TestCachePromotionKeepsRemainingL2Lifetime(t *testing.T) {
	ctx := context.Background()
	l2 := memoryL2{NewMemoryStore(time.Minute, 10)}
	c := New(nil, l2, time.Hour)
	defer c.Close()

	degraded := sampleResult()
	degraded.Degraded = true
	require.NoError(t, l2.Set(ctx, "degraded", degraded, 5*time.Minute))

	_, ok := c.Get(ctx, "degraded")
	require.True(t, ok)

	remaining, err := c.l1.TTL(ctx, "degraded")
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 5*time.Minute)
}

func TestCacheHitsDoNotAliasStructuredData(t *testing.T) {
	ctx := context.Background()
	c := New(nil, nil, time.Minute)
	defer c.Close()

	result := sampleResult()
	result.Structured = &ocr.StructuredData{
		KeyValuePairs: map[string]string{"Total": "$10.00"},
		Entities:      []ocr.NamedEntity{{Text: "jane@example.com", Type: ocr.EntityEmail}},
	}
	c.Set(ctx, "key", result)

	got, ok := c.Get(ctx, "key")
	require.True(t, ok)
	got.Structured.KeyValuePairs["Total"] = "$0.00"
	got.Structured.Entities[0].Text = "changed"

	again, ok := c.Get(ctx, "key")
	require.True(t, ok)
	assert.Equal(t, "$10.00", again.Structured.KeyValuePairs["Total"])
	assert.Equal(t, "jane@example.com", again.Structured.Entities[0].Text)
}

func TestCacheToleratesUnreachableRedis(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := New(nil, NewRedisStoreFromClient(client, ""), time.Minute)
	defer c.Close()

	_, ok := c.Get(ctx, "anything")
	assert.False(t, ok)

	// Write failure is logged, L1 still serves
	c.Set(ctx, "anything", sampleResult())
	_, ok = c.Get(ctx, "anything")
	assert.True(t, ok)
}

func TestResultEncoding(t *testing.T) {
	original := sampleResult()
	original.Tables = []ocr.TableData{ocr.NewTable([][]string{{"a", "b"}, {"1", "2"}})}

	data, err := encodeResult(original)
	require.NoError(t, err)

	decoded, err := decodeResult(data)
	require.NoError(t, err)
	assert.Equal(t, original.Text, decoded.Text)
	assert.Equal(t, original.Tables, decoded.Tables)
	assert.InDelta(t, original.Confidence, decoded.Confidence, 1e-9)

	_, err = encodeResult(nil)
	assert.Error(t, err)

	_, err = decodeResult([]byte("{not json"))
	assert.Error(t, err)
}

func TestRedisKeyPrefix(t *testing.T) {
	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "")
	defer store.Close()

	assert.Equal(t, "ocr:result:abc", store.key("abc"))

	custom := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "tenant:")
	defer custom.Close()
	assert.Equal(t, "tenant:abc", custom.key("abc"))
}
