package store

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatmem/chatmem/internal/embedding"
)

// keywordEmbedder maps texts onto fixed semantic axes so retrieval
// tests are deterministic: each keyword lights up one dimension.
type keywordEmbedder struct {
	fail bool
}

var axes = []string{"cat", "tokyo", "concert"}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if k.fail {
		return nil, embedding.ErrUnavailable
	}
	vec := make([]float32, len(axes))
	lower := strings.ToLower(text)
	for i, word := range axes {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := k.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (k *keywordEmbedder) Model() string  { return "keyword-test" }
func (k *keywordEmbedder) Dimension() int { return len(axes) }

func TestRememberAndQuery(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), &keywordEmbedder{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Remember(ctx, "alice", "My cat is named Whiskers"))
	require.NoError(t, s.Remember(ctx, "alice", "I visited Tokyo last spring"))
	require.NoError(t, s.Remember(ctx, "alice", "The concert was loud"))

	got, err := s.Query(ctx, "alice", "tell me about my cat", 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Whiskers")

	got, err = s.Query(ctx, "alice", "what about tokyo", 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Tokyo")
}

func TestQueryEmptyInputs(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), &keywordEmbedder{}, nil, nil)
	require.NoError(t, err)

	got, err := s.Query(ctx, "alice", "", 5, false)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Query(ctx, "alice", "   ", 5, false)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Query(ctx, "alice", "cat", 0, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryEmptyStore(t *testing.T) {
	s, err := Open(t.TempDir(), &keywordEmbedder{}, nil, nil)
	require.NoError(t, err)

	got, err := s.Query(context.Background(), "nobody", "anything about cats", 5, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), &keywordEmbedder{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Remember(ctx, "group/alice", "My cat sleeps all day"))
	require.NoError(t, s.Remember(ctx, "group/bob", "Tokyo is crowded"))

	got, err := s.Query(ctx, "group/alice", "tokyo", 5, false)
	require.NoError(t, err)
	for _, text := range got {
		assert.NotContains(t, text, "Tokyo")
	}

	got, err = s.Query(ctx, "group/bob", "tokyo", 5, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Tokyo")
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embedding.NewMock(8)

	s, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Remember(ctx, "alice", "I adopted a cat in March"))
	require.NoError(t, s.Remember(ctx, "alice", "I moved to a new flat"))

	reopened, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count("alice"))
	assert.Equal(t, 0, reopened.Pending("alice"))

	got, err := reopened.Query(ctx, "alice", "I adopted a cat in March", 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "cat")
}

func TestRememberDegradesWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := &keywordEmbedder{fail: true}

	s, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)

	err = s.Remember(ctx, "alice", "My cat knocked over a vase")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotIndexed)

	// The text survived to disk even though the index never saw it.
	assert.Equal(t, 1, s.Count("alice"))
	assert.Equal(t, 1, s.Pending("alice"))

	got, err := s.Query(ctx, "alice", "cat", 5, false)
	require.Error(t, err)
	assert.Empty(t, got)
}

func TestReindexRecoversUnindexedRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := &keywordEmbedder{fail: true}

	s, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)

	err = s.Remember(ctx, "alice", "My cat hides under the bed")
	assert.ErrorIs(t, err, ErrNotIndexed)
	require.Equal(t, 1, s.Pending("alice"))

	// Backend comes back; the reindex pass picks up the stragglers.
	emb.fail = false
	job := s.StartReindex(ctx, "alice")
	require.NoError(t, job.Wait())
	assert.Equal(t, 1, job.Total())
	assert.Equal(t, 1, job.Progress())
	assert.Equal(t, 0, s.Pending("alice"))

	got, err := s.Query(ctx, "alice", "where is the cat", 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "cat")
}

// gatedEmbedder blocks single-text embeds until released, so tests can
// act while a reindex pass is mid-flight. Batch embeds pass through.
type gatedEmbedder struct {
	keywordEmbedder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.keywordEmbedder.Embed(ctx, text)
}

func TestReindexKeepsRecordsRememberedMidPass(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := &gatedEmbedder{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	s, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Remember(ctx, "alice", "My cat is named Whiskers"))

	job := s.StartReindex(ctx, "alice")
	<-emb.entered

	// Lands while the pass is still embedding; the rewrite must carry
	// it through instead of rolling the owner back to the snapshot.
	require.NoError(t, s.Remember(ctx, "alice", "I visited Tokyo last spring"))

	close(emb.release)
	require.NoError(t, job.Wait())

	assert.Equal(t, 2, s.Count("alice"))
	assert.Equal(t, 0, s.Pending("alice"))

	got, err := s.Query(ctx, "alice", "tokyo", 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Tokyo")

	reopened, err := Open(dir, &keywordEmbedder{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count("alice"))
}

func TestReindexKeepsCachedVectorOnEmbedFailure(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := &keywordEmbedder{}

	s, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Remember(ctx, "alice", "My cat is named Whiskers"))

	// Backend flakes for the whole pass. The record already has a good
	// vector, so it must come out the other side still searchable.
	emb.fail = true
	job := s.StartReindex(ctx, "alice")
	require.NoError(t, job.Wait())
	emb.fail = false

	assert.Equal(t, 0, s.Pending("alice"))
	got, err := s.Query(ctx, "alice", "cat", 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "Whiskers")

	reopened, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, reopened.Pending("alice"))
}

func TestRememberIgnoresBlankText(t *testing.T) {
	s, err := Open(t.TempDir(), &keywordEmbedder{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Remember(context.Background(), "alice", "   "))
	assert.Equal(t, 0, s.Count("alice"))
}

func TestCorruptLogLineSkipped(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	emb := embedding.NewMock(8)

	s, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Remember(ctx, "alice", "first memory"))
	require.NoError(t, s.Remember(ctx, "alice", "second memory"))

	// Tack a broken line onto the log; the good records still load.
	log := newDocLog(dir)
	records, err := log.load("alice")
	require.NoError(t, err)
	require.Len(t, records, 2)

	appendRaw(t, log.path("alice"), "{not json\n")

	reopened, err := Open(dir, emb, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count("alice"))
}

func TestRerankFailureFallsBackToDistanceOrder(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), &keywordEmbedder{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Remember(ctx, "alice", "My cat is asleep"))
	require.NoError(t, s.Remember(ctx, "alice", "Tokyo in the rain"))

	// No reranker configured; asking for one must not break retrieval.
	got, err := s.Query(ctx, "alice", "cat", 1, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "cat")
}

func TestLongMemoriesAreChunked(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir(), embedding.NewMock(8), nil, nil)
	require.NoError(t, err)

	long := strings.Repeat("The user talked about the trip for a while. ", 60)
	require.NoError(t, s.Remember(ctx, "alice", long))
	assert.Greater(t, s.Count("alice"), 1)
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, chunkText("   "))
	assert.Equal(t, []string{"short note"}, chunkText("short note"))

	long := strings.Repeat("One more sentence about the plan. ", 60)
	chunks := chunkText(long)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), chunkMax+chunkOverlap+1)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func appendRaw(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line)
	require.NoError(t, err)
}
