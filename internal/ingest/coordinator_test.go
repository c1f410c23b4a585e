package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-run/mimir/internal/chunker"
	"github.com/mimir-run/mimir/internal/repoconfig"
	"github.com/mimir-run/mimir/internal/source"
	"github.com/mimir-run/mimir/internal/vectorstore"
)

func newTestPipeline() Pipeline {
	return Pipeline{
		Fetcher: &fakeFetcher{files: []source.File{
			{Path: "README.md", Content: "# Title\n\nBody.", SourceURL: "https://github.com/o/r/blob/main/README.md"},
		}},
		Chunker: &fakeChunker{chunks: []chunker.Chunk{
			{ChunkID: 0, ChunkTitle: "Title", Content: "# Title\n\nBody.", SourceType: "doc"},
		}},
		Store:      vectorstore.NewMemoryStore(),
		ContextGen: fakeContextGen{},
		Embedder:   fakeEmbedder{},
		Counter:    fakeCounter{},
	}
}

func TestRunNowExecutesSynchronously(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCoordinator(ctx, newTestPipeline(), []repoconfig.RepoConfig{{URL: "https://github.com/o/r"}}, nil)

	result, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesFetched)
	assert.False(t, c.IngestionBusy())
}

func TestRunNowReturnsErrBusyWhileARunIsInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCoordinator(ctx, newTestPipeline(), []repoconfig.RepoConfig{{URL: "https://github.com/o/r"}}, nil)
	c.busy.Store(true)

	_, err := c.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestTriggerAsyncAcceptsWhenIdleAndRunsInBackground(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCoordinator(ctx, newTestPipeline(), []repoconfig.RepoConfig{{URL: "https://github.com/o/r"}}, nil)

	accepted := c.TriggerAsync()
	assert.True(t, accepted)

	require.Eventually(t, func() bool {
		return !c.IngestionBusy()
	}, time.Second, 5*time.Millisecond)
}

func TestTriggerAsyncRejectsWhenAlreadyBusy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewCoordinator(ctx, newTestPipeline(), []repoconfig.RepoConfig{{URL: "https://github.com/o/r"}}, nil)
	c.busy.Store(true)

	assert.False(t, c.TriggerAsync())
}
