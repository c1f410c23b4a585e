package chunker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSample = `package sample

// Greeter says hello.
type Greeter struct {
	Name string
}

func (g *Greeter) Greet() string {
	return "hello " + g.Name
}

func Add(a, b int) int {
	return a + b
}
`

func TestCodeChunkGoEntities(t *testing.T) {
	c := NewCodeChunker([]EntityExtractor{GoExtractor{}}, countingCounter{}, 10000)
	chunks, err := c.Chunk(context.Background(), goSample, "sample.go", ".go", "go")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	titles := map[string]Chunk{}
	for _, c := range chunks {
		titles[c.ChunkTitle] = c
	}

	greeter, ok := titles["Greeter"]
	require.True(t, ok)
	assert.Equal(t, "struct", greeter.EntityType)

	method, ok := titles["Greeter.Greet"]
	require.True(t, ok)
	assert.Equal(t, "function", method.EntityType)
	assert.Contains(t, method.Content, "func (g *Greeter) Greet()")

	add, ok := titles["Add"]
	require.True(t, ok)
	assert.Contains(t, add.Content, "return a + b")

	for i, c := range chunks {
		_ = i
		assert.Equal(t, "code", c.SourceType)
	}
}

func TestCodeChunkFallsBackToModuleLevel(t *testing.T) {
	c := NewCodeChunker([]EntityExtractor{GoExtractor{}}, countingCounter{}, 10000)
	chunks, err := c.Chunk(context.Background(), "plain text, not really go", "notes.txt", ".txt", "")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "module", chunks[0].EntityType)
	assert.Equal(t, "notes.txt", chunks[0].ChunkTitle)
}

func TestCodeChunkEmptyFileProducesNoChunks(t *testing.T) {
	c := NewCodeChunker([]EntityExtractor{GoExtractor{}}, countingCounter{}, 10000)
	chunks, err := c.Chunk(context.Background(), "   \n  ", "empty.go", ".go", "go")
	require.NoError(t, err)
	assert.Len(t, chunks, 0)
}

func TestCodeChunkOversizeEntitySplitsOnLines(t *testing.T) {
	body := "func Big() {\n"
	for i := 0; i < 40; i++ {
		body += "    doSomething()\n"
	}
	body += "}\n"
	content := "package sample\n\n" + body

	c := NewCodeChunker([]EntityExtractor{GoExtractor{}}, countingCounter{}, 150)
	chunks, err := c.Chunk(context.Background(), content, "big.go", ".go", "go")
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)
	for _, ch := range chunks {
		assert.Contains(t, ch.ChunkTitle, "Big_part")
	}
}
