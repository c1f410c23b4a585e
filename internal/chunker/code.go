package chunker

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// CodeChunker splits a parsed source file into one chunk per entity,
// falling back to a single module-level chunk when the file has none, and
// sub-splitting any entity that exceeds the token cap on line boundaries.
type CodeChunker struct {
	extractors []EntityExtractor
	counter    TokenCounter
	tokenCap   int
}

// NewCodeChunker builds a code chunker over the given language extractors,
// tried in order; the first one whose Supports(ext) returns true handles a
// file. counter/tokenCap bound per-chunk size exactly as the Markdown path.
func NewCodeChunker(extractors []EntityExtractor, counter TokenCounter, tokenCap int) *CodeChunker {
	if tokenCap <= 0 {
		tokenCap = DefaultTokenCap
	}
	return &CodeChunker{extractors: extractors, counter: counter, tokenCap: tokenCap}
}

// Chunk extracts entities from content (a file at filePath, language tagged
// by language) and emits one chunk per entity, splitting oversize entities
// and falling back to a single whole-file chunk when extraction finds
// nothing but the file is non-empty.
func (c *CodeChunker) Chunk(ctx context.Context, content, filePath, ext, language string) ([]Chunk, error) {
	var extractor EntityExtractor
	for _, e := range c.extractors {
		if e.Supports(ext) {
			extractor = e
			break
		}
	}

	var entities []Entity
	if extractor != nil {
		found, err := extractor.Extract(ctx, content, filePath)
		if err != nil {
			return nil, err
		}
		entities = found
	}

	seq := &chunkIDSeq{}
	var chunks []Chunk

	if len(entities) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil, nil
		}
		lines := strings.Split(content, "\n")
		return c.emitEntity(seq, Entity{
			QualifiedName: filePath,
			EntityType:    "module",
			StartLine:     1,
			EndLine:       len(lines),
		}, content, language), nil
	}

	lines := strings.Split(content, "\n")
	for _, e := range entities {
		if e.StartLine < 1 || e.EndLine > len(lines) || e.StartLine > e.EndLine {
			continue
		}
		entityContent := strings.Join(lines[e.StartLine-1:e.EndLine], "\n")
		chunks = append(chunks, c.emitEntity(seq, e, entityContent, language)...)
	}
	return chunks, nil
}

// emitEntity turns one entity (with its exact source lines already sliced
// into content) into one or more Chunks, sub-splitting on line boundaries
// when content exceeds the token cap.
func (c *CodeChunker) emitEntity(seq *chunkIDSeq, e Entity, content string, language string) []Chunk {
	title := e.QualifiedName
	if title == "" {
		title = e.Name
	}

	if c.counter.Count(content) <= c.tokenCap {
		return []Chunk{{
			ChunkID:    seq.take(),
			ChunkTitle: title,
			Content:    content,
			SourceType: "code",
			EntityType: e.EntityType,
			Language:   language,
			StartLine:  e.StartLine,
			EndLine:    e.EndLine,
		}}
	}

	lines := strings.Split(content, "\n")
	var boundaries []int
	offset := 0
	for i, l := range lines {
		offset += len(l) + 1
		if i < len(lines)-1 {
			boundaries = append(boundaries, offset)
		}
	}
	parts := splitOnTokenCap(content, boundaries, c.tokenCap, c.counter)

	var out []Chunk
	lineCursor := e.StartLine
	for i, part := range parts {
		partLines := strings.Count(part, "\n")
		if !strings.HasSuffix(part, "\n") {
			partLines++
		}
		startLine := lineCursor
		endLine := startLine + partLines - 1
		lineCursor = endLine + 1

		out = append(out, Chunk{
			ChunkID:    seq.take(),
			ChunkTitle: partSuffix(title, i),
			Content:    part,
			SourceType: "code",
			EntityType: e.EntityType,
			Language:   language,
			StartLine:  startLine,
			EndLine:    endLine,
		})
	}
	return out
}

// GoExtractor extracts top-level function/method declarations and named
// struct types from a Go source file via go/ast, mirroring the teacher's
// AST-based Go chunker but surfacing the uniform Entity shape instead of
// building chunks directly.
type GoExtractor struct{}

func (GoExtractor) Supports(ext string) bool { return ext == ".go" }

func (GoExtractor) Extract(ctx context.Context, content, filePath string) ([]Entity, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, content, parser.ParseComments)
	if err != nil {
		// A single file's parse failure degrades to the generic fallback
		// (zero entities -> one module-level chunk); it is not fatal to
		// the run.
		return nil, nil
	}

	var entities []Entity
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			start := fset.Position(d.Pos())
			end := fset.Position(d.End())
			recv := receiverName(d)
			qualified := d.Name.Name
			if recv != "" {
				qualified = recv + "." + d.Name.Name
			}
			entities = append(entities, Entity{
				Name:          d.Name.Name,
				QualifiedName: qualified,
				EntityType:    "function",
				StartLine:     start.Line,
				EndLine:       end.Line,
				Docstring:     d.Doc.Text(),
				ParentContext: recv,
			})
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				entityType := "type"
				switch ts.Type.(type) {
				case *ast.StructType:
					entityType = "struct"
				case *ast.InterfaceType:
					entityType = "interface"
				}
				start := fset.Position(d.Pos())
				end := fset.Position(ts.End())
				entities = append(entities, Entity{
					Name:          ts.Name.Name,
					QualifiedName: ts.Name.Name,
					EntityType:    entityType,
					StartLine:     start.Line,
					EndLine:       end.Line,
					Docstring:     d.Doc.Text(),
				})
			}
		}
	}
	return entities, nil
}

func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	switch t := fn.Recv.List[0].Type.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}
