// Package postgres implements vectorstore.Store against Postgres +
// pgvector, matching the persisted schema from the documented storage
// design: a single "docs" table (name configurable), a vector(N) column,
// and two stored functions (match_docs, match_docs_bm25) doing the
// cosine/BM25 ranking inside the database.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mimir-run/mimir/internal/vectorstore"
)

// movingPrefix mirrors vectorstore's stranded-row marker; kept as a local
// constant to avoid an import cycle with internal/fingerprint.
const movingPrefix = "__moving__"

const fetchBatchSize = 50
const orphanPageSize = 1000

// Store is a Postgres + pgvector backed vectorstore.Store.
type Store struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

// Config configures a Store connection.
type Config struct {
	DSN       string
	Table     string // defaults to "docs"
	Dimension int
	MaxConns  int32
}

// New connects to Postgres and prepares a Store. It does not create the
// schema: the docs table and its stored functions are expected to be
// provisioned by migration, matching the persisted schema's contract.
func New(ctx context.Context, cfg Config) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = "docs"
	}

	pgxCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pgxCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: connect: %w", err)
	}

	return &Store{pool: pool, table: table, dimension: cfg.Dimension}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// VerifyConnection issues a trivial read against the configured table. A
// missing table is reported distinctly so the caller can log it as a
// warning rather than a fatal startup error.
func (s *Store) VerifyConnection(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", s.table))
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("postgres vectorstore: table %q missing: %w", s.table, err)
		}
		return fmt.Errorf("postgres vectorstore: verify connection: %w", err)
	}
	return nil
}

func (s *Store) FetchChunksByChecksums(ctx context.Context, checksums []string) (map[string][]vectorstore.ExistingChunkInfo, error) {
	out := make(map[string][]vectorstore.ExistingChunkInfo)

	for start := 0; start < len(checksums); start += fetchBatchSize {
		end := start + fetchBatchSize
		if end > len(checksums) {
			end = len(checksums)
		}
		batch := checksums[start:end]

		rows, err := s.pool.Query(ctx, fmt.Sprintf(
			`SELECT id, filepath, chunk_id, source_type, github_url, checksum FROM %s WHERE checksum = ANY($1)`,
			s.table,
		), batch)
		if err != nil {
			return nil, fmt.Errorf("postgres vectorstore: fetch chunks by checksums: %w", err)
		}

		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var info vectorstore.ExistingChunkInfo
				if err := rows.Scan(&info.ID, &info.FilePath, &info.ChunkID, &info.SourceType, &info.GithubURL, &info.Checksum); err != nil {
					return fmt.Errorf("postgres vectorstore: scan existing chunk: %w", err)
				}
				out[info.Checksum] = append(out[info.Checksum], info)
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (s *Store) UpsertChunks(ctx context.Context, rows []vectorstore.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres vectorstore: begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
INSERT INTO %s (filepath, chunk_id, chunk_title, content, contextual_text, embedding, checksum,
	source_type, entity_type, start_line, end_line, github_url, docs_url, final_url, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, NOW())
ON CONFLICT (filepath, chunk_id) DO UPDATE SET
	chunk_title = EXCLUDED.chunk_title,
	content = EXCLUDED.content,
	contextual_text = EXCLUDED.contextual_text,
	embedding = EXCLUDED.embedding,
	checksum = EXCLUDED.checksum,
	source_type = EXCLUDED.source_type,
	entity_type = EXCLUDED.entity_type,
	start_line = EXCLUDED.start_line,
	end_line = EXCLUDED.end_line,
	github_url = EXCLUDED.github_url,
	docs_url = EXCLUDED.docs_url,
	final_url = EXCLUDED.final_url,
	updated_at = NOW()`, s.table)

	for _, row := range rows {
		if _, err := tx.Exec(ctx, query,
			row.FilePath, row.ChunkID, row.ChunkTitle, row.Content, row.ContextualText,
			pgvector.NewVector(row.Embedding), row.Checksum, row.SourceType, row.EntityType,
			row.StartLine, row.EndLine, row.GithubURL, row.DocsURL, row.FinalURL,
		); err != nil {
			return fmt.Errorf("postgres vectorstore: upsert chunk %s#%d: %w", row.FilePath, row.ChunkID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres vectorstore: commit upsert tx: %w", err)
	}
	return nil
}

// MoveChunksAtomic performs the two-phase move documented for the
// (filepath, chunk_id) unique constraint: stage every row to a
// "__moving__"-prefixed filepath inside one transaction, then attempt to
// land each at its final location; a row whose target is already occupied
// by a different id is left at its staged location rather than aborting
// the whole batch.
func (s *Store) MoveChunksAtomic(ctx context.Context, moves []vectorstore.Move) error {
	if len(moves) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres vectorstore: begin move tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, mv := range moves {
		stagedPath := fmt.Sprintf("%s%s", movingPrefix, mv.NewFilePath)
		stagedChunkID := mv.NewChunkID*1000000 + i // collision-free staging slot within this tx
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET filepath = $1, chunk_id = $2 WHERE id = $3`, s.table),
			stagedPath, stagedChunkID, mv.ID,
		); err != nil {
			return fmt.Errorf("postgres vectorstore: stage move for id %d: %w", mv.ID, err)
		}
	}

	for _, mv := range moves {
		var occupantID int64
		err := tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT id FROM %s WHERE filepath = $1 AND chunk_id = $2`, s.table),
			mv.NewFilePath, mv.NewChunkID,
		).Scan(&occupantID)

		if err == nil && occupantID != mv.ID {
			// Target occupied by a different row: leave this one staged
			// (stranded) rather than aborting the batch.
			continue
		}
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("postgres vectorstore: check move target for id %d: %w", mv.ID, err)
		}

		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET filepath = $1, chunk_id = $2, source_type = $3, github_url = $4, updated_at = NOW() WHERE id = $5`, s.table),
			mv.NewFilePath, mv.NewChunkID, mv.NewSourceType, mv.NewGithubURL, mv.ID,
		); err != nil {
			return fmt.Errorf("postgres vectorstore: land move for id %d: %w", mv.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres vectorstore: commit move tx: %w", err)
	}
	return nil
}

func (s *Store) DeleteChunksByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table), ids)
	if err != nil {
		return fmt.Errorf("postgres vectorstore: delete chunks: %w", err)
	}
	return nil
}

// FindOrphanedChunkIds scans repoBaseUrls' scope in pages of
// orphanPageSize, keyed on id for stable pagination. Returns no rows (and
// issues no query) when repoBaseUrls is empty, matching the documented
// safety guard against an accidental full-table delete.
func (s *Store) FindOrphanedChunkIds(ctx context.Context, activeChecksums map[string]bool, repoBaseUrls []string, activeGithubUrls map[string]bool) ([]int64, error) {
	if len(repoBaseUrls) == 0 {
		return nil, nil
	}

	likeClauses := make([]string, len(repoBaseUrls))
	args := make([]interface{}, 0, len(repoBaseUrls)+1)
	for i, base := range repoBaseUrls {
		likeClauses[i] = fmt.Sprintf("github_url LIKE $%d", i+1)
		args = append(args, base+"%")
	}
	scopeClause := strings.Join(likeClauses, " OR ")

	var orphans []int64
	var lastID int64
	for {
		pageArgs := append(append([]interface{}{}, args...), lastID, orphanPageSize)
		query := fmt.Sprintf(
			`SELECT id, checksum, github_url FROM %s WHERE (%s) AND id > $%d ORDER BY id LIMIT $%d`,
			s.table, scopeClause, len(args)+1, len(args)+2,
		)
		rows, err := s.pool.Query(ctx, query, pageArgs...)
		if err != nil {
			return nil, fmt.Errorf("postgres vectorstore: scan for orphans: %w", err)
		}

		count := 0
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var id int64
				var checksum, githubURL string
				if err := rows.Scan(&id, &checksum, &githubURL); err != nil {
					return fmt.Errorf("postgres vectorstore: scan orphan candidate: %w", err)
				}
				count++
				lastID = id
				if !activeGithubUrls[githubURL] || !activeChecksums[checksum] {
					orphans = append(orphans, id)
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}
		if count < orphanPageSize {
			break
		}
	}

	return orphans, nil
}

// FindStrandedChunkIds returns rows left at a "__moving__"-prefixed
// filepath by a move that could not land, scoped to repoIdentifiers
// ("owner/repo" substrings of github_url) when given.
func (s *Store) FindStrandedChunkIds(ctx context.Context, activeChecksums map[string]bool, repoIdentifiers []string) ([]int64, error) {
	args := []interface{}{movingPrefix + "%"}
	query := fmt.Sprintf(`SELECT id, checksum FROM %s WHERE filepath LIKE $1`, s.table)

	if len(repoIdentifiers) > 0 {
		clauses := make([]string, len(repoIdentifiers))
		for i, id := range repoIdentifiers {
			clauses[i] = fmt.Sprintf("github_url LIKE $%d", i+2)
			args = append(args, "%"+id+"%")
		}
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: scan for stranded chunks: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		var checksum string
		if err := rows.Scan(&id, &checksum); err != nil {
			return nil, fmt.Errorf("postgres vectorstore: scan stranded candidate: %w", err)
		}
		if !activeChecksums[checksum] {
			out = append(out, id)
		}
	}
	return out, rows.Err()
}

// MatchDocuments calls the match_docs(embedding, k, threshold) stored
// function, which ranks by cosine distance (<=>) and returns
// 1 - distance as similarity.
func (s *Store) MatchDocuments(ctx context.Context, embedding []float32, k int, threshold float64) ([]vectorstore.SearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filepath, chunk_id, chunk_title, content, contextual_text, checksum, source_type,
			entity_type, start_line, end_line, github_url, docs_url, final_url, similarity
		FROM match_docs($1, $2, $3)`,
		pgvector.NewVector(embedding), k, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: match_docs: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.SearchResult
	for rows.Next() {
		var r vectorstore.SearchResult
		if err := rows.Scan(&r.Row.ID, &r.Row.FilePath, &r.Row.ChunkID, &r.Row.ChunkTitle, &r.Row.Content,
			&r.Row.ContextualText, &r.Row.Checksum, &r.Row.SourceType, &r.Row.EntityType,
			&r.Row.StartLine, &r.Row.EndLine, &r.Row.GithubURL, &r.Row.DocsURL, &r.Row.FinalURL, &r.Similarity); err != nil {
			return nil, fmt.Errorf("postgres vectorstore: scan match_docs row: %w", err)
		}
		r.HasVector = true
		r.VectorPos = len(out)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SearchDocumentsFullText calls the match_docs_bm25(query, k) stored
// function, which runs websearch_to_tsquery against the generated
// search_tokens tsvector and ranks with ts_rank_cd.
func (s *Store) SearchDocumentsFullText(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filepath, chunk_id, chunk_title, content, contextual_text, checksum, source_type,
			entity_type, start_line, end_line, github_url, docs_url, final_url, rank
		FROM match_docs_bm25($1, $2)`,
		query, k,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: match_docs_bm25: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.SearchResult
	for rows.Next() {
		var r vectorstore.SearchResult
		if err := rows.Scan(&r.Row.ID, &r.Row.FilePath, &r.Row.ChunkID, &r.Row.ChunkTitle, &r.Row.Content,
			&r.Row.ContextualText, &r.Row.Checksum, &r.Row.SourceType, &r.Row.EntityType,
			&r.Row.StartLine, &r.Row.EndLine, &r.Row.GithubURL, &r.Row.DocsURL, &r.Row.FinalURL, &r.BM25Rank); err != nil {
			return nil, fmt.Errorf("postgres vectorstore: scan match_docs_bm25 row: %w", err)
		}
		r.HasBM25 = true
		r.BM25Pos = len(out)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Schema returns the DDL a deployment runs once via migration: the docs
// table and its two stored functions. Kept as a string constant (rather
// than executed automatically) since schema changes on a shared table
// belong to a migration tool, not an app-managed ensureSchema call.
func Schema(table string, dimension int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
	id bigserial PRIMARY KEY,
	content text NOT NULL,
	contextual_text text NOT NULL DEFAULT '',
	embedding vector(%[2]d),
	filepath text NOT NULL,
	chunk_id int NOT NULL,
	chunk_title text NOT NULL DEFAULT '',
	checksum text NOT NULL,
	github_url text NOT NULL DEFAULT '',
	docs_url text NOT NULL DEFAULT '',
	final_url text NOT NULL DEFAULT '',
	source_type text NOT NULL DEFAULT 'mdx',
	entity_type text NOT NULL DEFAULT '',
	start_line int NOT NULL DEFAULT 0,
	end_line int NOT NULL DEFAULT 0,
	search_tokens tsvector GENERATED ALWAYS AS (
		setweight(to_tsvector('english', coalesce(chunk_title, '')), 'A') ||
		setweight(to_tsvector('english', coalesce(content, '')), 'B') ||
		setweight(to_tsvector('english', coalesce(contextual_text, '')), 'C')
	) STORED,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	UNIQUE (filepath, chunk_id)
);

CREATE INDEX IF NOT EXISTS %[1]s_search_tokens_idx ON %[1]s USING GIN (search_tokens);

CREATE OR REPLACE FUNCTION match_docs(query_embedding vector(%[2]d), match_count int, match_threshold float)
RETURNS TABLE (
	id bigint, filepath text, chunk_id int, chunk_title text, content text, contextual_text text,
	checksum text, source_type text, entity_type text, start_line int, end_line int,
	github_url text, docs_url text, final_url text, similarity float
) LANGUAGE sql STABLE AS $$
	SELECT id, filepath, chunk_id, chunk_title, content, contextual_text, checksum, source_type,
		entity_type, start_line, end_line, github_url, docs_url, final_url,
		1 - (embedding <=> query_embedding) AS similarity
	FROM %[1]s
	WHERE embedding IS NOT NULL AND 1 - (embedding <=> query_embedding) >= match_threshold
	ORDER BY embedding <=> query_embedding
	LIMIT match_count;
$$;

CREATE OR REPLACE FUNCTION match_docs_bm25(search_query text, match_count int)
RETURNS TABLE (
	id bigint, filepath text, chunk_id int, chunk_title text, content text, contextual_text text,
	checksum text, source_type text, entity_type text, start_line int, end_line int,
	github_url text, docs_url text, final_url text, rank float
) LANGUAGE sql STABLE AS $$
	SELECT id, filepath, chunk_id, chunk_title, content, contextual_text, checksum, source_type,
		entity_type, start_line, end_line, github_url, docs_url, final_url,
		ts_rank_cd(search_tokens, websearch_to_tsquery('english', search_query)) AS rank
	FROM %[1]s
	WHERE search_tokens @@ websearch_to_tsquery('english', search_query)
	ORDER BY rank DESC
	LIMIT match_count;
$$;
`, table, dimension)
}

var _ vectorstore.Store = (*Store)(nil)
