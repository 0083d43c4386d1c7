// Copyright 2025 James Ross
package store

import (
	"context"
	"regexp"
	"strings"
)

const joinedCatalogCols = `c.id, c.path, c.kind, c.title, c.storage_id, c.size, c.parent_path,
	c.cached_handle_id, c.cached_handle_unique_id, c.content_fingerprint, c.last_seen, c.is_deleted, c.updated_at`

// termPattern matches alphanumeric and Cyrillic runs, the tokenizer unit
// for full-text queries.
var termPattern = regexp.MustCompile(`[0-9A-Za-zА-Яа-яЁё]+`)

const maxSearchTerms = 8

// SearchCatalog runs the full-text query over (title, path), falling back
// to a case-insensitive substring scan across both columns if the FTS5
// table errors (schema skew or corruption). Ordering: relevance, then
// folders before files, then title.
func (s *Store) SearchCatalog(ctx context.Context, query string, limit, offset int) ([]*CatalogItem, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery != "" {
		items, err := s.searchCatalogFTS(ctx, ftsQuery, limit, offset)
		if err == nil {
			return items, nil
		}
	}
	return s.searchCatalogLike(ctx, query, limit, offset)
}

func buildFTSQuery(query string) string {
	terms := termPattern.FindAllString(query, -1)
	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, t+"*")
	}
	return strings.Join(parts, " AND ")
}

func (s *Store) searchCatalogFTS(ctx context.Context, ftsQuery string, limit, offset int) ([]*CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+joinedCatalogCols+`
		FROM catalog_items_fts f
		JOIN catalog_items c ON c.id = f.rowid
		WHERE catalog_items_fts MATCH ? AND c.is_deleted = 0
		ORDER BY bm25(catalog_items_fts), CASE c.kind WHEN 'folder' THEN 0 ELSE 1 END, c.title ASC
		LIMIT ? OFFSET ?`, ftsQuery, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CatalogItem
	for rows.Next() {
		c, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) searchCatalogLike(ctx context.Context, query string, limit, offset int) ([]*CatalogItem, error) {
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+catalogCols+` FROM catalog_items
		WHERE is_deleted = 0 AND (title LIKE ? ESCAPE '\' OR path LIKE ? ESCAPE '\')
		ORDER BY CASE kind WHEN 'folder' THEN 0 ELSE 1 END, title ASC
		LIMIT ? OFFSET ?`, like, like, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*CatalogItem
	for rows.Next() {
		c, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
