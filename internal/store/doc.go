// Copyright 2025 James Ross
package store

// Build with -tags sqlite_fts5 (or a mattn/go-sqlite3 build that links
// SQLite's FTS5 extension) so catalog_items_fts is available; SearchCatalog
// degrades to the LIKE fallback automatically if it is not.
