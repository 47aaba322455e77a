// Package knowledge provides a local FTS5-based index over learning patterns,
// so agents can query past outcomes ("deploy failures", "sql migration") in
// natural language through the search_patterns tool.
//
// The pattern database is kept separate from the main state.sqlite because
// the state repository uses a full-replace save pattern (DELETE + INSERT all
// rows), which would destroy the FTS5 index on every write. Patterns are
// immutable once extracted, so the index only ever appends.
package knowledge

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jaakkos/taskmill/internal/app"
	"github.com/jaakkos/taskmill/internal/domain"
)

const patternSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS patterns USING fts5(
	pattern_id,
	category,
	template_name,
	skills,
	summary,
	tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS pattern_meta (
	pattern_id TEXT PRIMARY KEY,
	task_id INTEGER NOT NULL,
	success INTEGER NOT NULL,
	confidence REAL NOT NULL,
	indexed_at TEXT NOT NULL
);
`

// Store wraps a separate SQLite database with an FTS5 table for querying
// learning patterns. It implements app.PatternIndexer and app.PatternSearcher.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewStore opens (or creates) a pattern database at the given path.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create pattern db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open pattern db: %w", err)
	}

	if _, err := db.Exec(patternSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pattern schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// IndexPattern inserts a pattern into the FTS5 index. Re-indexing the same
// pattern ID replaces the previous row, so the call is idempotent.
func (s *Store) IndexPattern(p domain.LearningPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM patterns WHERE pattern_id = ?`, p.ID); err != nil {
		return fmt.Errorf("delete old pattern: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO patterns (pattern_id, category, template_name, skills, summary) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Category, p.TemplateName, strings.Join(p.SkillsUsed, " "), patternSummary(p),
	); err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO pattern_meta (pattern_id, task_id, success, confidence, indexed_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.TaskID, boolFlag(p.Success), p.Confidence, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("upsert pattern_meta: %w", err)
	}

	return tx.Commit()
}

// Reindex brings the index up to date with the authoritative pattern list in
// engine state, skipping IDs already present. Returns the number indexed.
func (s *Store) Reindex(patterns []domain.LearningPattern) (int, error) {
	existing, err := s.indexedIDs()
	if err != nil {
		return 0, err
	}
	indexed := 0
	for _, p := range patterns {
		if existing[p.ID] {
			continue
		}
		if err := s.IndexPattern(p); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}

// Search queries the index using FTS5 MATCH syntax and returns up to limit
// hits sorted by relevance. It implements app.PatternSearcher.
func (s *Store) Search(query string, limit int) ([]app.PatternHit, error) {
	if limit <= 0 {
		limit = 10
	}
	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT p.pattern_id, m.task_id, p.category,
		       snippet(patterns, 4, '>>>', '<<<', '...', 24) AS snip, rank
		FROM patterns p
		JOIN pattern_meta m ON m.pattern_id = p.pattern_id
		WHERE patterns MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []app.PatternHit
	for rows.Next() {
		var h app.PatternHit
		if err := rows.Scan(&h.PatternID, &h.TaskID, &h.Category, &h.Snippet, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Stats returns the indexed pattern count and the success count.
func (s *Store) Stats() (total, successes int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM pattern_meta`).Scan(&total, &successes)
	return total, successes, err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) indexedIDs() (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT pattern_id FROM pattern_meta`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// patternSummary renders the searchable text body for a pattern: outcome,
// category, template, and skills in one line.
func patternSummary(p domain.LearningPattern) string {
	outcome := "failed"
	if p.Success {
		outcome = "succeeded"
	}
	parts := []string{fmt.Sprintf("task %d %s", p.TaskID, outcome)}
	if p.Category != "" {
		parts = append(parts, "category "+p.Category)
	}
	if p.TemplateName != "" {
		parts = append(parts, "template "+p.TemplateName)
	}
	if len(p.SkillsUsed) > 0 {
		parts = append(parts, "skills "+strings.Join(p.SkillsUsed, " "))
	}
	if p.Duration > 0 {
		parts = append(parts, fmt.Sprintf("duration %s", p.Duration.Round(time.Minute)))
	}
	return strings.Join(parts, ", ")
}

// sanitizeFTSQuery converts a natural language query into a safe FTS5 query.
// It tokenizes the input and joins tokens with implicit AND logic.
func sanitizeFTSQuery(q string) string {
	replacer := strings.NewReplacer(
		"\"", "",
		"'", "",
		"(", "",
		")", "",
		"*", "",
		":", "",
		"^", "",
		"{", "",
		"}", "",
	)
	cleaned := replacer.Replace(q)

	words := strings.Fields(cleaned)
	var tokens []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" && w != "AND" && w != "OR" && w != "NOT" && w != "NEAR" {
			tokens = append(tokens, w)
		}
	}
	if len(tokens) == 0 {
		return ""
	}
	return strings.Join(tokens, " ")
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}
