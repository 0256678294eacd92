package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MemoryEntry is a row from the translation_memory table.
type MemoryEntry struct {
	ID          string
	SourceText  string
	TargetLang  string
	FinalText   string
	ServiceUsed string
	UsageCount  int
	Invalidated bool
	LastUsed    time.Time
}

// CacheStats summarises translation memory usage.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

// Memory adapts the store to the translator's cache interface, recording
// which backend produced each entry.
type Memory struct {
	store   *Store
	service string
}

func (s *Store) Memory(service string) *Memory {
	return &Memory{store: s, service: service}
}

func (m *Memory) Lookup(ctx context.Context, fragment, targetLang string) (string, bool, error) {
	return m.store.GetCachedTranslation(ctx, fragment, targetLang)
}

func (m *Memory) Remember(ctx context.Context, fragment, targetLang, translated string) error {
	return m.store.SaveToMemory(ctx, fragment, targetLang, translated, m.service)
}

func (s *Store) GetCachedTranslation(ctx context.Context, sourceText, targetLang string) (string, bool, error) {
	var id, finalText string
	var invalidated bool

	err := s.db.QueryRowContext(ctx,
		`SELECT id, final_text, invalidated FROM translation_memory WHERE source_text = ? AND target_lang = ?`,
		normalizeText(sourceText), normalizeLang(targetLang)).Scan(&id, &finalText, &invalidated)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memory SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
		time.Now(), id)

	return finalText, true, err
}

func (s *Store) SaveToMemory(ctx context.Context, sourceText, targetLang, finalText, serviceUsed string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_memory (id, source_text, target_lang, final_text, service_used, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		uuid.NewString(), normalizeText(sourceText), normalizeLang(targetLang), finalText, serviceUsed, now, now)
	return err
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE translation_memory SET invalidated = TRUE WHERE id = ?`, id)
}

// DeleteMemory permanently removes a translation memory entry by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM translation_memory WHERE id = ?`, id)
}

// ClearMemory removes all translation memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns translation memory entries ordered by most recently
// used. limit <= 0 returns everything.
func (s *Store) ListMemory(ctx context.Context, limit int) ([]MemoryEntry, error) {
	query := `SELECT id, source_text, target_lang, final_text, COALESCE(service_used, ''), usage_count, invalidated, last_used FROM translation_memory ORDER BY last_used DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.TargetLang, &e.FinalText, &e.ServiceUsed, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the translation memory.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM translation_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// execOne runs a statement that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
