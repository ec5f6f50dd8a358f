package db

import (
	"context"
	"fmt"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

// UpsertFAQ inserts a FAQ entry or updates the one with the same French
// question. View and helpful counters survive re-seeding.
func (db *DB) UpsertFAQ(ctx context.Context, f *schema.FAQ) error {
	return db.upsertFAQ(ctx, db.conn, f)
}

func (db *DB) upsertFAQ(ctx context.Context, ex execer, f *schema.FAQ) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid faq: %w", err)
	}

	now := db.now()
	query := `
	INSERT INTO faq (
		question_fr, question_ar, answer_fr, answer_ar, category, tags,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(question_fr) DO UPDATE SET
		question_ar = excluded.question_ar,
		answer_fr = excluded.answer_fr,
		answer_ar = excluded.answer_ar,
		category = excluded.category,
		tags = excluded.tags,
		updated_at = excluded.updated_at
	`
	_, err := ex.ExecContext(ctx, query,
		f.QuestionFR, f.QuestionAR, f.AnswerFR, f.AnswerAR, f.Category, f.Tags,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert faq %q: %w", f.QuestionFR, err)
	}
	return nil
}

// SearchFAQ returns up to limit entries whose localized question or answer
// contains term, most viewed first.
func (db *DB) SearchFAQ(ctx context.Context, lang schema.Lang, term string, limit int) ([]schema.LocalizedFAQ, error) {
	cols, err := columnsFor(lang)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
	SELECT %[1]s, %[2]s, COALESCE(category, ''), views
	FROM faq
	WHERE %[1]s LIKE ? OR %[2]s LIKE ?
	ORDER BY views DESC, id ASC
	LIMIT ?`, cols.question, cols.answer)

	pattern := "%" + term + "%"
	rows, err := db.conn.QueryContext(ctx, query, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search faq: %w", err)
	}
	defer rows.Close()

	results := []schema.LocalizedFAQ{}
	for rows.Next() {
		var f schema.LocalizedFAQ
		if err := rows.Scan(&f.Question, &f.Answer, &f.Category, &f.Views); err != nil {
			return nil, fmt.Errorf("failed to scan faq: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}

// IncrementFAQViews bumps the view counter of the entries with the given
// localized questions.
func (db *DB) IncrementFAQViews(ctx context.Context, lang schema.Lang, questions []string) error {
	cols, err := columnsFor(lang)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE faq SET views = views + 1 WHERE %s = ?", cols.question)
	for _, q := range questions {
		if _, err := db.conn.ExecContext(ctx, query, q); err != nil {
			return fmt.Errorf("failed to update faq views: %w", err)
		}
	}
	return nil
}

// IncrementFAQHelpful bumps the helpful counter of the entry whose localized
// question equals question. It reports whether a row was updated.
func (db *DB) IncrementFAQHelpful(ctx context.Context, lang schema.Lang, question string) (bool, error) {
	cols, err := columnsFor(lang)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("UPDATE faq SET helpful = helpful + 1 WHERE %s = ?", cols.question)
	res, err := db.conn.ExecContext(ctx, query, question)
	if err != nil {
		return false, fmt.Errorf("failed to update faq helpful: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// FAQSuggestions returns up to limit localized questions, most viewed first.
func (db *DB) FAQSuggestions(ctx context.Context, lang schema.Lang, category string, limit int) ([]string, error) {
	cols, err := columnsFor(lang)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM faq WHERE (? = '' OR category = ?) ORDER BY views DESC, id ASC LIMIT ?", cols.question)
	rows, err := db.conn.QueryContext(ctx, query, category, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer rows.Close()

	suggestions := []string{}
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		suggestions = append(suggestions, q)
	}
	return suggestions, rows.Err()
}
