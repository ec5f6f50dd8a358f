package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/moussadar/moussadar/internal/portal/schema"
)

// localizedColumns maps each supported language onto its fixed column names.
// Queries only ever interpolate values from this table.
var localizedColumns = map[schema.Lang]struct {
	title, description, question, answer string
}{
	schema.LangFR: {"title_fr", "description_fr", "question_fr", "answer_fr"},
	schema.LangAR: {"title_ar", "description_ar", "question_ar", "answer_ar"},
}

func columnsFor(lang schema.Lang) (struct{ title, description, question, answer string }, error) {
	cols, ok := localizedColumns[lang]
	if !ok {
		return cols, fmt.Errorf("%w: %q", schema.ErrUnsupportedLang, lang)
	}
	return cols, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CatalogFilter narrows a catalogue listing. Zero values mean "no filter".
type CatalogFilter struct {
	Lang        schema.Lang
	Category    string
	Difficulty  string
	Search      string
	OfflineOnly bool
}

func (f CatalogFilter) lang() schema.Lang {
	if f.Lang == "" {
		return schema.DefaultLang
	}
	return f.Lang
}

// appendFilters adds the WHERE clauses shared by the catalogue listings.
// Columns not present on a table must be left zero in f by the caller.
func appendFilters(query *strings.Builder, args []any, f CatalogFilter, title, description string) []any {
	if f.Category != "" {
		query.WriteString(" AND category = ?")
		args = append(args, f.Category)
	}
	if f.Difficulty != "" {
		query.WriteString(" AND difficulty = ?")
		args = append(args, f.Difficulty)
	}
	if f.OfflineOnly {
		query.WriteString(" AND offline = 1")
	}
	if f.Search != "" {
		fmt.Fprintf(query, " AND (%s LIKE ? OR %s LIKE ?)", title, description)
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	return args
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeList(ns sql.NullString) ([]string, error) {
	list := []string{}
	if !ns.Valid || ns.String == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(ns.String), &list); err != nil {
		return nil, fmt.Errorf("failed to decode JSON list: %w", err)
	}
	return list, nil
}

// ===== Services =====

// UpsertService inserts or replaces a service, keeping its created_at.
func (db *DB) UpsertService(ctx context.Context, s *schema.Service) error {
	return db.upsertService(ctx, db.conn, s)
}

func (db *DB) upsertService(ctx context.Context, ex execer, s *schema.Service) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid service: %w", err)
	}
	reqs, err := encodeList(s.Requirements)
	if err != nil {
		return fmt.Errorf("failed to marshal requirements: %w", err)
	}
	steps, err := encodeList(s.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	now := db.now()
	query := `
	INSERT INTO services (
		id, title_fr, title_ar, description_fr, description_ar, category, icon,
		estimated_time, difficulty, cost, offline, requirements, steps,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title_fr = excluded.title_fr,
		title_ar = excluded.title_ar,
		description_fr = excluded.description_fr,
		description_ar = excluded.description_ar,
		category = excluded.category,
		icon = excluded.icon,
		estimated_time = excluded.estimated_time,
		difficulty = excluded.difficulty,
		cost = excluded.cost,
		offline = excluded.offline,
		requirements = excluded.requirements,
		steps = excluded.steps,
		updated_at = excluded.updated_at
	`
	_, err = ex.ExecContext(ctx, query,
		s.ID, s.TitleFR, s.TitleAR, s.DescriptionFR, s.DescriptionAR, s.Category, s.Icon,
		s.EstimatedTime, s.Difficulty, s.Cost, s.Offline, reqs, steps,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert service %s: %w", s.ID, err)
	}
	return nil
}

const serviceColumns = `id, %s, COALESCE(%s, ''), category, COALESCE(icon, ''),
	COALESCE(estimated_time, ''), COALESCE(difficulty, ''), COALESCE(cost, ''),
	offline, requirements, steps`

func scanService(sc interface{ Scan(...any) error }) (*schema.LocalizedService, error) {
	var (
		s           schema.LocalizedService
		reqs, steps sql.NullString
		err         error
	)
	if err := sc.Scan(&s.ID, &s.Title, &s.Description, &s.Category, &s.Icon,
		&s.EstimatedTime, &s.Difficulty, &s.Cost, &s.Offline, &reqs, &steps); err != nil {
		return nil, err
	}
	if s.Requirements, err = decodeList(reqs); err != nil {
		return nil, err
	}
	if s.Steps, err = decodeList(steps); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListServices returns services matching f, ordered by French title.
func (db *DB) ListServices(ctx context.Context, f CatalogFilter) ([]*schema.LocalizedService, error) {
	cols, err := columnsFor(f.lang())
	if err != nil {
		return nil, err
	}

	var query strings.Builder
	fmt.Fprintf(&query, "SELECT "+serviceColumns+" FROM services WHERE 1=1", cols.title, cols.description)
	f.Difficulty = ""
	args := appendFilters(&query, nil, f, cols.title, cols.description)
	query.WriteString(" ORDER BY title_fr")

	rows, err := db.conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	services := []*schema.LocalizedService{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate services: %w", err)
	}
	return services, nil
}

// GetService returns one service, or ErrNotFound.
func (db *DB) GetService(ctx context.Context, id string, lang schema.Lang) (*schema.LocalizedService, error) {
	cols, err := columnsFor(lang)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT "+serviceColumns+" FROM services WHERE id = ?", cols.title, cols.description)
	s, err := scanService(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service %s: %w", id, err)
	}
	return s, nil
}

// ServiceCategories lists distinct service categories with labels.
func (db *DB) ServiceCategories(ctx context.Context, lang schema.Lang) ([]schema.Category, error) {
	return db.categories(ctx, "SELECT DISTINCT category FROM services ORDER BY category", lang)
}

// ===== Documents =====

// UpsertDocument inserts or replaces a document, keeping its created_at.
func (db *DB) UpsertDocument(ctx context.Context, d *schema.Document) error {
	return db.upsertDocument(ctx, db.conn, d)
}

func (db *DB) upsertDocument(ctx context.Context, ex execer, d *schema.Document) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	reqs, err := encodeList(d.Requirements)
	if err != nil {
		return fmt.Errorf("failed to marshal requirements: %w", err)
	}

	now := db.now()
	query := `
	INSERT INTO documents (
		id, title_fr, title_ar, description_fr, description_ar, icon,
		processing_time, cost, offline, requirements, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title_fr = excluded.title_fr,
		title_ar = excluded.title_ar,
		description_fr = excluded.description_fr,
		description_ar = excluded.description_ar,
		icon = excluded.icon,
		processing_time = excluded.processing_time,
		cost = excluded.cost,
		offline = excluded.offline,
		requirements = excluded.requirements,
		updated_at = excluded.updated_at
	`
	_, err = ex.ExecContext(ctx, query,
		d.ID, d.TitleFR, d.TitleAR, d.DescriptionFR, d.DescriptionAR, d.Icon,
		d.ProcessingTime, d.Cost, d.Offline, reqs, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", d.ID, err)
	}
	return nil
}

const documentColumns = `id, %s, COALESCE(%s, ''), COALESCE(icon, ''),
	COALESCE(processing_time, ''), COALESCE(cost, ''), offline, requirements`

func scanDocument(sc interface{ Scan(...any) error }) (*schema.LocalizedDocument, error) {
	var (
		d    schema.LocalizedDocument
		reqs sql.NullString
		err  error
	)
	if err := sc.Scan(&d.ID, &d.Title, &d.Description, &d.Icon,
		&d.ProcessingTime, &d.Cost, &d.Offline, &reqs); err != nil {
		return nil, err
	}
	if d.Requirements, err = decodeList(reqs); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns documents matching f.Search, ordered by French title.
func (db *DB) ListDocuments(ctx context.Context, f CatalogFilter) ([]*schema.LocalizedDocument, error) {
	cols, err := columnsFor(f.lang())
	if err != nil {
		return nil, err
	}

	var query strings.Builder
	fmt.Fprintf(&query, "SELECT "+documentColumns+" FROM documents WHERE 1=1", cols.title, cols.description)
	args := appendFilters(&query, nil, CatalogFilter{Search: f.Search, OfflineOnly: f.OfflineOnly}, cols.title, cols.description)
	query.WriteString(" ORDER BY title_fr")

	rows, err := db.conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	documents := []*schema.LocalizedDocument{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return documents, nil
}

// GetDocument returns one document, or ErrNotFound.
func (db *DB) GetDocument(ctx context.Context, id string, lang schema.Lang) (*schema.LocalizedDocument, error) {
	cols, err := columnsFor(lang)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT "+documentColumns+" FROM documents WHERE id = ?", cols.title, cols.description)
	d, err := scanDocument(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return d, nil
}

// ===== Procedures =====

// UpsertProcedure inserts or replaces a procedure, keeping its created_at.
func (db *DB) UpsertProcedure(ctx context.Context, p *schema.Procedure) error {
	return db.upsertProcedure(ctx, db.conn, p)
}

func (db *DB) upsertProcedure(ctx context.Context, ex execer, p *schema.Procedure) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid procedure: %w", err)
	}
	steps, err := encodeList(p.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	reqs, err := encodeList(p.Requirements)
	if err != nil {
		return fmt.Errorf("failed to marshal requirements: %w", err)
	}

	now := db.now()
	query := `
	INSERT INTO procedures (
		id, title_fr, title_ar, description_fr, description_ar, category,
		difficulty, estimated_time, cost, offline, steps, requirements,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title_fr = excluded.title_fr,
		title_ar = excluded.title_ar,
		description_fr = excluded.description_fr,
		description_ar = excluded.description_ar,
		category = excluded.category,
		difficulty = excluded.difficulty,
		estimated_time = excluded.estimated_time,
		cost = excluded.cost,
		offline = excluded.offline,
		steps = excluded.steps,
		requirements = excluded.requirements,
		updated_at = excluded.updated_at
	`
	_, err = ex.ExecContext(ctx, query,
		p.ID, p.TitleFR, p.TitleAR, p.DescriptionFR, p.DescriptionAR, p.Category,
		p.Difficulty, p.EstimatedTime, p.Cost, p.Offline, steps, reqs,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert procedure %s: %w", p.ID, err)
	}
	return nil
}

const procedureColumns = `id, %s, COALESCE(%s, ''), category, COALESCE(difficulty, ''),
	COALESCE(estimated_time, ''), COALESCE(cost, ''), offline, steps, requirements`

func scanProcedure(sc interface{ Scan(...any) error }) (*schema.LocalizedProcedure, error) {
	var (
		p           schema.LocalizedProcedure
		steps, reqs sql.NullString
		err         error
	)
	if err := sc.Scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.Difficulty,
		&p.EstimatedTime, &p.Cost, &p.Offline, &steps, &reqs); err != nil {
		return nil, err
	}
	if p.Steps, err = decodeList(steps); err != nil {
		return nil, err
	}
	if p.Requirements, err = decodeList(reqs); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProcedures returns procedures matching f, ordered by French title.
func (db *DB) ListProcedures(ctx context.Context, f CatalogFilter) ([]*schema.LocalizedProcedure, error) {
	cols, err := columnsFor(f.lang())
	if err != nil {
		return nil, err
	}

	var query strings.Builder
	fmt.Fprintf(&query, "SELECT "+procedureColumns+" FROM procedures WHERE 1=1", cols.title, cols.description)
	args := appendFilters(&query, nil, f, cols.title, cols.description)
	query.WriteString(" ORDER BY title_fr")

	rows, err := db.conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query procedures: %w", err)
	}
	defer rows.Close()

	procedures := []*schema.LocalizedProcedure{}
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan procedure: %w", err)
		}
		procedures = append(procedures, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate procedures: %w", err)
	}
	return procedures, nil
}

// GetProcedure returns one procedure, or ErrNotFound.
func (db *DB) GetProcedure(ctx context.Context, id string, lang schema.Lang) (*schema.LocalizedProcedure, error) {
	cols, err := columnsFor(lang)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT "+procedureColumns+" FROM procedures WHERE id = ?", cols.title, cols.description)
	p, err := scanProcedure(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("procedure %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get procedure %s: %w", id, err)
	}
	return p, nil
}

// ProcedureCategories lists distinct procedure categories with labels.
func (db *DB) ProcedureCategories(ctx context.Context, lang schema.Lang) ([]schema.Category, error) {
	return db.categories(ctx, "SELECT DISTINCT category FROM procedures ORDER BY category", lang)
}

func (db *DB) categories(ctx context.Context, query string, lang schema.Lang) ([]schema.Category, error) {
	if _, err := columnsFor(lang); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []schema.Category{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, schema.Category{Category: c, Label: schema.CategoryLabel(c, lang)})
	}
	return categories, rows.Err()
}

// ===== Seeding =====

// ApplySeed upserts every record of seed in a single transaction.
func (db *DB) ApplySeed(ctx context.Context, seed *schema.SeedFile) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range seed.Services {
		if err := db.upsertService(ctx, tx, &seed.Services[i]); err != nil {
			return err
		}
	}
	for i := range seed.Documents {
		if err := db.upsertDocument(ctx, tx, &seed.Documents[i]); err != nil {
			return err
		}
	}
	for i := range seed.Procedures {
		if err := db.upsertProcedure(ctx, tx, &seed.Procedures[i]); err != nil {
			return err
		}
	}
	for i := range seed.FAQ {
		if err := db.upsertFAQ(ctx, tx, &seed.FAQ[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}
