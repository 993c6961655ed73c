package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"UpdatesDigest/internal/domain"
	"UpdatesDigest/internal/ports"
)

// insertBatchSize bounds the rows of one multi-row INSERT.
const insertBatchSize = 200

var itemColumns = []string{
	"id", "source_id", "source_name", "language", "fingerprint", "title", "url",
	"published_at", "excerpt", "snippet", "importance", "digested_on", "fetched_at",
}

var sourceColumns = []string{
	"id", "name", "site_url", "news_url", "language", "active", "last_seen_item_url", "last_seen_at",
}

var digestColumns = []string{
	"date", "text", "short_text", "translated_text", "sources", "item_count", "created_at", "updated_at",
}

// Repository persists sources, items and digests in Postgres or SQLite.
type Repository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.SourceRepository = (*Repository)(nil)
	_ ports.ItemRepository   = (*Repository)(nil)
	_ ports.DigestRepository = (*Repository)(nil)
)

// NewRepository wires a sql.DB with the dialect's placeholder style.
func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(dialect.placeholders()),
	}
}

// ActiveSources lists sources with the active flag set, ordered by id.
func (r *Repository) ActiveSources(ctx context.Context) ([]domain.Source, error) {
	query, args, err := r.sb.Select(sourceColumns...).
		From("sources").
		Where(sq.Eq{"active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var (
			s        domain.Source
			lastURL  sql.NullString
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.SiteURL, &s.NewsURL, &s.Language, &s.Active, &lastURL, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if lastURL.Valid {
			s.LastSeenItemURL = &lastURL.String
		}
		if lastSeen.Valid {
			t := lastSeen.Time.UTC()
			s.LastSeenAt = &t
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// UpsertSources creates or edits sources without touching their watermarks.
func (r *Repository) UpsertSources(ctx context.Context, sources []domain.Source) error {
	if len(sources) == 0 {
		return nil
	}

	now := stamp(time.Now())
	insert := r.sb.Insert("sources").
		Columns("id", "name", "site_url", "news_url", "language", "active", "created_at", "updated_at")
	for _, s := range sources {
		insert = insert.Values(s.ID, s.Name, s.SiteURL, s.NewsURL, s.Language, s.Active, now, now)
	}
	query, args, err := insert.Suffix(`ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		site_url = EXCLUDED.site_url,
		news_url = EXCLUDED.news_url,
		language = EXCLUDED.language,
		active = EXCLUDED.active,
		updated_at = EXCLUDED.updated_at`).ToSql()
	if err != nil {
		return fmt.Errorf("build sources upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert sources: %w", err)
	}
	return nil
}

// UpdateWatermark stores the newest seen item locator for a source.
func (r *Repository) UpdateWatermark(ctx context.Context, sourceID, itemURL string, seenAt time.Time) error {
	query, args, err := r.sb.Update("sources").
		Set("last_seen_item_url", itemURL).
		Set("last_seen_at", stamp(seenAt)).
		Set("updated_at", stamp(time.Now())).
		Where(sq.Eq{"id": sourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build watermark update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update watermark: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source %s: %w", sourceID, domain.ErrNotFound)
	}
	return nil
}

// InsertItems writes items in batches inside one transaction, skipping
// fingerprints that already exist.
func (r *Repository) InsertItems(ctx context.Context, items []domain.StoredItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for start := 0; start < len(items); start += insertBatchSize {
		end := min(start+insertBatchSize, len(items))

		insert := r.sb.Insert("items").Columns(itemColumns[1:]...)
		for _, it := range items[start:end] {
			insert = insert.Values(
				it.SourceID,
				it.SourceName,
				it.Language,
				it.Fingerprint,
				it.Title,
				it.URL,
				nullTime(it.PublishedAt),
				it.Excerpt,
				it.Snippet,
				nullImportance(it.Importance),
				nullString(it.DigestedOn),
				stamp(it.FetchedAt),
			)
		}
		query, args, err := insert.Suffix("ON CONFLICT (fingerprint) DO NOTHING").ToSql()
		if err != nil {
			return 0, fmt.Errorf("build items insert: %w", err)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert items: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert items: rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit items: %w", err)
	}
	return inserted, nil
}

// UndigestedItems returns items without a digest marker matching filter,
// grouped by source and newest first within a source.
func (r *Repository) UndigestedItems(ctx context.Context, filter ports.ItemFilter) ([]domain.StoredItem, error) {
	sel := r.sb.Select(itemColumns...).
		From("items").
		Where(sq.Eq{"digested_on": nil})
	if !filter.From.IsZero() {
		sel = sel.Where(sq.GtOrEq{"fetched_at": stamp(filter.From)})
	}
	if !filter.To.IsZero() {
		sel = sel.Where(sq.Lt{"fetched_at": stamp(filter.To)})
	}
	if filter.Importance != nil {
		sel = sel.Where(sq.Eq{"importance": string(*filter.Importance)})
	}

	query, args, err := sel.OrderBy("source_name", "fetched_at DESC", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// MarkDigested sets the digest marker; rows already marked keep their date.
func (r *Repository) MarkDigested(ctx context.Context, ids []int64, date string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := r.sb.Update("items").
		Set("digested_on", date).
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"digested_on": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark digested: %w", err)
	}
	return nil
}

// DigestByDate returns domain.ErrNotFound when no digest exists for date.
func (r *Repository) DigestByDate(ctx context.Context, date string) (domain.Digest, error) {
	query, args, err := r.sb.Select(digestColumns...).
		From("digests").
		Where(sq.Eq{"date": date}).
		ToSql()
	if err != nil {
		return domain.Digest{}, fmt.Errorf("build digest query: %w", err)
	}

	var (
		d          domain.Digest
		translated sql.NullString
		sources    string
	)
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&d.Date, &d.Text, &d.ShortText, &translated, &sources, &d.ItemCount, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Digest{}, fmt.Errorf("digest %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Digest{}, fmt.Errorf("query digest: %w", err)
	}

	if translated.Valid {
		d.TranslatedText = &translated.String
	}
	if err := json.Unmarshal([]byte(sources), &d.Sources); err != nil {
		return domain.Digest{}, fmt.Errorf("decode digest sources: %w", err)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

// UpsertDigest overwrites the digest for its date, keeping created_at.
func (r *Repository) UpsertDigest(ctx context.Context, d domain.Digest) error {
	sources, err := json.Marshal(nonNil(d.Sources))
	if err != nil {
		return fmt.Errorf("encode digest sources: %w", err)
	}

	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	query, args, err := r.sb.Insert("digests").
		Columns(digestColumns...).
		Values(d.Date, d.Text, d.ShortText, nullString(d.TranslatedText), string(sources), d.ItemCount, stamp(created), stamp(updated)).
		Suffix(`ON CONFLICT (date) DO UPDATE SET
		text = EXCLUDED.text,
		short_text = EXCLUDED.short_text,
		translated_text = EXCLUDED.translated_text,
		sources = EXCLUDED.sources,
		item_count = EXCLUDED.item_count,
		updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build digest upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert digest: %w", err)
	}
	return nil
}

func scanItem(rows *sql.Rows) (domain.StoredItem, error) {
	var (
		it         domain.StoredItem
		published  sql.NullTime
		importance sql.NullString
		digested   sql.NullString
	)
	err := rows.Scan(&it.ID, &it.SourceID, &it.SourceName, &it.Language, &it.Fingerprint, &it.Title, &it.URL,
		&published, &it.Excerpt, &it.Snippet, &importance, &digested, &it.FetchedAt)
	if err != nil {
		return domain.StoredItem{}, fmt.Errorf("scan item: %w", err)
	}
	if published.Valid {
		t := published.Time.UTC()
		it.PublishedAt = &t
	}
	if importance.Valid {
		imp := domain.Importance(importance.String)
		it.Importance = &imp
	}
	if digested.Valid {
		it.DigestedOn = &digested.String
	}
	it.FetchedAt = it.FetchedAt.UTC()
	return it, nil
}

// stamp normalises timestamps so both dialects compare them consistently.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: stamp(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullImportance(i *domain.Importance) sql.NullString {
	if i == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*i), Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
