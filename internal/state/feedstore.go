package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/newsgrid/enrichd/internal/model"
)

// FeedStore reads feed-entry partitions and writes enriched rows back.
// Each calendar day lives in its own feed_entries_<YYYYMMDD> table; missing
// partitions surface as ErrTableMissing.
type FeedStore struct {
	db *sql.DB
}

// NewFeedStore wraps an open database.
func NewFeedStore(db *sql.DB) *FeedStore {
	return &FeedStore{db: db}
}

const feedEntryColumns = `id, flashpoint_id, url, title, title_en, description,
	content, language, source_country, hostname, image, published_date`

// TableExists reports whether the partition for the given date is present.
func (s *FeedStore) TableExists(date string) (bool, error) {
	var name string
	err := s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`,
		TableForDate(date),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup partition for %s: %w", date, err)
	}
	return true, nil
}

// CreatePartition creates the partition table for a date. Production
// partitions are created upstream; this exists for tests and local tooling.
func (s *FeedStore) CreatePartition(date string) error {
	if err := ValidateDate(date); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf(FeedPartitionDDL, TableForDate(date)))
	if err != nil {
		return fmt.Errorf("create partition for %s: %w", date, err)
	}
	return nil
}

// InsertEntry writes a raw feed entry into a partition. Test/tooling path; the
// pipeline itself never inserts raw entries.
func (s *FeedStore) InsertEntry(date string, e model.FeedEntry) error {
	stmt := fmt.Sprintf(`INSERT INTO %s
		(id, flashpoint_id, url, title, description, language, source_country, hostname, image, published_date, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, flashpoint_id) DO UPDATE SET
			url=excluded.url, title=excluded.title, description=excluded.description,
			language=excluded.language, source_country=excluded.source_country,
			hostname=excluded.hostname, image=excluded.image,
			published_date=excluded.published_date, updated_at_ns=excluded.updated_at_ns`,
		TableForDate(date))
	_, err := s.db.Exec(stmt,
		e.ID, e.FlashpointID, e.URL, e.Title, e.Description, e.Language,
		e.SourceCountry, e.Hostname, e.Image, e.PublishedDate, time.Now().UnixNano())
	if err != nil {
		return wrapTableMissing(err)
	}
	return nil
}

// EntriesByDate loads every feed entry in the date partition.
func (s *FeedStore) EntriesByDate(date string) ([]model.FeedEntry, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM %s ORDER BY flashpoint_id, id`,
		feedEntryColumns, TableForDate(date))
	return s.queryEntries(stmt)
}

// EntriesByFlashpoint loads the entries of one flashpoint within a date.
func (s *FeedStore) EntriesByFlashpoint(date, flashpointID string) ([]model.FeedEntry, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM %s WHERE flashpoint_id = ? ORDER BY id`,
		feedEntryColumns, TableForDate(date))
	return s.queryEntries(stmt, flashpointID)
}

// EntryByID loads a single entry by composite identity.
func (s *FeedStore) EntryByID(date, flashpointID, articleID string) (model.FeedEntry, error) {
	stmt := fmt.Sprintf(`SELECT %s FROM %s WHERE flashpoint_id = ? AND id = ?`,
		feedEntryColumns, TableForDate(date))
	entries, err := s.queryEntries(stmt, flashpointID, articleID)
	if err != nil {
		return model.FeedEntry{}, err
	}
	if len(entries) == 0 {
		return model.FeedEntry{}, ErrNotFound
	}
	return entries[0], nil
}

func (s *FeedStore) queryEntries(stmt string, args ...any) ([]model.FeedEntry, error) {
	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, wrapTableMissing(err)
	}
	defer rows.Close()

	var entries []model.FeedEntry
	for rows.Next() {
		var e model.FeedEntry
		var titleEn string
		var content string
		if err := rows.Scan(
			&e.ID, &e.FlashpointID, &e.URL, &e.Title, &titleEn, &e.Description,
			&content, &e.Language, &e.SourceCountry, &e.Hostname, &e.Image,
			&e.PublishedDate,
		); err != nil {
			return nil, fmt.Errorf("scan feed entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed entries: %w", err)
	}
	return entries, nil
}

// UpsertEnriched writes the pipeline output back to the entry's partition,
// keyed by (id, flashpoint_id). Re-running an article is idempotent: the
// latest write wins.
func (s *FeedStore) UpsertEnriched(date string, entry model.FeedEntry, res *model.ExtractResult) error {
	if res == nil {
		return fmt.Errorf("upsert enriched %s/%s: nil result", entry.FlashpointID, entry.ID)
	}

	images := res.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	entitiesJSON, err := json.Marshal(res.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	geoEntities := res.GeoEntities
	if geoEntities == nil {
		geoEntities = []model.GeoEntity{}
	}
	geoJSON, err := json.Marshal(geoEntities)
	if err != nil {
		return fmt.Errorf("marshal geo entities: %w", err)
	}

	title := res.Title
	if title == "" {
		title = entry.Title
	}
	hostname := res.Hostname
	if hostname == "" {
		hostname = entry.Hostname
	}
	publishedDate := res.PublishedDate
	if publishedDate == "" {
		publishedDate = entry.PublishedDate
	}

	stmt := fmt.Sprintf(`INSERT INTO %s
		(id, flashpoint_id, url, title, title_en, description, content, language,
		 source_country, hostname, image, published_date,
		 images_json, entities_json, geo_entities_json, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, flashpoint_id) DO UPDATE SET
			title=excluded.title, title_en=excluded.title_en,
			content=excluded.content, language=excluded.language,
			hostname=excluded.hostname, published_date=excluded.published_date,
			images_json=excluded.images_json, entities_json=excluded.entities_json,
			geo_entities_json=excluded.geo_entities_json,
			updated_at_ns=excluded.updated_at_ns`,
		TableForDate(date))

	_, err = s.db.Exec(stmt,
		res.ID, res.ParentID, entry.URL, title, res.TitleEn, entry.Description,
		res.Content, res.Language, entry.SourceCountry, hostname, entry.Image,
		publishedDate, string(imagesJSON), string(entitiesJSON), string(geoJSON),
		time.Now().UnixNano())
	if err != nil {
		return wrapTableMissing(err)
	}
	return nil
}

// EnrichedRow is the persisted shape read back for verification and the
// entries endpoint.
type EnrichedRow struct {
	model.FeedEntry
	TitleEn     string            `json:"title_en"`
	Content     string            `json:"content"`
	Images      []string          `json:"images"`
	GeoEntities []model.GeoEntity `json:"geo_entities"`
}

// EnrichedByID reads one enriched row back, decoding the JSON columns.
func (s *FeedStore) EnrichedByID(date, flashpointID, articleID string) (EnrichedRow, error) {
	stmt := fmt.Sprintf(`SELECT %s, images_json, geo_entities_json
		FROM %s WHERE flashpoint_id = ? AND id = ?`,
		feedEntryColumns, TableForDate(date))

	var row EnrichedRow
	var imagesJSON, geoJSON string
	err := s.db.QueryRow(stmt, flashpointID, articleID).Scan(
		&row.ID, &row.FlashpointID, &row.URL, &row.Title, &row.TitleEn,
		&row.Description, &row.Content, &row.Language, &row.SourceCountry,
		&row.Hostname, &row.Image, &row.PublishedDate,
		&imagesJSON, &geoJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return EnrichedRow{}, ErrNotFound
	}
	if err != nil {
		return EnrichedRow{}, wrapTableMissing(err)
	}
	if err := json.Unmarshal([]byte(imagesJSON), &row.Images); err != nil {
		return EnrichedRow{}, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal([]byte(geoJSON), &row.GeoEntities); err != nil {
		return EnrichedRow{}, fmt.Errorf("decode geo entities: %w", err)
	}
	return row, nil
}
