package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// DefaultListLimit caps ListRecent when no limit is given.
const DefaultListLimit = 50

// HistoryRecord is one persisted classification.
type HistoryRecord struct {
	ID           int64     `db:"id"            json:"id"`
	ItemHandle   string    `db:"item_handle"   json:"item_handle"`
	Label        string    `db:"label"         json:"label"`
	Score        float64   `db:"score"         json:"score"`
	RawRanking   string    `db:"raw_ranking"   json:"raw_ranking"`
	TextLength   int       `db:"text_length"   json:"text_length"`
	ClassifiedAt time.Time `db:"classified_at" json:"classified_at"`
}

// NewHistoryRecord builds a record from an annotation.
func NewHistoryRecord(a domain.Annotation) (*HistoryRecord, error) {
	ranking := a.Result.RawRanking
	if ranking == nil {
		ranking = []domain.LabelScore{}
	}
	raw, err := json.Marshal(ranking)
	if err != nil {
		return nil, fmt.Errorf("marshal ranking: %w", err)
	}

	return &HistoryRecord{
		ItemHandle:   a.Handle,
		Label:        string(a.Result.Label),
		Score:        a.Result.Score,
		RawRanking:   string(raw),
		TextLength:   a.TextLength,
		ClassifiedAt: a.ClassifiedAt,
	}, nil
}

// LabelCount is the number of records with a label.
type LabelCount struct {
	Label string `db:"label" json:"label"`
	Count int    `db:"count" json:"count"`
}

// HistoryRepository handles database operations for classification history.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create stores a record and sets its ID. A handle that was classified
// before keeps its row, which takes the newer result.
func (r *HistoryRepository) Create(ctx context.Context, record *HistoryRecord) error {
	query := r.db.Rebind(`
		INSERT INTO classification_history (
			item_handle, label, score, raw_ranking, text_length, classified_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_handle) DO UPDATE SET
			label = excluded.label,
			score = excluded.score,
			raw_ranking = excluded.raw_ranking,
			text_length = excluded.text_length,
			classified_at = excluded.classified_at
		RETURNING id
	`)

	err := r.db.QueryRowxContext(
		ctx,
		query,
		record.ItemHandle,
		record.Label,
		record.Score,
		record.RawRanking,
		record.TextLength,
		record.ClassifiedAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to create classification history: %w", err)
	}

	return nil
}

// ListRecent returns the newest records first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := r.db.Rebind(`
		SELECT id, item_handle, label, score, raw_ranking, text_length, classified_at
		FROM classification_history
		ORDER BY classified_at DESC, id DESC
		LIMIT ?
	`)

	records := make([]HistoryRecord, 0, limit)
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list classification history: %w", err)
	}
	return records, nil
}

// CountByLabel returns how many records carry each label.
func (r *HistoryRepository) CountByLabel(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT label, COUNT(*) AS count
		FROM classification_history
		GROUP BY label
	`

	var rows []LabelCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count classification history: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Label] = row.Count
	}
	return counts, nil
}

// Ping checks the connection.
func (r *HistoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
