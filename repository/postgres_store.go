package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pricewatch/models"

	"github.com/lib/pq"
)

// PostgresStore keeps items and their price points in two tables
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// FetchMonitored returns all items with their full history
func (s *PostgresStore) FetchMonitored(ctx context.Context) ([]models.MonitoredItem, error) {
	query := `
		SELECT id, source_url, name, image_url, currency, initial_price, current_price,
			target_price, is_monitoring, last_checked_at, created_at
		FROM monitored_items
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get monitored items: %w", err)
	}
	defer rows.Close()

	var items []models.MonitoredItem
	index := make(map[string]int)
	for rows.Next() {
		var item models.MonitoredItem
		var target sql.NullFloat64
		err := rows.Scan(
			&item.ID, &item.SourceURL, &item.Name, &item.ImageURL, &item.Currency,
			&item.InitialPrice, &item.CurrentPrice, &target, &item.IsMonitoring,
			&item.LastCheckedAt, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if target.Valid {
			item.TargetPrice = &target.Float64
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}

	points, err := s.db.QueryContext(ctx, `SELECT item_id, price, observed_at FROM price_points ORDER BY item_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer points.Close()

	for points.Next() {
		var itemID string
		var p models.PricePoint
		if err := points.Scan(&itemID, &p.Price, &p.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		if i, ok := index[itemID]; ok {
			items[i].PriceHistory = append(items[i].PriceHistory, p)
		}
	}
	return items, points.Err()
}

// Insert adds a new item and its seed history
func (s *PostgresStore) Insert(ctx context.Context, item models.MonitoredItem) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO monitored_items (id, source_url, normalized_url, name, image_url, currency,
				initial_price, current_price, target_price, is_monitoring, last_checked_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`
		_, err := tx.ExecContext(ctx, query,
			item.ID, item.SourceURL, item.NormalizedURL(), item.Name, item.ImageURL, item.Currency,
			item.InitialPrice, item.CurrentPrice, nullableFloat(item.TargetPrice), item.IsMonitoring,
			item.LastCheckedAt, item.CreatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return models.ErrDuplicateProduct
			}
			return fmt.Errorf("failed to insert item: %w", err)
		}
		return appendPoints(ctx, tx, item, 0)
	})
}

// Save updates the given items and appends their new price points in a
// single transaction
func (s *PostgresStore) Save(ctx context.Context, items []models.MonitoredItem) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE monitored_items
			SET name = $2, image_url = $3, currency = $4, current_price = $5,
				target_price = $6, is_monitoring = $7, last_checked_at = $8
			WHERE id = $1
		`
		for _, item := range items {
			res, err := tx.ExecContext(ctx, query,
				item.ID, item.Name, item.ImageURL, item.Currency, item.CurrentPrice,
				nullableFloat(item.TargetPrice), item.IsMonitoring, item.LastCheckedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to update item %s: %w", item.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("save %s: %w", item.ID, models.ErrItemNotFound)
			}

			var stored int
			err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_points WHERE item_id = $1`, item.ID).Scan(&stored)
			if err != nil {
				return fmt.Errorf("failed to count price points: %w", err)
			}
			if err := appendPoints(ctx, tx, item, stored); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes an item; its history goes with it
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitored_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrItemNotFound
	}
	return nil
}

// appendPoints writes history points from index `from` onwards; history is
// append-only so earlier points are already stored
func appendPoints(ctx context.Context, tx *sql.Tx, item models.MonitoredItem, from int) error {
	for seq := from; seq < len(item.PriceHistory); seq++ {
		p := item.PriceHistory[seq]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO price_points (item_id, seq, price, observed_at) VALUES ($1, $2, $3, $4)`,
			item.ID, seq, p.Price, p.ObservedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to add price point: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
