package store

import (
	"context"
	"time"

	"github.com/dailyyoga/vidcache/db"
	"github.com/dailyyoga/vidcache/playlist"
	"gorm.io/gorm"
)

// cachedItem is the row layout of the cache table, keyed by item identifier
type cachedItem struct {
	ID           string `gorm:"primaryKey;size:191"`
	Position     int    `gorm:"not null;index"`
	Title        string `gorm:"size:512"`
	Description  string `gorm:"type:text"`
	URL          string `gorm:"size:2048"`
	ThumbnailURL string `gorm:"size:2048"`
	MediaURL     string `gorm:"size:2048"`
	CachedAt     time.Time
}

type sqlBackend struct {
	database  db.Database
	gdb       *gorm.DB
	table     string
	batchSize int
}

// NewSQLBackend creates the cache table if needed and returns a backend over it
func NewSQLBackend(ctx context.Context, database db.Database, cfg *Config) (Backend, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	gdb, err := database.DB()
	if err != nil {
		return nil, err
	}
	if err := gdb.WithContext(ctx).Table(cfg.Table).AutoMigrate(&cachedItem{}); err != nil {
		return nil, ErrLoad(err)
	}
	return &sqlBackend{
		database:  database,
		gdb:       gdb,
		table:     cfg.Table,
		batchSize: cfg.BatchSize,
	}, nil
}

func (b *sqlBackend) Load(ctx context.Context) ([]playlist.Item, error) {
	var rows []cachedItem
	if err := b.gdb.WithContext(ctx).Table(b.table).Order("position").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]playlist.Item, len(rows))
	for i, r := range rows {
		items[i] = playlist.Item{
			ID:           r.ID,
			Title:        r.Title,
			Description:  r.Description,
			URL:          r.URL,
			ThumbnailURL: r.ThumbnailURL,
			MediaURL:     r.MediaURL,
		}
	}
	return items, nil
}

// Replace deletes and re-inserts inside one transaction, so a failed batch
// rolls back to the previous rows.
func (b *sqlBackend) Replace(ctx context.Context, items []playlist.Item) error {
	now := time.Now()
	rows := make([]cachedItem, len(items))
	for i, it := range items {
		rows[i] = cachedItem{
			ID:           it.ID,
			Position:     i,
			Title:        it.Title,
			Description:  it.Description,
			URL:          it.URL,
			ThumbnailURL: it.ThumbnailURL,
			MediaURL:     it.MediaURL,
			CachedAt:     now,
		}
	}

	return b.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(b.table).Where("1 = 1").Delete(&cachedItem{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Table(b.table).CreateInBatches(&rows, b.batchSize).Error
	})
}

func (b *sqlBackend) Close() error {
	return b.database.Close()
}
