package history

import (
	"context"
	"fmt"
	"time"

	"github.com/expresspay/expresspay-go/internal/core/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// transactionRow is the persisted form of domain.TransactionRecord.
type transactionRow struct {
	ID                    string    `gorm:"primaryKey;type:text"`
	OrderID               string    `gorm:"type:text;not null;index"`
	TransactionID         string    `gorm:"type:text"`
	PayerEmail            string    `gorm:"type:text"`
	InstrumentFingerprint string    `gorm:"type:text;not null"`
	Outcome               string    `gorm:"type:text;not null"`
	Summary               string    `gorm:"type:text"`
	IsAuthOnly            bool      `gorm:"not null;default:false"`
	RecurringToken        string    `gorm:"type:text"`
	CreatedAt             time.Time `gorm:"not null;index"`
}

// TableName sets the database table name.
func (transactionRow) TableName() string { return "transactions" }

func rowFromRecord(r domain.TransactionRecord) transactionRow {
	return transactionRow{
		ID:                    r.ID,
		OrderID:               r.OrderID,
		TransactionID:         r.TransactionID,
		PayerEmail:            r.PayerEmail,
		InstrumentFingerprint: r.InstrumentFingerprint,
		Outcome:               string(r.Outcome),
		Summary:               r.Summary,
		IsAuthOnly:            r.IsAuthOnly,
		RecurringToken:        r.RecurringToken,
		CreatedAt:             r.CreatedAt,
	}
}

func (row transactionRow) record() domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:                    row.ID,
		OrderID:               row.OrderID,
		TransactionID:         row.TransactionID,
		PayerEmail:            row.PayerEmail,
		InstrumentFingerprint: row.InstrumentFingerprint,
		Outcome:               domain.ResultKind(row.Outcome),
		Summary:               row.Summary,
		IsAuthOnly:            row.IsAuthOnly,
		RecurringToken:        row.RecurringToken,
		CreatedAt:             row.CreatedAt,
	}
}

// GormStore persists records through gorm. Inserts are append-only.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (and migrates) a sqlite-backed store at dsn.
func OpenSQLite(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// sqlite allows a single writer
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return NewGormStore(db)
}

// NewGormStore wraps an open database and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&transactionRow{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(ctx context.Context, record domain.TransactionRecord) error {
	row := rowFromRecord(record)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append transaction %s: %w", record.ID, err)
	}
	return nil
}

func (s *GormStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&transactionRow{}).Error
	if err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	return nil
}

// List returns the newest records first, at most limit of them (0 = all).
func (s *GormStore) List(ctx context.Context, limit int) ([]domain.TransactionRecord, error) {
	var rows []transactionRow
	q := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]domain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
