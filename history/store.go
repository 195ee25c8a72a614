package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1_000
)

var (
	ErrNotFound        = errors.New("history: transaction not found")
	ErrInvalidNext     = errors.New("history: invalid next token")
	ErrDuplicate       = errors.New("history: transaction already recorded")
	ErrUnsupportedType = errors.New("history: unsupported driver")
)

// Store persists confirmed transactions and serves indexer queries.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema. Supported
// drivers are sqlite and postgres.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", driver, err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("history: nil database")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// AutoMigrate creates or updates the history tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Transaction{})
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends a confirmed transaction. Transaction ids are unique.
func (s *Store) Record(ctx context.Context, tx *Transaction) error {
	if tx == nil || tx.TxID == "" {
		return errors.New("history: transaction id required")
	}
	var existing int64
	if err := s.db.WithContext(ctx).Model(&Transaction{}).Where("tx_id = ?", tx.TxID).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, tx.TxID)
	}
	return s.db.WithContext(ctx).Create(tx).Error
}

// Get returns a single transaction by id.
func (s *Store) Get(ctx context.Context, txID string) (*Transaction, error) {
	var tx Transaction
	err := s.db.WithContext(ctx).Where("tx_id = ?", txID).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, txID)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Query filters transactions in confirmation order. When more rows remain the
// returned NextToken resumes after the last row.
func (s *Store) Query(ctx context.Context, q Query) ([]Transaction, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	stmt := s.db.WithContext(ctx).Model(&Transaction{})
	if q.AppID != 0 {
		stmt = stmt.Where("app_id = ?", q.AppID)
	}
	if q.TxType != "" {
		stmt = stmt.Where("tx_type = ?", q.TxType)
	}
	if q.Method != "" {
		stmt = stmt.Where("method = ?", q.Method)
	}
	if q.Sender != "" {
		stmt = stmt.Where("sender = ?", q.Sender)
	}
	if q.MinRound != 0 {
		stmt = stmt.Where("round >= ?", q.MinRound)
	}
	if q.MaxRound != 0 {
		stmt = stmt.Where("round <= ?", q.MaxRound)
	}
	if q.Next != "" {
		after, err := strconv.ParseUint(q.Next, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidNext, q.Next)
		}
		stmt = stmt.Where("seq > ?", after)
	}

	var rows []Transaction
	if err := stmt.Order("seq ASC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		next = strconv.FormatUint(rows[len(rows)-1].Seq, 10)
	}
	return rows, next, nil
}

// LatestRound returns the highest recorded round, or zero when empty.
func (s *Store) LatestRound(ctx context.Context) (uint64, error) {
	var round int64
	row := s.db.WithContext(ctx).Model(&Transaction{}).Select("COALESCE(MAX(round), 0)").Row()
	if err := row.Scan(&round); err != nil {
		return 0, err
	}
	return uint64(round), nil
}
