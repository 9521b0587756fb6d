package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amoylab/webconsole/internal/common/cnst"
	"github.com/amoylab/webconsole/internal/common/config"
)

// Entry is one key/value pair
type Entry struct {
	Path      string    `gorm:"primaryKey;column:path;size:512"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name
func (Entry) TableName() string {
	return "console_kv"
}

// DBStore implements Store using a SQL database
type DBStore struct {
	logger *zap.Logger
	db     *gorm.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore creates a new database-based store
func NewDBStore(logger *zap.Logger, cfg config.DatabaseConfig) (*DBStore, error) {
	logger = logger.Named("kvstore.db")

	dsn, err := cfg.GetDSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cnst.DatabaseType(cfg.Type) {
	case cnst.DatabasePostgres:
		dialector = postgres.Open(dsn)
	case cnst.DatabaseMySQL:
		dialector = mysql.Open(dsn)
	case cnst.DatabaseSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, cnst.ErrInvalidDatabaseType
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto migrate the schema
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DBStore{
		logger: logger,
		db:     db,
	}, nil
}

// Get implements Store.Get
func (s *DBStore) Get(ctx context.Context, key string) (string, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("path = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

// Query implements Store.Query
func (s *DBStore) Query(ctx context.Context, prefix string) (map[string]string, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("path LIKE ? ESCAPE '!'", escapeLike(prefix)+"%").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Path] = e.Value
	}
	return out, nil
}

// Put implements Store.Put
func (s *DBStore) Put(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Entry{Path: key, Value: value}).Error
}

// Delete implements Store.Delete
func (s *DBStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("path = ?", key).Delete(&Entry{}).Error
}

// Close implements Store.Close
func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
