package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/your-org/facebot/internal/config"
	"github.com/your-org/facebot/internal/models"
)

// faceRow is the gorm mapping of the faces_data table.
type faceRow struct {
	FaceImageKey     string    `gorm:"column:face_image_key;primaryKey;type:varchar(191)"`
	OriginalImageKey string    `gorm:"column:original_image_key;type:varchar(512);not null;index"`
	PersonName       *string   `gorm:"column:person_name;type:varchar(191);index"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;autoCreateTime;index"`
}

func (faceRow) TableName() string { return TableName }

func (r faceRow) record() models.FaceRecord {
	rec := models.FaceRecord{
		FaceID:           r.FaceImageKey,
		OriginalImageKey: r.OriginalImageKey,
		CreatedAt:        r.CreatedAt,
	}
	if r.PersonName != nil {
		rec.PersonName = *r.PersonName
	}
	return rec
}

// mysqlNameCollation makes person_name comparisons case- and
// accent-sensitive on MySQL, whose default utf8mb4 collations are not.
const mysqlNameCollation = "utf8mb4_bin"

// SQLStore is the gorm-backed FaceStore used with SQLite and MySQL.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(cfg config.DatabaseConfig) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("sql store: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite allows one writer; a single connection also keeps ":memory:" shared.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewSQLStoreFromDB(db), nil
}

// NewSQLStoreFromDB wraps an already opened gorm handle.
func NewSQLStoreFromDB(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if s.db.Dialector.Name() == "mysql" {
		db = db.Set("gorm:table_options", "DEFAULT CHARSET=utf8mb4 COLLATE="+mysqlNameCollation)
	}
	if err := db.AutoMigrate(&faceRow{}); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Put(ctx context.Context, rec models.FaceRecord) error {
	row := faceRow{
		FaceImageKey:     rec.FaceID,
		OriginalImageKey: rec.OriginalImageKey,
	}
	updates := []string{"original_image_key"}
	if rec.PersonName != "" {
		name := rec.PersonName
		row.PersonName = &name
		updates = append(updates, "person_name")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "face_image_key"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put face %s: %w", rec.FaceID, err)
	}
	return nil
}

func (s *SQLStore) UpdateName(ctx context.Context, faceID, name string) error {
	err := s.db.WithContext(ctx).Model(&faceRow{}).
		Where("face_image_key = ?", faceID).
		Update("person_name", name).Error
	if err != nil {
		return fmt.Errorf("update name of %s: %w", faceID, err)
	}
	return nil
}

func (s *SQLStore) unlabeled(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Where("person_name IS NULL OR person_name = ?", "").
		Order("created_at, face_image_key")
}

func (s *SQLStore) ScanUnlabeled(ctx context.Context) (*models.FaceRecord, error) {
	var rows []faceRow
	if err := s.unlabeled(ctx).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan unlabeled: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].record()
	return &rec, nil
}

// byName selects exact name matches. On MySQL the comparison is forced to
// the binary collation so tables created with a _ci default still match
// case-sensitively.
func (s *SQLStore) byName(ctx context.Context, name string) *gorm.DB {
	cond := "person_name = ?"
	if s.db.Dialector.Name() == "mysql" {
		cond += " COLLATE " + mysqlNameCollation
	}
	return s.db.WithContext(ctx).Where(cond, name).Order("created_at, face_image_key")
}

func (s *SQLStore) ScanByName(ctx context.Context, name string) ([]models.FaceRecord, error) {
	var rows []faceRow
	err := s.byName(ctx, name).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan by name: %w", err)
	}
	return toRecords(rows), nil
}

func (s *SQLStore) Get(ctx context.Context, faceID string) (*models.FaceRecord, error) {
	var rows []faceRow
	if err := s.db.WithContext(ctx).Where("face_image_key = ?", faceID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get face %s: %w", faceID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].record()
	return &rec, nil
}

func (s *SQLStore) ListUnlabeled(ctx context.Context, limit int) ([]models.FaceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []faceRow
	if err := s.unlabeled(ctx).Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list unlabeled: %w", err)
	}
	return toRecords(rows), nil
}

func (s *SQLStore) Counts(ctx context.Context) (int, int, error) {
	var total, labeled int64
	if err := s.db.WithContext(ctx).Model(&faceRow{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count faces: %w", err)
	}
	err := s.db.WithContext(ctx).Model(&faceRow{}).
		Where("person_name IS NOT NULL AND person_name <> ?", "").
		Count(&labeled).Error
	if err != nil {
		return 0, 0, fmt.Errorf("count labeled faces: %w", err)
	}
	return int(total), int(labeled), nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func toRecords(rows []faceRow) []models.FaceRecord {
	out := make([]models.FaceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.record())
	}
	return out
}
