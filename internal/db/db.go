package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"certportal/internal/models"
)

// Open connects to Postgres and migrates the audit table.
func Open(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB from gorm: %w", err)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxOpenConns(10)

	if err := gdb.AutoMigrate(&models.VerificationAttempt{}); err != nil {
		return nil, fmt.Errorf("automigrate verification_attempts: %w", err)
	}
	return gdb, nil
}

// Close releases the pool behind gdb.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AuditRepository appends verification attempts. Nothing reads them back on
// the lookup path.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(gdb *gorm.DB) *AuditRepository {
	return &AuditRepository{db: gdb}
}

func (r *AuditRepository) Record(ctx context.Context, a *models.VerificationAttempt) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("insert verification attempt for %q: %w", a.CertID, err)
	}
	return nil
}
