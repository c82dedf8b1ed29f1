// Package postgres is the durable storage adapter: the gateway-shared
// disasters view, the resources table, and the DB-backed resource cache.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reliefmap/disaster-resource-service/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the GORM connection.
type Store struct {
	db *gorm.DB
}

// Connect opens the database and migrates the tables this service owns.
// The disasters view belongs to the gateway and is never migrated here.
func Connect(databaseURL string, debug bool) (*Store, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.AutoMigrate(&resourceRow{}, &cacheRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing connection, for tests.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DisasterPoint loads a disaster's location and normalizes it to
// coordinates. Returns ErrDisasterNotFound for unknown ids and a plain error
// when the stored location cannot be normalized.
func (s *Store) DisasterPoint(ctx context.Context, disasterID string) (domain.Geo, error) {
	var row disasterRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", disasterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Geo{}, domain.ErrDisasterNotFound
	}
	if err != nil {
		return domain.Geo{}, fmt.Errorf("load disaster: %w", err)
	}

	point, ok := domain.NormalizePoint(row.Location)
	if !ok {
		return domain.Geo{}, fmt.Errorf("disaster %s: location missing or invalid", disasterID)
	}
	return point, nil
}

// InsertResources bulk-inserts a filtered resource list. The write is
// all-or-nothing; a failure leaves no partial run behind.
func (s *Store) InsertResources(ctx context.Context, resources []domain.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	rows := make([]resourceRow, len(resources))
	for i, r := range resources {
		rows[i] = toResourceRow(r)
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert resources: %w", err)
	}
	return nil
}

// haversineMeters is the great-circle distance from (?, ?) in SQL, with the
// column coordinates in degrees. 6371000 is the mean Earth radius in meters.
const haversineMeters = `2 * 6371000 * asin(sqrt(
	power(sin(radians(lat - ?) / 2), 2) +
	cos(radians(?)) * cos(radians(lat)) * power(sin(radians(lon - ?) / 2), 2)
))`

// NearbyResources reads already-persisted resources for a disaster within
// radiusMeters of the coordinate, nearest first.
func (s *Store) NearbyResources(ctx context.Context, disasterID string, lat, lon float64, radiusMeters int) ([]domain.Resource, error) {
	var rows []resourceRow
	distance := strings.ReplaceAll(haversineMeters, "\n", " ")

	err := s.db.WithContext(ctx).
		Where("disaster_id = ?", disasterID).
		Where(distance+" <= ?", lat, lat, lon, radiusMeters).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearby resources: %w", err)
	}

	out := make([]domain.Resource, len(rows))
	for i, row := range rows {
		out[i] = toDomainResource(row)
	}
	return out, nil
}

// DeleteResource removes one resource and reports its owning disaster so the
// caller can invalidate that disaster's cache entries.
func (s *Store) DeleteResource(ctx context.Context, resourceID string) (string, error) {
	var row resourceRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", resourceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrResourceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load resource: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(&resourceRow{}, "id = ?", resourceID).Error; err != nil {
		return "", fmt.Errorf("delete resource: %w", err)
	}
	return row.DisasterID, nil
}
