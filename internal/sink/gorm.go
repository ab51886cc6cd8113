package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/i474232898/local-weather/internal/weather"
)

// WeatherRow is the persisted form of a record.
type WeatherRow struct {
	ID        uint   `gorm:"primaryKey"`
	ProjectID string `gorm:"index"`
	UserID    string `gorm:"index"`
	SourceID  string `gorm:"index"`

	ObservedAt time.Time
	QueriedAt  time.Time `gorm:"index"`
	Sunrise    *time.Time
	Sunset     *time.Time

	Temperature         *float64
	Pressure            *float64
	Humidity            *float64
	Cloudiness          *float64
	Precipitation       *float64
	PrecipitationPeriod *float64

	Condition      string
	Provider       string
	LocationSource string
}

func (WeatherRow) TableName() string { return "local_weather" }

// GormSink stores records in a SQL database.
type GormSink struct {
	db  *gorm.DB
	key weather.ObservationKey
}

// OpenPostgres connects to dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// NewGormSink migrates the schema and returns a sink writing to db.
func NewGormSink(db *gorm.DB, key weather.ObservationKey) (*GormSink, error) {
	if err := db.AutoMigrate(&WeatherRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormSink{db: db, key: key}, nil
}

func (s *GormSink) Send(ctx context.Context, r weather.Record) error {
	row := WeatherRow{
		ProjectID:           s.key.ProjectID,
		UserID:              s.key.UserID,
		SourceID:            s.key.SourceID,
		ObservedAt:          r.ObservedAt,
		QueriedAt:           r.QueriedAt,
		Sunrise:             r.Sunrise,
		Sunset:              r.Sunset,
		Temperature:         r.Temperature,
		Pressure:            r.Pressure,
		Humidity:            r.Humidity,
		Cloudiness:          r.Cloudiness,
		Precipitation:       r.PrecipitationAmount,
		PrecipitationPeriod: r.PrecipitationPeriodHours,
		Condition:           string(r.Condition),
		Provider:            r.ProviderName,
		LocationSource:      string(r.LocationSource),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert weather row: %w", err)
	}
	return nil
}

// Latest returns the newest stored record for the sink's key.
func (s *GormSink) Latest(ctx context.Context) (weather.Record, error) {
	var row WeatherRow
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ? AND source_id = ?", s.key.ProjectID, s.key.UserID, s.key.SourceID).
		Order("queried_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.Record{}, ErrNotFound
	}
	if err != nil {
		return weather.Record{}, fmt.Errorf("query latest weather row: %w", err)
	}
	return weather.Record{
		ObservedAt:               row.ObservedAt.UTC(),
		QueriedAt:                row.QueriedAt.UTC(),
		Sunrise:                  utcPtr(row.Sunrise),
		Sunset:                   utcPtr(row.Sunset),
		Temperature:              row.Temperature,
		Pressure:                 row.Pressure,
		Humidity:                 row.Humidity,
		Cloudiness:               row.Cloudiness,
		PrecipitationAmount:      row.Precipitation,
		PrecipitationPeriodHours: row.PrecipitationPeriod,
		Condition:                weather.Condition(row.Condition),
		ProviderName:             row.Provider,
		LocationSource:           weather.LocationSource(row.LocationSource),
	}, nil
}

func (s *GormSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return weather.Time(*t)
}
