package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// Service wraps the order database connection for health reporting.
type Service interface {
	// Health returns a map of health status information.
	Health() map[string]string

	// Close terminates the database connection.
	Close() error

	// DB exposes the underlying handle for the repositories.
	DB() *sql.DB
}

type service struct {
	db  *sql.DB
	log *logrus.Logger
}

func dsn() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		os.Getenv("FITPAY_DB_USERNAME"),
		os.Getenv("FITPAY_DB_PASSWORD"),
		os.Getenv("FITPAY_DB_HOST"),
		os.Getenv("FITPAY_DB_PORT"),
		os.Getenv("FITPAY_DB_DATABASE"),
		os.Getenv("FITPAY_DB_SCHEMA"),
	)
}

// NewPostgres opens the order database over the pgx stdlib driver.
func NewPostgres() (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func New(db *sql.DB, log *logrus.Logger) Service {
	return &service{db: db, log: log}
}

func (s *service) DB() *sql.DB { return s.db }

// Health pings the database and reports connection-pool statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		s.log.WithError(err).Error("database ping failed")
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.OpenConnections > 40 {
		stats["message"] = "The database is experiencing heavy load."
	}
	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}

	return stats
}

func (s *service) Close() error {
	s.log.WithField("database", os.Getenv("FITPAY_DB_DATABASE")).Info("disconnecting from database")
	return s.db.Close()
}
