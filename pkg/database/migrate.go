package database

import (
	"database/sql"
	"fmt"

	"campusride/pkg/database/migrations"
	"campusride/pkg/logger"

	"github.com/pressly/goose/v3"
)

// Migrate applies every embedded migration that has not run yet.
func Migrate(db *sql.DB, log *logger.Logger) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{log.Component("migrate")})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

type gooseLogger struct {
	log *logger.Logger
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) { g.log.Fatalf(format, v...) }
func (g gooseLogger) Printf(format string, v ...interface{}) { g.log.Infof(format, v...) }
