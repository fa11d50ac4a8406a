// Package repository contains the storage layer for the collector: the
// Postgres/GORM connection bootstrap and the per-model repositories the
// Batch Writer, Lifecycle Manager and Control API read and write through.
package repository

import (
	"fmt"
	"strings"

	"github.com/nsvirk/tickcollector/internal/config"
	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SchemaName is the Postgres schema the collector migrates and queries
// against.
var SchemaName = "collector"

// TableNames resolves the logical per-currency, per-kind table names
// described in the external interface contract: {currency}_option_quotes,
// perpetuals_{quotes,trades,depth}, instrument_metadata, lifecycle_events.
type TableNames struct {
	currency string
}

// NewTableNames returns a resolver for the given currency, lower-cased to
// match Postgres's unquoted-identifier folding.
func NewTableNames(currency string) TableNames {
	return TableNames{currency: strings.ToLower(currency)}
}

func (t TableNames) optionsPrefix() string { return t.currency + "_option" }

// Quotes returns the quotes table for the given instrument kind.
func (t TableNames) Quotes(kind models.Kind) string {
	if kind == models.KindPerpetual {
		return "perpetuals_quotes"
	}
	return t.optionsPrefix() + "_quotes"
}

// Trades returns the trades table for the given instrument kind.
func (t TableNames) Trades(kind models.Kind) string {
	if kind == models.KindPerpetual {
		return "perpetuals_trades"
	}
	return t.optionsPrefix() + "_trades"
}

// Depth returns the orderbook depth table for the given instrument kind.
func (t TableNames) Depth(kind models.Kind) string {
	if kind == models.KindPerpetual {
		return "perpetuals_depth"
	}
	return t.optionsPrefix() + "_orderbook_depth"
}

// allTickTables enumerates every tick table migrated at startup: one
// options set per the configured currency, plus the shared perpetuals set.
func (t TableNames) allTickTables() []struct {
	name  string
	model interface{}
} {
	return []struct {
		name  string
		model interface{}
	}{
		{t.Quotes(models.KindOption), &models.QuoteTick{}},
		{t.Trades(models.KindOption), &models.TradeTick{}},
		{t.Depth(models.KindOption), &models.DepthSnapshot{}},
		{t.Quotes(models.KindPerpetual), &models.QuoteTick{}},
		{t.Trades(models.KindPerpetual), &models.TradeTick{}},
		{t.Depth(models.KindPerpetual), &models.DepthSnapshot{}},
	}
}

// ConnectPostgres connects to Postgres and returns a GORM database handle
// with the collector's schema and tables migrated.
func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	zaplogger.Info(config.SingleLine)
	zaplogger.Info("Initializing Postgres")
	zaplogger.Info(config.SingleLine)

	var logLevel logger.LogLevel
	switch cfg.PostgresLogLevel {
	case "silent":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	dsn := cfg.DatabaseURL + fmt.Sprintf(" search_path=%s,public", cfg.PostgresSchema)
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %v", err)
	}
	zaplogger.Info("  * connected")

	SchemaName = cfg.PostgresSchema
	createSchemaSQL := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", SchemaName)
	if err := db.Exec(createSchemaSQL).Error; err != nil {
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}
	zaplogger.Info("  * migrating schema: \"" + SchemaName + "\"")

	tables := NewTableNames(cfg.Currency)
	if err := autoMigrate(db, tables); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %v", err)
	}

	if err := setUnlogged(db, tables); err != nil {
		return nil, err
	}

	return db, nil
}

func autoMigrate(db *gorm.DB, tables TableNames) error {
	zaplogger.Info("  * migrating tables")

	fixed := []struct {
		name  string
		model interface{}
	}{
		{models.InstrumentsTableName, &models.Instrument{}},
		{models.LifecycleEventsTableName, &models.LifecycleEvent{}},
		{DeadLettersTableName, &DeadLetter{}},
	}

	for _, table := range append(fixed, tables.allTickTables()...) {
		if err := db.Table(SchemaName + "." + table.name).AutoMigrate(table.model); err != nil {
			return fmt.Errorf("failed to auto migrate table %s: %v", table.name, err)
		}
		zaplogger.Info("    - \"" + SchemaName + "." + table.name + "\"")
	}

	return nil
}

// setUnlogged marks the write-heavy tick tables UNLOGGED, trading crash
// durability for ingest throughput; the store's WAL-backed tables
// (instrument_metadata, lifecycle_events) are left logged.
func setUnlogged(db *gorm.DB, tables TableNames) error {
	for _, table := range tables.allTickTables() {
		stmt := fmt.Sprintf("ALTER TABLE %s.%s SET UNLOGGED", SchemaName, table.name)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to set table %s as unlogged: %v", table.name, err)
		}
		zaplogger.Info("  * table " + table.name + " set as unlogged")
	}
	return nil
}
