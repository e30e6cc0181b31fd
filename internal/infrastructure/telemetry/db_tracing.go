package telemetry

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/marketsync/backend/internal/infrastructure/config"
)

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	Enabled bool
	// DBName is reported as db.name on every query span
	DBName string
	// IncludeVariables puts bound query values into db.statement.
	// Credential rows carry tokens, so keep it off outside development.
	IncludeVariables bool
	// TracerProvider overrides the global provider
	TracerProvider trace.TracerProvider
}

// NewDBTracingConfig derives database tracing settings from telemetry config
func NewDBTracingConfig(cfg config.TelemetryConfig, dbName string) DBTracingConfig {
	return DBTracingConfig{
		Enabled:          cfg.Enabled && cfg.TraceDatabase,
		DBName:           dbName,
		IncludeVariables: cfg.TraceSQLVariables,
	}
}

// RegisterDBTracing installs the otelgorm plugin so every query made through
// db becomes a client span under the caller's context
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.IncludeVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("failed to register otelgorm plugin: %w", err)
	}

	logger.Info("Database tracing enabled",
		zap.String("db_name", cfg.DBName),
		zap.Bool("include_variables", cfg.IncludeVariables),
	)
	return nil
}
