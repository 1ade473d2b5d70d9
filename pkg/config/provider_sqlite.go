package config

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/chrissnell/ndvimonitor/pkg/migrate"
	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewSQLiteProvider creates a new SQLite configuration provider and brings
// the schema up to date.
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := newMigrator(db).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func newMigrator(db *sql.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, migrate.NewFSProvider(migrationsFS, "migrations", "schema_migrations"), nil)
}

// SchemaVersion returns the applied schema migration version
func (s *SQLiteProvider) SchemaVersion() (int, error) {
	return newMigrator(s.db).GetCurrentVersion()
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	pipeline, err := s.GetPipelineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline config: %w", err)
	}
	config.Pipeline = *pipeline

	sensors, err := s.GetSensors()
	if err != nil {
		return nil, fmt.Errorf("failed to load sensors: %w", err)
	}
	config.Sensors = sensors

	rest, err := s.GetRESTServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load REST server config: %w", err)
	}
	config.RESTServer = *rest

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// GetPipelineConfig returns the pipeline defaults, falling back to the
// built-in defaults when none are stored
func (s *SQLiteProvider) GetPipelineConfig() (*PipelineData, error) {
	query := `
		SELECT sigma, threshold, segmentation_enabled, default_sensor
		FROM pipeline_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var pipeline PipelineData
	var defaultSensor sql.NullString
	err := s.db.QueryRow(query).Scan(
		&pipeline.Sigma,
		&pipeline.Threshold,
		&pipeline.SegmentationEnabled,
		&defaultSensor,
	)
	if err == sql.ErrNoRows {
		defaults := DefaultPipelineData()
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline config: %w", err)
	}
	pipeline.DefaultSensor = defaultSensor.String

	return &pipeline, nil
}

// GetSensors returns sensor band layouts from the database
func (s *SQLiteProvider) GetSensors() ([]SensorData, error) {
	query := `
		SELECT name, red_band, nir_band
		FROM sensors
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
		ORDER BY name
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []SensorData
	for rows.Next() {
		var sensor SensorData
		if err := rows.Scan(&sensor.Name, &sensor.RedBand, &sensor.NIRBand); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		sensors = append(sensors, sensor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sensors: %w", err)
	}

	return sensors, nil
}

// GetRESTServerConfig returns the REST server configuration
func (s *SQLiteProvider) GetRESTServerConfig() (*RESTServerData, error) {
	query := `
		SELECT listen_addr, port, max_upload_mb, tls_cert_path, tls_key_path
		FROM rest_server_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var listenAddr, certPath, keyPath sql.NullString
	var port, maxUpload sql.NullInt64
	err := s.db.QueryRow(query).Scan(&listenAddr, &port, &maxUpload, &certPath, &keyPath)
	if err == sql.ErrNoRows {
		return &RESTServerData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query REST server config: %w", err)
	}

	return &RESTServerData{
		ListenAddr:  listenAddr.String,
		Port:        int(port.Int64),
		MaxUploadMB: int(maxUpload.Int64),
		TLSCertPath: certPath.String,
		TLSKeyPath:  keyPath.String,
	}, nil
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.getOrCreateConfigID(tx)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	// Clear existing data
	if err := s.clearExistingConfig(tx, configID); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	p := configData.Pipeline
	_, err = tx.Exec(`
		INSERT INTO pipeline_configs (config_id, sigma, threshold, segmentation_enabled, default_sensor)
		VALUES (?, ?, ?, ?, ?)`,
		configID, p.Sigma, p.Threshold, p.SegmentationEnabled, nullString(p.DefaultSensor),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pipeline config: %w", err)
	}

	for _, sensor := range configData.Sensors {
		_, err = tx.Exec(`INSERT INTO sensors (config_id, name, red_band, nir_band) VALUES (?, ?, ?, ?)`,
			configID, sensor.Name, sensor.RedBand, sensor.NIRBand)
		if err != nil {
			return fmt.Errorf("failed to insert sensor %s: %w", sensor.Name, err)
		}
	}

	r := configData.RESTServer
	_, err = tx.Exec(`
		INSERT INTO rest_server_configs (config_id, listen_addr, port, max_upload_mb, tls_cert_path, tls_key_path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		configID, nullString(r.ListenAddr), r.Port, r.MaxUploadMB, nullString(r.TLSCertPath), nullString(r.TLSKeyPath),
	)
	if err != nil {
		return fmt.Errorf("failed to insert REST server config: %w", err)
	}

	// Commit transaction
	return tx.Commit()
}

func (s *SQLiteProvider) getOrCreateConfigID(tx *sql.Tx) (int64, error) {
	var configID int64
	err := tx.QueryRow("SELECT id FROM configs WHERE name = 'default'").Scan(&configID)
	if err == nil {
		_, err = tx.Exec("UPDATE configs SET updated_at = datetime('now') WHERE id = ?", configID)
		return configID, err
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	result, err := tx.Exec(`INSERT INTO configs (name, created_at, updated_at) VALUES ('default', datetime('now'), datetime('now'))`)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx, configID int64) error {
	queries := []string{
		"DELETE FROM pipeline_configs WHERE config_id = ?",
		"DELETE FROM sensors WHERE config_id = ?",
		"DELETE FROM rest_server_configs WHERE config_id = ?",
	}

	for _, query := range queries {
		if _, err := tx.Exec(query, configID); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
