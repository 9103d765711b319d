package config

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS configs (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT NOT NULL UNIQUE,
	workers             INTEGER,
	fail_fast           INTEGER NOT NULL DEFAULT 0,
	input_path          TEXT,
	frequencies         TEXT,
	metrics_listen_addr TEXT,
	created_at          TEXT,
	updated_at          TEXT
);

CREATE TABLE IF NOT EXISTS detection_configs (
	config_id    INTEGER NOT NULL UNIQUE REFERENCES configs(id),
	consecutive  INTEGER,
	threshold    REAL,
	min_obs      INTEGER,
	min_rmse     REAL,
	fit_indices  TEXT,
	test_indices TEXT,
	strategy     TEXT,
	lambda       REAL,
	mask_crit    REAL,
	green_band   INTEGER,
	swir1_band   INTEGER,
	robust       INTEGER NOT NULL DEFAULT 0,
	check_band   INTEGER,
	check_lambda REAL,
	check_crit   REAL,
	check_sd_type TEXT
);

CREATE TABLE IF NOT EXISTS storage_configs (
	config_id                   INTEGER NOT NULL REFERENCES configs(id),
	backend_type                TEXT NOT NULL,
	enabled                     INTEGER NOT NULL DEFAULT 1,
	sqlite_path                 TEXT,
	timescale_connection_string TEXT,
	file_path                   TEXT,
	file_format                 TEXT
);
`

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
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

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// InitSchema creates the configuration tables if they do not exist
func (s *SQLiteProvider) InitSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create config schema: %w", err)
	}
	return nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	var workers sql.NullInt64
	var failFast bool
	var inputPath, frequencies, metricsAddr sql.NullString

	err := s.db.QueryRow(`
		SELECT workers, fail_fast, input_path, frequencies, metrics_listen_addr
		FROM configs WHERE name = 'default'
	`).Scan(&workers, &failFast, &inputPath, &frequencies, &metricsAddr)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no default configuration in %s", s.dbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	config.Workers = int(workers.Int64)
	config.FailFast = failFast
	config.Input.Path = inputPath.String
	config.Metrics.ListenAddr = metricsAddr.String
	if config.Input.Frequencies, err = parseIndices(frequencies); err != nil {
		return nil, fmt.Errorf("failed to parse frequencies: %w", err)
	}

	// Load detection parameters
	detection, err := s.GetDetectionConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load detection config: %w", err)
	}
	config.Detection = *detection

	// Load storage
	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetDetectionConfig returns the detection parameters from the database.
// A missing row yields zero values, which ApplyDefaults later fills in.
func (s *SQLiteProvider) GetDetectionConfig() (*DetectionData, error) {
	query := `
		SELECT consecutive, threshold, min_obs, min_rmse,
		       fit_indices, test_indices, strategy, lambda,
		       mask_crit, green_band, swir1_band, robust,
		       check_band, check_lambda, check_crit, check_sd_type
		FROM detection_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var consecutive, minObs, greenBand, swir1Band sql.NullInt64
	var threshold, minRMSE, lambda, maskCrit sql.NullFloat64
	var fitIndices, testIndices, strategy sql.NullString
	var robust bool
	var checkBand sql.NullInt64
	var checkLambda, checkCrit sql.NullFloat64
	var checkSDType sql.NullString

	err := s.db.QueryRow(query).Scan(
		&consecutive, &threshold, &minObs, &minRMSE,
		&fitIndices, &testIndices, &strategy, &lambda,
		&maskCrit, &greenBand, &swir1Band, &robust,
		&checkBand, &checkLambda, &checkCrit, &checkSDType,
	)
	if err == sql.ErrNoRows {
		return &DetectionData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query detection config: %w", err)
	}

	d := &DetectionData{
		Consecutive: int(consecutive.Int64),
		Threshold:   threshold.Float64,
		MinObs:      int(minObs.Int64),
		MinRMSE:     minRMSE.Float64,
		Strategy:    strategy.String,
		Lambda:      lambda.Float64,
		MaskCrit:    maskCrit.Float64,
		Robust:      robust,
	}
	if greenBand.Valid {
		b := int(greenBand.Int64)
		d.GreenBand = &b
	}
	if swir1Band.Valid {
		b := int(swir1Band.Int64)
		d.SWIR1Band = &b
	}
	if checkBand.Valid {
		d.ResidualCheck = &ResidualCheckData{
			Band:   int(checkBand.Int64),
			Lambda: checkLambda.Float64,
			Crit:   checkCrit.Float64,
			SDType: checkSDType.String,
		}
	}
	if d.FitIndices, err = parseIndices(fitIndices); err != nil {
		return nil, fmt.Errorf("failed to parse fit_indices: %w", err)
	}
	if d.TestIndices, err = parseIndices(testIndices); err != nil {
		return nil, fmt.Errorf("failed to parse test_indices: %w", err)
	}

	return d, nil
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	query := `
		SELECT backend_type, sqlite_path, timescale_connection_string,
		       file_path, file_format
		FROM storage_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default') AND enabled = 1
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}

	for rows.Next() {
		var backendType string
		var sqlitePath, connectionString, filePath, fileFormat sql.NullString

		if err := rows.Scan(&backendType, &sqlitePath, &connectionString, &filePath, &fileFormat); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		switch backendType {
		case "sqlite":
			storage.SQLite = &SQLiteData{Path: sqlitePath.String}
		case "timescaledb":
			if connectionString.Valid {
				storage.TimescaleDB = &TimescaleDBData{
					ConnectionString: connectionString.String,
				}
			}
		case "file":
			storage.File = &FileData{Path: filePath.String, Format: fileFormat.String}
		default:
			return nil, fmt.Errorf("unknown storage backend %q", backendType)
		}
	}

	return storage, rows.Err()
}

// IsReadOnly returns false since SQLite supports writes
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

// SaveConfig replaces the default configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	if err := s.InitSchema(); err != nil {
		return err
	}

	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.upsertConfig(tx, "default", configData)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	for _, query := range []string{
		"DELETE FROM detection_configs WHERE config_id = ?",
		"DELETE FROM storage_configs WHERE config_id = ?",
	} {
		if _, err := tx.Exec(query, configID); err != nil {
			return fmt.Errorf("failed to clear existing config: %w", err)
		}
	}

	if err := s.insertDetection(tx, configID, &configData.Detection); err != nil {
		return fmt.Errorf("failed to insert detection config: %w", err)
	}
	if err := s.insertStorageConfigs(tx, configID, &configData.Storage); err != nil {
		return fmt.Errorf("failed to insert storage configs: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteProvider) upsertConfig(tx *sql.Tx, name string, c *ConfigData) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO configs (name, workers, fail_fast, input_path, frequencies, metrics_listen_addr, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			workers = excluded.workers,
			fail_fast = excluded.fail_fast,
			input_path = excluded.input_path,
			frequencies = excluded.frequencies,
			metrics_listen_addr = excluded.metrics_listen_addr,
			updated_at = excluded.updated_at
	`, name, c.Workers, c.FailFast, nullString(c.Input.Path), formatIndices(c.Input.Frequencies), nullString(c.Metrics.ListenAddr))
	if err != nil {
		return 0, err
	}

	var id int64
	err = tx.QueryRow("SELECT id FROM configs WHERE name = ?", name).Scan(&id)
	return id, err
}

func (s *SQLiteProvider) insertDetection(tx *sql.Tx, configID int64, d *DetectionData) error {
	query := `
		INSERT INTO detection_configs (
			config_id, consecutive, threshold, min_obs, min_rmse,
			fit_indices, test_indices, strategy, lambda,
			mask_crit, green_band, swir1_band, robust,
			check_band, check_lambda, check_crit, check_sd_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var checkBand *int
	var checkLambda, checkCrit any
	var checkSDType sql.NullString
	if rc := d.ResidualCheck; rc != nil {
		checkBand = &rc.Band
		checkLambda, checkCrit = rc.Lambda, rc.Crit
		checkSDType = nullString(rc.SDType)
	}
	_, err := tx.Exec(query,
		configID, d.Consecutive, d.Threshold, d.MinObs, d.MinRMSE,
		formatIndices(d.FitIndices), formatIndices(d.TestIndices), nullString(d.Strategy), d.Lambda,
		d.MaskCrit, nullInt(d.GreenBand), nullInt(d.SWIR1Band), d.Robust,
		nullInt(checkBand), checkLambda, checkCrit, checkSDType,
	)
	return err
}

func (s *SQLiteProvider) insertStorageConfigs(tx *sql.Tx, configID int64, storage *StorageData) error {
	query := `
		INSERT INTO storage_configs (
			config_id, backend_type, enabled, sqlite_path,
			timescale_connection_string, file_path, file_format
		) VALUES (?, ?, 1, ?, ?, ?, ?)
	`

	if storage.SQLite != nil {
		if _, err := tx.Exec(query, configID, "sqlite", storage.SQLite.Path, nil, nil, nil); err != nil {
			return err
		}
	}
	if storage.TimescaleDB != nil {
		if _, err := tx.Exec(query, configID, "timescaledb", nil, storage.TimescaleDB.ConnectionString, nil, nil); err != nil {
			return err
		}
	}
	if storage.File != nil {
		if _, err := tx.Exec(query, configID, "file", nil, nil, storage.File.Path, nullString(storage.File.Format)); err != nil {
			return err
		}
	}
	return nil
}

// formatIndices stores an index list as comma-separated text; nil becomes NULL.
func formatIndices(idx []int) sql.NullString {
	if len(idx) == 0 {
		return sql.NullString{}
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return sql.NullString{String: strings.Join(parts, ","), Valid: true}
}

func parseIndices(s sql.NullString) ([]int, error) {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil, nil
	}
	parts := strings.Split(s.String, ",")
	idx := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		idx[i] = v
	}
	return idx, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
