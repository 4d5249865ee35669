package strategy

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is one strategy instance entry in the YAML config file.
type Config struct {
	ID         string  `yaml:"id" json:"id"`
	Name       string  `yaml:"name" json:"name"`
	Template   string  `yaml:"template" json:"template"`
	Symbol     string  `yaml:"symbol" json:"symbol"`
	Parameters Params  `yaml:"parameters" json:"parameters"`
	Weight     float64 `yaml:"weight" json:"weight"` // weighted aggregation; 0 means 1
	Enabled    bool    `yaml:"enabled" json:"enabled"`
}

// ConfigFile is the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfig reads strategy instances from a YAML file. Every entry must
// name a registered template; a typo here should fail loudly at startup
// rather than at the first signal tick.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, cfg := range file.Strategies {
		if !KnownTemplate(cfg.Template) {
			return nil, fmt.Errorf("strategy %q: %w: %q", cfg.ID, ErrUnknownTemplate, cfg.Template)
		}
	}

	return file.Strategies, nil
}

// SyncConfigToDB upserts strategy instances from config into the database.
func SyncConfigToDB(db *sql.DB, configs []Config) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO strategy_instances (id, name, template, symbol, parameters, weight, enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			template = excluded.template,
			symbol = excluded.symbol,
			parameters = excluded.parameters,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, cfg := range configs {
		paramsJSON, err := json.Marshal(cfg.Parameters)
		if err != nil {
			return fmt.Errorf("failed to marshal parameters for strategy %s: %w", cfg.ID, err)
		}

		weight := cfg.Weight
		if weight == 0 {
			weight = 1
		}

		_, err = stmt.Exec(
			cfg.ID,
			cfg.Name,
			cfg.Template,
			cfg.Symbol,
			string(paramsJSON),
			weight,
			cfg.Enabled,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert strategy %s: %w", cfg.ID, err)
		}
	}

	return tx.Commit()
}

// LoadEnabled reads the enabled strategy instances back out of the database.
func LoadEnabled(db *sql.DB) ([]Config, error) {
	rows, err := db.Query(`
		SELECT id, name, template, symbol, parameters, weight, enabled
		FROM strategy_instances
		WHERE enabled = 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		var cfg Config
		var paramsJSON string
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.Template, &cfg.Symbol, &paramsJSON, &cfg.Weight, &cfg.Enabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(paramsJSON), &cfg.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parameters for strategy %s: %w", cfg.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}
