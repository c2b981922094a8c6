package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

const (
	StorageGCS   = "gcs"
	StorageS3    = "s3"
	StorageLocal = "local"

	WarehouseBigQuery  = "bigquery"
	WarehouseDuckDB    = "duckdb"
	WarehousePostgres  = "postgres"
	WarehouseMySQL     = "mysql"
	WarehouseSQLite    = "sqlite"
	WarehouseSQLServer = "sqlserver"
)

type Config struct {
	Delimiter         string     `json:"delimiter,omitempty"`
	QuoteChar         string     `json:"quotechar,omitempty"`
	DestinationPath   string     `json:"destination_path,omitempty"`
	GoogleFolder      string     `json:"google_folder,omitempty"`
	BucketName        string     `json:"bucket_name,omitempty"`
	Daily             StringFlag `json:"daily,omitempty"`
	BQDataset         string     `json:"bq_dataset,omitempty"`
	UploadToBQ        StringFlag `json:"upload_to_bq,omitempty"`
	AutodetectSchema  bool       `json:"autodetect_schema,omitempty"`
	DisableCollection bool       `json:"disable_collection,omitempty"`

	LogLevel         string         `json:"log_level,omitempty"`
	StorageType      string         `json:"storage_type,omitempty"`
	LocalRoot        string         `json:"local_root,omitempty"`
	AWSRegion        string         `json:"aws_region,omitempty"`
	S3Endpoint       string         `json:"s3_endpoint,omitempty"`
	AWSAccessKeyID   string         `json:"aws_access_key_id,omitempty"`
	AWSSecretKey     string         `json:"aws_secret_access_key,omitempty"`
	WarehouseType    string         `json:"warehouse_type,omitempty"`
	WarehouseURL     string         `json:"warehouse_url,omitempty"`
	WaitForLoad      bool           `json:"wait_for_load,omitempty"`
	ValidateRecords  bool           `json:"validate_records,omitempty"`
	FlushOnExit      bool           `json:"flush_on_exit,omitempty"`
	FlushSchedule    string         `json:"flush_schedule,omitempty"`
	MaxRows          int            `json:"max_rows,omitempty"`
	StreamMaxRows    map[string]int `json:"stream_max_rows,omitempty"`
	FlattenSeparator string         `json:"flatten_separator,omitempty"`
	MetricsAddr      string         `json:"metrics_addr,omitempty"`
	HistoryPath      string         `json:"history_path,omitempty"`
}

// StringFlag holds a config switch that is on only when it is the JSON string "true".
// Other JSON values leave it off.
type StringFlag string

func (f *StringFlag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = StringFlag(s)
		return nil
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("error parsing flag value %s: %w", string(data), err)
	}
	log.WithFields(log.Fields{"value": string(data)}).Warn(`flag is not the string "true", treating it as disabled`)
	*f = ""
	return nil
}

func (f StringFlag) Enabled() bool {
	return f == "true"
}

// ReadConfig reads the JSON config file at filePath, an empty path yields the default config
func ReadConfig(filePath string) (Config, error) {
	var cfg Config

	if filePath != "" {
		config, err := os.ReadFile(filePath)
		if err != nil {
			return cfg, fmt.Errorf("error reading config file %s: %w", filePath, err)
		}

		if err := json.Unmarshal(config, &cfg); err != nil {
			return cfg, fmt.Errorf("error unmarshalling config file %s: %w", filePath, err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
	if c.QuoteChar == "" {
		c.QuoteChar = `"`
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StorageType == "" {
		c.StorageType = StorageGCS
	}
	if c.WarehouseType == "" {
		c.WarehouseType = WarehouseBigQuery
	}
	if c.FlattenSeparator == "" {
		c.FlattenSeparator = "__"
	}
}

func (c *Config) Validate() error {
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return fmt.Errorf("invalid config: delimiter must be a single character, got %q", c.Delimiter)
	}

	switch c.StorageType {
	case StorageGCS, StorageS3, StorageLocal:
	default:
		return fmt.Errorf("invalid config: unsupported storage_type %q", c.StorageType)
	}

	switch c.WarehouseType {
	case WarehouseBigQuery, WarehouseDuckDB, WarehousePostgres, WarehouseMySQL, WarehouseSQLite, WarehouseSQLServer:
	default:
		return fmt.Errorf("invalid config: unsupported warehouse_type %q", c.WarehouseType)
	}

	if c.MaxRows < 0 {
		return fmt.Errorf("invalid config: max_rows cannot be negative")
	}
	for stream, rows := range c.StreamMaxRows {
		if rows <= 0 {
			return fmt.Errorf("invalid config: stream_max_rows for %s must be positive", stream)
		}
	}

	return nil
}

// UsesWarehouse reports whether a warehouse client is needed for truncation or loads
func (c *Config) UsesWarehouse() bool {
	return c.Daily.Enabled() || c.UploadToBQ.Enabled()
}

func (c *Config) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}
