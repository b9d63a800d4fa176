package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the service configuration
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Bronze      DatabaseConfig    `yaml:"bronze"`
	Silver      DatabaseConfig    `yaml:"silver"`
	Watermark   WatermarkConfig   `yaml:"watermark"`
	Performance PerformanceConfig `yaml:"performance"`
}

// ServiceConfig holds service-level settings
type ServiceConfig struct {
	Name                string `yaml:"name"`
	HealthPort          string `yaml:"health_port"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// WatermarkConfig holds watermark tracking settings
type WatermarkConfig struct {
	Table      string `yaml:"table"`
	BufferDays int    `yaml:"buffer_days"`
}

// PerformanceConfig holds performance tuning settings
type PerformanceConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills in defaults for optional settings
func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "silver-transformer"
	}
	if c.Service.HealthPort == "" {
		c.Service.HealthPort = "8088"
	}
	if c.Watermark.Table == "" {
		c.Watermark.Table = "etl.watermarks"
	}
	if c.Watermark.BufferDays == 0 {
		c.Watermark.BufferDays = 1
	}
	if c.Performance.BatchSize == 0 {
		c.Performance.BatchSize = 10000
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Service.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be at least 1")
	}

	if c.Watermark.BufferDays < 0 {
		return fmt.Errorf("buffer_days must not be negative")
	}

	if c.Performance.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1")
	}

	if c.Bronze.Host == "" || c.Silver.Host == "" {
		return fmt.Errorf("bronze and silver database hosts are required")
	}

	return nil
}

// PollInterval returns the poll interval as a Duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Service.PollIntervalSeconds) * time.Second
}

// WatermarkBuffer returns the safety buffer as a Duration
func (c *Config) WatermarkBuffer() time.Duration {
	return time.Duration(c.Watermark.BufferDays) * 24 * time.Hour
}

// ConnectionString builds a PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.User, d.Password, d.SSLMode,
	)
}
