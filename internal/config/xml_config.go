// Package config provides XML-based configuration for the CLI and the HTTP
// service.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"PLCForge"`

	// Resource ceilings applied to every parse and build
	Limits LimitsConfig `xml:"Limits"`

	// Header fields stamped on emitted documents
	Document DocumentConfig `xml:"Document"`

	Logging LoggingConfig `xml:"Logging"`

	// HTTP service settings for `plcforge serve`
	Server ServerConfig `xml:"Server"`

	Storage StorageConfig `xml:"Storage"`
}

// LimitsConfig mirrors models.Limits.
type LimitsConfig struct {
	MaxInputBytes      int64 `xml:"MaxInputBytes"`
	MaxPOUs            int   `xml:"MaxPOUs"`
	MaxRungsPerPOU     int   `xml:"MaxRungsPerPOU"`
	MaxElementsPerRung int   `xml:"MaxElementsPerRung"`
}

// DocumentConfig contains the emitted file headers and target defaults
type DocumentConfig struct {
	CompanyName       string `xml:"CompanyName"`
	ProductName       string `xml:"ProductName"`
	ProductVersion    string `xml:"ProductVersion"`
	Author            string `xml:"Author"`
	DefaultTarget     string `xml:"DefaultTarget"`
	SchneiderFirmware string `xml:"SchneiderFirmware"`
}

// LoggingConfig selects the log level and an optional JSON log file
type LoggingConfig struct {
	Level string `xml:"Level"`
	File  string `xml:"File"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	BodyLimit    string `xml:"BodyLimit"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
}

// StorageConfig contains the artifact store settings
type StorageConfig struct {
	ArtifactDirectory string `xml:"ArtifactDirectory"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	l := models.DefaultLimits()
	return &AppConfig{
		Limits: LimitsConfig{
			MaxInputBytes:      l.MaxInputBytes,
			MaxPOUs:            l.MaxPOUs,
			MaxRungsPerPOU:     l.MaxRungsPerPOU,
			MaxElementsPerRung: l.MaxElementsPerRung,
		},
		Document: DocumentConfig{
			CompanyName:       codec.DefaultDocument.CompanyName,
			ProductName:       codec.DefaultDocument.ProductName,
			ProductVersion:    codec.DefaultDocument.ProductVersion,
			DefaultTarget:     string(dialect.SchneiderM221),
			SchneiderFirmware: string(dialect.Firmware16Plus),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			BodyLimit:    "64M",
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Storage: StorageConfig{
			ArtifactDirectory: "./data/artifacts",
		},
	}
}

// LoadConfig loads configuration from an XML file. A missing file is
// created with the defaults. Variables from an optional .env file and the
// process environment override the file.
func LoadConfig(configPath string) (*AppConfig, error) {
	_ = godotenv.Load()

	config := DefaultConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "<!-- plcforge configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)
	content = append(content, '\n')

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() error {
	if v := os.Getenv("PLCFORGE_MAX_INPUT_BYTES"); v != "" {
		n, err := parseSize(v)
		if err != nil {
			return fmt.Errorf("PLCFORGE_MAX_INPUT_BYTES: %w", err)
		}
		c.Limits.MaxInputBytes = n
	}
	if v := os.Getenv("PLCFORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PLCFORGE_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("PLCFORGE_AUTHOR"); v != "" {
		c.Document.Author = v
	}
	if v := os.Getenv("PLCFORGE_ARTIFACT_DIR"); v != "" {
		c.Storage.ArtifactDirectory = v
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Storage.ArtifactDirectory != "" && !filepath.IsAbs(c.Storage.ArtifactDirectory) {
		c.Storage.ArtifactDirectory = filepath.Join(configDir, c.Storage.ArtifactDirectory)
	}
	if c.Logging.File != "" && !filepath.IsAbs(c.Logging.File) {
		c.Logging.File = filepath.Join(configDir, c.Logging.File)
	}
}

// Validate checks the values that cannot be defaulted.
func (c *AppConfig) Validate() error {
	if c.Document.DefaultTarget != "" {
		if _, err := dialect.Parse(c.Document.DefaultTarget); err != nil {
			return fmt.Errorf("Document.DefaultTarget: %w", err)
		}
	}
	if c.Limits.MaxInputBytes < 0 || c.Limits.MaxPOUs < 0 || c.Limits.MaxRungsPerPOU < 0 || c.Limits.MaxElementsPerRung < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if _, err := parseSize(c.Server.BodyLimit); c.Server.BodyLimit != "" && err != nil {
		return fmt.Errorf("Server.BodyLimit: %w", err)
	}
	return nil
}

// ModelLimits converts the configured ceilings. Zero values fall back to the
// defaults.
func (c *AppConfig) ModelLimits() models.Limits {
	l := models.DefaultLimits()
	if c.Limits.MaxInputBytes > 0 {
		l.MaxInputBytes = c.Limits.MaxInputBytes
	}
	if c.Limits.MaxPOUs > 0 {
		l.MaxPOUs = c.Limits.MaxPOUs
	}
	if c.Limits.MaxRungsPerPOU > 0 {
		l.MaxRungsPerPOU = c.Limits.MaxRungsPerPOU
	}
	if c.Limits.MaxElementsPerRung > 0 {
		l.MaxElementsPerRung = c.Limits.MaxElementsPerRung
	}
	return l
}

// CodecOptions returns the options handed to every codec call.
func (c *AppConfig) CodecOptions() codec.Options {
	opts := codec.DefaultOptions()
	opts.Limits = c.ModelLimits()
	if d := c.Document; d.CompanyName != "" || d.ProductName != "" {
		opts.Document = codec.Document{
			CompanyName:    d.CompanyName,
			ProductName:    d.ProductName,
			ProductVersion: d.ProductVersion,
			Author:         d.Author,
		}
	} else {
		opts.Document.Author = d.Author
	}
	if c.Document.SchneiderFirmware != "" {
		opts.Firmware = dialect.ParseFirmware(c.Document.SchneiderFirmware)
	}
	return opts
}

// DefaultTarget returns the dialect used when a command names none.
func (c *AppConfig) DefaultTarget() dialect.Dialect {
	d, err := dialect.Parse(c.Document.DefaultTarget)
	if err != nil {
		return dialect.SchneiderM221
	}
	return d
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// BodyLimitBytes returns the request body ceiling in bytes.
func (c *AppConfig) BodyLimitBytes() int64 {
	n, err := parseSize(c.Server.BodyLimit)
	if err != nil || n <= 0 {
		return c.ModelLimits().MaxInputBytes
	}
	return n
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{c.Storage.ArtifactDirectory}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// parseSize reads a byte count with an optional K, M or G suffix.
func parseSize(s string) (int64, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	t = strings.TrimSuffix(t, "B")
	mult := int64(1)
	switch {
	case strings.HasSuffix(t, "K"):
		mult, t = 1<<10, strings.TrimSuffix(t, "K")
	case strings.HasSuffix(t, "M"):
		mult, t = 1<<20, strings.TrimSuffix(t, "M")
	case strings.HasSuffix(t, "G"):
		mult, t = 1<<30, strings.TrimSuffix(t, "G")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
