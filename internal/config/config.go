package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wegman-software/mapster-go/internal/mapfile"
	"github.com/wegman-software/mapster-go/internal/osmdata"
	"github.com/wegman-software/mapster-go/internal/proj"
)

// EnvPrefix is prepended to every flag name when read from the environment
const EnvPrefix = "MAPSTER"

// ConfigDirs are searched in order for mapster.yaml or mapster.yml
var ConfigDirs = []string{".", "/etc/mapster"}

// Config holds the configuration shared by all commands
type Config struct {
	// generate
	InputFile  string
	OutputFile string
	Partition  string // global or spatial
	Workers    int

	// serve / inspect / export
	DataFile     string
	ListenAddr   string
	DefaultSize  int
	MaxSize      int
	StyleFile    string // Path to style YAML file for render colors
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// export
	BBox       string
	ExportFile string
	SRID       string
	BatchSize  int

	// Logging and metrics
	Verbose         bool
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Partition:       "global",
		Workers:         runtime.NumCPU(),
		ListenAddr:      ":8080",
		DefaultSize:     800,
		MaxSize:         4096,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    60 * time.Second,
		SRID:            "4326",
		BatchSize:       10000,
		MetricsInterval: 30 * time.Second,
	}
}

// PartitionMode parses the configured partition mode
func (c *Config) PartitionMode() (mapfile.Partition, error) {
	return mapfile.ParsePartition(c.Partition)
}

// Validate checks the settings used by the generate command
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if _, err := c.PartitionMode(); err != nil {
		return err
	}
	return nil
}

// ValidateServe checks the settings used by the serve command
func (c *Config) ValidateServe() error {
	if c.DataFile == "" {
		return fmt.Errorf("data file is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DefaultSize < 1 || c.DefaultSize > c.MaxSize {
		return fmt.Errorf("default size must be between 1 and %d", c.MaxSize)
	}
	return nil
}

// ValidateExport checks the settings used by the export command
func (c *Config) ValidateExport() error {
	if c.DataFile == "" {
		return fmt.Errorf("data file is required")
	}
	if c.ExportFile == "" {
		return fmt.Errorf("output file is required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if _, err := ParseBBox(c.BBox); err != nil {
		return err
	}
	if _, err := proj.ParseSRID(c.SRID); err != nil {
		return err
	}
	return nil
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat".
// An empty string selects the whole world.
func ParseBBox(s string) (osmdata.BBox, error) {
	if s == "" {
		return osmdata.World(), nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return osmdata.BBox{}, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return osmdata.BBox{}, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := osmdata.BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
	}
	if bbox.MinLon > bbox.MaxLon {
		return osmdata.BBox{}, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return osmdata.BBox{}, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}
	return bbox, nil
}

// BindEnvironment fills every flag that was not given on the command line from
// MAPSTER_<FLAG> environment variables or a mapster.yaml (or .yml) file in the working
// directory or /etc/mapster.
func BindEnvironment(flags *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := findConfigFile(ConfigDirs); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var firstErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || firstErr != nil || !v.IsSet(f.Name) {
			return
		}
		if err := flags.Set(f.Name, v.GetString(f.Name)); err != nil {
			firstErr = fmt.Errorf("invalid value for %s: %w", f.Name, err)
		}
	})
	return firstErr
}

// findConfigFile returns the first mapster.yaml or mapster.yml in dirs.
// An extensionless file named mapster is ignored.
func findConfigFile(dirs []string) string {
	for _, dir := range dirs {
		for _, name := range []string{"mapster.yaml", "mapster.yml"} {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return path
			}
		}
	}
	return ""
}
