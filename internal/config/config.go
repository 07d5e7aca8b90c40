// Package config loads bootnv configuration from JSONC files, the
// environment and command-line overrides.
package config

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/bootnv/pkg/flash"
	"github.com/calvinalkan/bootnv/pkg/nvram"
)

// Device types.
const (
	DeviceImage = "image"
	DeviceMTD   = "mtd"
)

// Byte orders.
const (
	ByteOrderLittle = "little"
	ByteOrderBig    = "big"
)

// SystemConfigPath is the system-wide config file.
const SystemConfigPath = "/etc/bootnv/config.json"

// EnvConfigPath names the environment variable that replaces
// [SystemConfigPath].
const EnvConfigPath = "BOOTNV_CONFIG"

// Device selects the flash backend.
type Device struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	EraseSize int    `json:"erase_size,omitempty"`
}

// Boot configures slot selection defaults.
type Boot struct {
	DefaultRetries int `json:"default_retries"`
	Partition      int `json:"partition"`
}

// Config holds all configuration options.
type Config struct {
	Device       Device            `json:"device"`
	MaxDataSize  int               `json:"max_data_size"`
	ByteOrder    string            `json:"byte_order"`
	VerifyWrites bool              `json:"verify_writes"`
	Boot         Boot              `json:"boot"`
	Stamp        map[string]string `json:"stamp,omitempty"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	System   string // Path to the system config if loaded, empty otherwise
	Explicit string // Path to the --config file if given, empty otherwise
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Device: Device{
			Type:      DeviceMTD,
			EraseSize: flash.DefaultEraseSize,
		},
		MaxDataSize: nvram.DefaultMaxDataSize,
		ByteOrder:   ByteOrderLittle,
		Boot: Boot{
			DefaultRetries: nvram.DefaultRetries,
			Partition:      1,
		},
	}
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	ConfigPath     string            // -c/--config flag value
	DeviceOverride string            // --device flag value; empty means no override
	TypeOverride   string            // --device-type flag value; empty means no override
	WorkDir        string            // resolves a relative ConfigPath; empty means os.Getwd()
	Env            map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. System config ([SystemConfigPath], or $BOOTNV_CONFIG if set)
// 3. Explicit config file via ConfigPath (must exist)
// 4. CLI overrides.
func Load(input LoadInput) (Config, error) {
	cfg := Default()

	systemPath := input.Env[EnvConfigPath]
	if systemPath == "" {
		systemPath = SystemConfigPath
	}

	loaded, err := loadFile(&cfg, systemPath, false)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.System = systemPath
	}

	if input.ConfigPath != "" {
		path := input.ConfigPath
		if !filepath.IsAbs(path) {
			workDir := input.WorkDir
			if workDir == "" {
				workDir, err = os.Getwd()
				if err != nil {
					return Config{}, fmt.Errorf("cannot get working directory: %w", err)
				}
			}

			path = filepath.Join(workDir, path)
		}

		_, statErr := os.Stat(path)
		if statErr != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}

		_, err = loadFile(&cfg, path, true)
		if err != nil {
			return Config{}, err
		}

		cfg.Sources.Explicit = path
	}

	if input.DeviceOverride != "" {
		cfg.Device.Path = input.DeviceOverride
	}

	if input.TypeOverride != "" {
		cfg.Device.Type = input.TypeOverride
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadFile overlays the file at path onto cfg. Only keys present in the
// file are applied, so a file can switch verify_writes off again. A missing
// file is skipped unless mustExist.
func loadFile(cfg *Config, path string, mustExist bool) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return false, nil
		}

		return false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	parseErr := parse(cfg, data)
	if parseErr != nil {
		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return true, nil
}

// parse decodes JSONC data onto cfg. Keys absent from data leave cfg
// untouched; maps are merged key by key. Unknown keys are rejected.
func parse(cfg *Config, data []byte) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	unmarshalErr := dec.Decode(cfg)
	if unmarshalErr != nil {
		return fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return nil
}

// Validate checks value ranges. It does not require a device path; commands
// that open the device check that separately.
func (c Config) Validate() error {
	switch c.Device.Type {
	case DeviceImage, DeviceMTD:
	default:
		return fmt.Errorf("%w: device.type %q (want %q or %q)", ErrConfigInvalid, c.Device.Type, DeviceImage, DeviceMTD)
	}

	if c.Device.EraseSize < 0 {
		return fmt.Errorf("%w: device.erase_size %d is negative", ErrConfigInvalid, c.Device.EraseSize)
	}

	if c.MaxDataSize <= 0 {
		return fmt.Errorf("%w: max_data_size %d must be positive", ErrConfigInvalid, c.MaxDataSize)
	}

	if c.ByteOrder != ByteOrderLittle && c.ByteOrder != ByteOrderBig {
		return fmt.Errorf("%w: byte_order %q (want %q or %q)", ErrConfigInvalid, c.ByteOrder, ByteOrderLittle, ByteOrderBig)
	}

	if c.Boot.DefaultRetries <= 0 {
		return fmt.Errorf("%w: boot.default_retries %d must be positive", ErrConfigInvalid, c.Boot.DefaultRetries)
	}

	if c.Boot.Partition != 1 && c.Boot.Partition != 2 {
		return fmt.Errorf("%w: boot.partition %d (want 1 or 2)", ErrConfigInvalid, c.Boot.Partition)
	}

	for k, v := range c.Stamp {
		if len(k) > nvram.MaxEntryLen || len(v) > nvram.MaxEntryLen {
			return fmt.Errorf("%w: stamp %q: %w", ErrConfigInvalid, k, nvram.ErrValueTooLong)
		}
	}

	return nil
}

// Order returns the configured wire byte order.
func (c Config) Order() binary.ByteOrder {
	if c.ByteOrder == ByteOrderBig {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

// Stamps returns the stamp entries sorted by key.
func (c Config) Stamps() []nvram.Entry {
	keys := make([]string, 0, len(c.Stamp))
	for k := range c.Stamp {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	out := make([]nvram.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, nvram.Entry{Key: k, Value: c.Stamp[k]})
	}

	return out
}

// Options returns the nvram options this config describes.
func (c Config) Options() nvram.Options {
	return nvram.Options{
		MaxDataSize:  c.MaxDataSize,
		ByteOrder:    c.Order(),
		VerifyWrites: c.VerifyWrites,
		Boot: nvram.BootOptions{
			DefaultRetries:   c.Boot.DefaultRetries,
			RunningPartition: c.Boot.Partition,
		},
		Stamps: c.Stamps(),
	}
}

// Format renders cfg as key=value lines in a stable order.
func Format(c Config) string {
	lines := []string{
		"device.type=" + c.Device.Type,
		"device.path=" + c.Device.Path,
		"device.erase_size=" + strconv.Itoa(c.Device.EraseSize),
		"max_data_size=" + strconv.Itoa(c.MaxDataSize),
		"byte_order=" + c.ByteOrder,
		"verify_writes=" + strconv.FormatBool(c.VerifyWrites),
		"boot.default_retries=" + strconv.Itoa(c.Boot.DefaultRetries),
		"boot.partition=" + strconv.Itoa(c.Boot.Partition),
	}

	for _, e := range c.Stamps() {
		lines = append(lines, "stamp."+e.Key+"="+e.Value)
	}

	return strings.Join(lines, "\n")
}
