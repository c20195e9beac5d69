// Package config loads the board configuration of pdaltd.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/epdlink/go-typec/pdmsg"
	"github.com/epdlink/go-typec/tcdp"
	"github.com/epdlink/go-typec/tcdpm"
	"github.com/epdlink/go-typec/tcpcdriver/fusb302"
)

// EnvPrefix prefixes environment overrides, e.g. PDALT_POWER_MAX_VOLTAGE_MV.
const EnvPrefix = "PDALT"

// Config is the board configuration of pdaltd.
type Config struct {
	Port     PortConfig     `mapstructure:"port" yaml:"port"`
	Power    PowerConfig    `mapstructure:"power" yaml:"power"`
	AltMode  AltModeConfig  `mapstructure:"alt_mode" yaml:"alt_mode"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// PortConfig selects the port controller and its bus.
type PortConfig struct {
	// Bus is the periph I2C bus name, "" for the first bus found.
	Bus      string `mapstructure:"bus" yaml:"bus"`
	Part     string `mapstructure:"part" yaml:"part"`
	SpeedHz  int64  `mapstructure:"speed_hz" yaml:"speed_hz"`
	DataRole string `mapstructure:"data_role" yaml:"data_role"`
}

// PowerConfig is the sink power policy. Voltages are in mV, currents in mA
// and powers in mW.
type PowerConfig struct {
	MaxVoltage     uint16   `mapstructure:"max_voltage_mv" yaml:"max_voltage_mv"`
	MaxCurrent     uint16   `mapstructure:"max_current_ma" yaml:"max_current_ma"`
	MaxPower       uint32   `mapstructure:"max_power_mw" yaml:"max_power_mw"`
	OperatingPower uint32   `mapstructure:"operating_power_mw" yaml:"operating_power_mw"`
	MinPower       uint32   `mapstructure:"min_power_mw" yaml:"min_power_mw"`
	MinCurrent     uint16   `mapstructure:"min_current_ma" yaml:"min_current_ma"`
	GiveBack       bool     `mapstructure:"give_back" yaml:"give_back"`
	Prefer         string   `mapstructure:"prefer" yaml:"prefer"`
	InputVoltages  []uint16 `mapstructure:"input_voltages_mv" yaml:"input_voltages_mv,flow"`
}

// AltModeConfig enables DisplayPort alternate mode.
type AltModeConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// IdentityConfig is the identity reported as a DisplayPort sink.
type IdentityConfig struct {
	VID       uint16 `mapstructure:"vid" yaml:"vid"`
	PID       uint16 `mapstructure:"pid" yaml:"pid"`
	BCDDevice uint16 `mapstructure:"bcd_device" yaml:"bcd_device"`
	HWVersion uint8  `mapstructure:"hw_version" yaml:"hw_version"`
	FWVersion uint8  `mapstructure:"fw_version" yaml:"fw_version"`
}

// LogConfig sets the log level and the text or json format.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

var parts = map[string]fusb302.MPN{
	"FUSB302BUCX":   fusb302.FUSB302BUCX,
	"FUSB302BMPX":   fusb302.FUSB302BMPX,
	"FUSB302VMPX":   fusb302.FUSB302VMPX,
	"FUSB302B01MPX": fusb302.FUSB302B01MPX,
	"FUSB302B10MPX": fusb302.FUSB302B10MPX,
	"FUSB302B11MPX": fusb302.FUSB302B11MPX,
}

var preferences = map[string]tcdpm.VoltagePreference{
	"none": tcdpm.PreferNone,
	"low":  tcdpm.PreferLowVoltage,
	"high": tcdpm.PreferHighVoltage,
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	p := tcdpm.DefaultBoardPolicy()
	return &Config{
		Port: PortConfig{
			Part:     "FUSB302BMPX",
			SpeedHz:  1_000_000,
			DataRole: "ufp",
		},
		Power: PowerConfig{
			MaxVoltage:     p.MaxVoltage,
			MaxCurrent:     p.MaxCurrent,
			MaxPower:       p.MaxPower,
			OperatingPower: p.OperatingPower,
			Prefer:         "none",
		},
		AltMode: AltModeConfig{Enabled: true},
		Identity: IdentityConfig{
			VID:       tcdp.VIDGoogle,
			PID:       0x5002,
			BCDDevice: 0x0100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file path under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "pdaltd", "config.yaml")
}

// Load reads the YAML config at path, applying PDALT_ environment overrides.
// A missing file is created with the defaults first, so overrides apply on
// the first run too.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Save(path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".pdaltd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Normalize fills zero values with defaults and canonicalizes names.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Port.Part == "" {
		c.Port.Part = d.Port.Part
	}
	c.Port.Part = strings.ToUpper(strings.TrimSpace(c.Port.Part))
	if c.Port.SpeedHz == 0 {
		c.Port.SpeedHz = d.Port.SpeedHz
	}
	c.Port.DataRole = strings.ToLower(strings.TrimSpace(c.Port.DataRole))
	if c.Port.DataRole == "" {
		c.Port.DataRole = d.Port.DataRole
	}

	p := &c.Power
	if p.MaxVoltage == 0 {
		p.MaxVoltage = d.Power.MaxVoltage
	}
	if p.MaxCurrent == 0 {
		p.MaxCurrent = d.Power.MaxCurrent
	}
	if p.MaxPower == 0 {
		p.MaxPower = d.Power.MaxPower
	}
	if p.OperatingPower == 0 {
		p.OperatingPower = d.Power.OperatingPower
	}
	p.Prefer = strings.ToLower(strings.TrimSpace(p.Prefer))
	if p.Prefer == "" {
		p.Prefer = d.Power.Prefer
	}

	if c.Identity.VID == 0 {
		c.Identity.VID = d.Identity.VID
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if _, ok := parts[c.Port.Part]; !ok {
		return fmt.Errorf("port.part %q is not a known FUSB302 part", c.Port.Part)
	}
	if c.Port.SpeedHz <= 0 || c.Port.SpeedHz > 1_000_000 {
		return fmt.Errorf("port.speed_hz must be between 1 and 1000000, got %d", c.Port.SpeedHz)
	}
	if c.Port.DataRole != "ufp" && c.Port.DataRole != "dfp" {
		return fmt.Errorf("port.data_role must be ufp or dfp, got %q", c.Port.DataRole)
	}
	if _, ok := preferences[c.Power.Prefer]; !ok {
		return fmt.Errorf("power.prefer must be one of none, low, high; got %q", c.Power.Prefer)
	}
	if _, err := c.BoardPolicy(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// BoardPolicy returns the validated power policy.
func (c *Config) BoardPolicy() (tcdpm.BoardPolicy, error) {
	p := tcdpm.BoardPolicy{
		MaxVoltage:     c.Power.MaxVoltage,
		MaxCurrent:     c.Power.MaxCurrent,
		MaxPower:       c.Power.MaxPower,
		OperatingPower: c.Power.OperatingPower,
		GiveBack:       c.Power.GiveBack,
		MinCurrent:     c.Power.MinCurrent,
		MinPower:       c.Power.MinPower,
		Prefer:         preferences[c.Power.Prefer],
		InputVoltages:  c.Power.InputVoltages,
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("power: %w", err)
	}
	return p, nil
}

// MPN returns the configured FUSB302 part.
func (c *Config) MPN() fusb302.MPN {
	return parts[c.Port.Part]
}

// DataRole returns the configured data role.
func (c *Config) DataRole() pdmsg.DataRole {
	if c.Port.DataRole == "dfp" {
		return pdmsg.DataRoleDFP
	}
	return pdmsg.DataRoleUFP
}

// SinkIdentity returns the identity reported as a DisplayPort sink.
func (c *Config) SinkIdentity() tcdp.Identity {
	return tcdp.Identity{
		VID:       c.Identity.VID,
		PID:       c.Identity.PID,
		BCDDevice: c.Identity.BCDDevice,
		HWVersion: c.Identity.HWVersion,
		FWVersion: c.Identity.FWVersion,
	}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
