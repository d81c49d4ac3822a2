// Package config loads applekraken.yml, overlays APPLEKRAKEN_* environment
// variables and converts the result into the values the picker, the orchard
// and the simulated effector are built from.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/applekraken/internal/geometry"
	"github.com/dusk-indust/applekraken/internal/logging"
	"github.com/dusk-indust/applekraken/internal/orchestrator"
	"github.com/dusk-indust/applekraken/internal/world"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// FileNames are the config file names Load looks for, in order.
var FileNames = []string{"applekraken.yml", "applekraken.yaml"}

// Config holds project-level settings loaded from applekraken.yml.
type Config struct {
	// GatheringArea is where apples are searched for. Nil means the
	// effector's reach.
	GatheringArea *Area          `yaml:"gatheringArea,omitempty"`
	Effector      EffectorConfig `yaml:"effector"`
	Orchard       OrchardConfig  `yaml:"orchard"`
	TickInterval  time.Duration  `yaml:"tickInterval"`
	Log           LogConfig      `yaml:"log"`
	Journal       JournalConfig  `yaml:"journal"`
}

// Vec3 is a yaml-friendly point.
type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Area describes an oriented box. Rotation is an axis and an angle in degrees.
type Area struct {
	Center      Vec3      `yaml:"center"`
	HalfExtents Vec3      `yaml:"halfExtents"`
	Rotation    *Rotation `yaml:"rotation,omitempty"`
}

// Rotation is an axis-angle rotation.
type Rotation struct {
	Axis     Vec3    `yaml:"axis"`
	AngleDeg float64 `yaml:"angleDeg"`
}

// EffectorConfig configures the simulated effector.
type EffectorConfig struct {
	ID           string            `yaml:"id"`
	Reach        Area              `yaml:"reach"`
	PrepareTime  time.Duration     `yaml:"prepareTime"`
	PickTime     time.Duration     `yaml:"pickTime"`
	RetrieveTime time.Duration     `yaml:"retrieveTime"`
	FailureRate  float64           `yaml:"failureRate"`
	Seed         uint64            `yaml:"seed"`
	FailTargets  map[string]string `yaml:"failTargets,omitempty"`
}

// OrchardConfig lists apples explicitly, scatters them randomly, or both.
type OrchardConfig struct {
	Apples  []AppleConfig  `yaml:"apples,omitempty"`
	Scatter *ScatterConfig `yaml:"scatter,omitempty"`
}

// AppleConfig is one explicitly placed apple.
type AppleConfig struct {
	ID       string `yaml:"id"`
	Position Vec3   `yaml:"position"`
}

// ScatterConfig places Count apples at random inside Area, or inside the
// effector's reach when Area is nil.
type ScatterConfig struct {
	Count int    `yaml:"count"`
	Seed  uint64 `yaml:"seed"`
	Area  *Area  `yaml:"area,omitempty"`
}

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// JournalConfig controls the sqlite outcome journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Effector: EffectorConfig{
			ID: "arm-1",
			Reach: Area{
				Center:      Vec3{Z: 1.5},
				HalfExtents: Vec3{X: 1.5, Y: 1.5, Z: 1.5},
			},
			PrepareTime:  200 * time.Millisecond,
			PickTime:     400 * time.Millisecond,
			RetrieveTime: 300 * time.Millisecond,
			Seed:         1,
		},
		Orchard: OrchardConfig{
			Scatter: &ScatterConfig{Count: 12, Seed: 7},
		},
		TickInterval: 50 * time.Millisecond,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Journal: JournalConfig{
			Path: "applekraken.db",
		},
	}
}

// Load attempts to read applekraken.yml or applekraken.yaml from the given
// directory. Values in the file override Defaults. Returns Defaults (not an
// error) if no config file exists.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFile(path)
	}
	return Defaults(), nil
}

// LoadFile reads one config file over Defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes yaml over Defaults. An orchard section in the file replaces
// the default orchard instead of merging with it.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	cfg := Defaults()
	if doc.Kind == 0 {
		return cfg, nil
	}
	if hasTopLevelKey(&doc, "orchard") {
		cfg.Orchard = OrchardConfig{}
	}
	if err := doc.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func hasTopLevelKey(doc *yaml.Node, key string) bool {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return false
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return true
		}
	}
	return false
}

// Environment variables read by ApplyEnv.
const (
	EnvPrefix = "APPLEKRAKEN"

	keyLogLevel      = "log.level"
	keyLogFormat     = "log.format"
	keyTickInterval  = "tick_interval"
	keyJournalPath   = "journal.path"
	keyEffectorID    = "effector.id"
	keyFailureRate   = "effector.failure_rate"
	keyEffectorSeed  = "effector.seed"
	keyScatterCount  = "orchard.scatter_count"
	keyJournalEnable = "journal.enabled"
)

// ApplyEnv overlays APPLEKRAKEN_* environment variables on cfg, e.g.
// APPLEKRAKEN_LOG_LEVEL=debug or APPLEKRAKEN_TICK_INTERVAL=20ms.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	keys := []string{
		keyLogLevel, keyLogFormat, keyTickInterval, keyJournalPath, keyJournalEnable,
		keyEffectorID, keyFailureRate, keyEffectorSeed, keyScatterCount,
	}
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("bind %s: %w", k, err)
		}
	}

	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	str(keyLogLevel, &cfg.Log.Level)
	str(keyLogFormat, &cfg.Log.Format)
	str(keyJournalPath, &cfg.Journal.Path)
	str(keyEffectorID, &cfg.Effector.ID)

	if v.IsSet(keyTickInterval) {
		d, err := time.ParseDuration(v.GetString(keyTickInterval))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, envName(keyTickInterval), err)
		}
		cfg.TickInterval = d
	}
	if v.IsSet(keyJournalEnable) {
		b, err := strconv.ParseBool(v.GetString(keyJournalEnable))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, envName(keyJournalEnable), err)
		}
		cfg.Journal.Enabled = b
	}
	if v.IsSet(keyFailureRate) {
		f, err := strconv.ParseFloat(v.GetString(keyFailureRate), 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, envName(keyFailureRate), err)
		}
		cfg.Effector.FailureRate = f
	}
	if v.IsSet(keyEffectorSeed) {
		n, err := strconv.ParseUint(v.GetString(keyEffectorSeed), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, envName(keyEffectorSeed), err)
		}
		cfg.Effector.Seed = n
	}
	if v.IsSet(keyScatterCount) {
		n, err := strconv.Atoi(v.GetString(keyScatterCount))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, envName(keyScatterCount), err)
		}
		if cfg.Orchard.Scatter == nil {
			cfg.Orchard.Scatter = &ScatterConfig{}
		}
		cfg.Orchard.Scatter.Count = n
	}
	return nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate reports the first problem found in cfg.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tickInterval must be positive", ErrInvalidConfig)
	}
	if c.GatheringArea != nil {
		if err := c.GatheringArea.Obb().Validate(); err != nil {
			return fmt.Errorf("%w: gatheringArea: %v", ErrInvalidConfig, err)
		}
	}

	e := c.Effector
	if e.ID == "" {
		return fmt.Errorf("%w: effector.id is required", ErrInvalidConfig)
	}
	if err := e.Reach.Obb().Validate(); err != nil {
		return fmt.Errorf("%w: effector.reach: %v", ErrInvalidConfig, err)
	}
	if e.PrepareTime < 0 || e.PickTime < 0 || e.RetrieveTime < 0 {
		return fmt.Errorf("%w: effector timings must not be negative", ErrInvalidConfig)
	}
	if math.IsNaN(e.FailureRate) || e.FailureRate < 0 || e.FailureRate > 1 {
		return fmt.Errorf("%w: effector.failureRate %v outside [0,1]", ErrInvalidConfig, e.FailureRate)
	}

	seen := make(map[string]bool, len(c.Orchard.Apples))
	for i, a := range c.Orchard.Apples {
		if a.ID == "" {
			return fmt.Errorf("%w: orchard.apples[%d] has no id", ErrInvalidConfig, i)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: orchard.apples duplicate id %q", ErrInvalidConfig, a.ID)
		}
		seen[a.ID] = true
	}
	if s := c.Orchard.Scatter; s != nil {
		if s.Count < 0 {
			return fmt.Errorf("%w: orchard.scatter.count must not be negative", ErrInvalidConfig)
		}
		if s.Area != nil {
			if err := s.Area.Obb().Validate(); err != nil {
				return fmt.Errorf("%w: orchard.scatter.area: %v", ErrInvalidConfig, err)
			}
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q (want text or json)", ErrInvalidConfig, c.Log.Format)
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("%w: journal.path is required when the journal is enabled", ErrInvalidConfig)
	}
	return nil
}

// Vec converts to a geometry vector.
func (v Vec3) Vec() geometry.Vec3 { return geometry.Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// Obb converts the area to a geometry box.
func (a Area) Obb() geometry.Obb {
	rot := geometry.IdentityQuat()
	if a.Rotation != nil {
		rot = geometry.QuatFromAxisAngle(a.Rotation.Axis.Vec(), a.Rotation.AngleDeg*math.Pi/180)
	}
	return geometry.Obb{Center: a.Center.Vec(), HalfExtents: a.HalfExtents.Vec(), Rotation: rot}
}

// Area returns the configured gathering area, or the zero box when the
// effector's reach should be used.
func (c *Config) Area() geometry.Obb {
	if c.GatheringArea == nil {
		return geometry.Obb{}
	}
	return c.GatheringArea.Obb()
}

// Apples returns the explicit apples followed by the scattered ones.
func (c *Config) Apples() []world.Apple {
	out := make([]world.Apple, 0, len(c.Orchard.Apples))
	for _, a := range c.Orchard.Apples {
		out = append(out, world.Apple{ID: orchestrator.TargetID(a.ID), Position: a.Position.Vec()})
	}
	if s := c.Orchard.Scatter; s != nil && s.Count > 0 {
		box := c.Effector.Reach.Obb()
		if s.Area != nil {
			box = s.Area.Obb()
		}
		out = append(out, world.Scatter(s.Count, box, s.Seed)...)
	}
	return out
}

// EffectorConfig converts the effector section for world.NewSimEffector.
func (c *Config) EffectorConfig(log logging.Logger) world.EffectorConfig {
	var fail map[orchestrator.TargetID]string
	if len(c.Effector.FailTargets) > 0 {
		fail = make(map[orchestrator.TargetID]string, len(c.Effector.FailTargets))
		for id, reason := range c.Effector.FailTargets {
			fail[orchestrator.TargetID(id)] = reason
		}
	}
	return world.EffectorConfig{
		ID:           c.Effector.ID,
		Reach:        c.Effector.Reach.Obb(),
		PrepareTime:  c.Effector.PrepareTime,
		PickTime:     c.Effector.PickTime,
		RetrieveTime: c.Effector.RetrieveTime,
		FailureRate:  c.Effector.FailureRate,
		Seed:         c.Effector.Seed,
		FailTargets:  fail,
		Logger:       log,
	}
}

// Logger builds the process logger from the log section.
func (c *Config) Logger() (*logging.SlogAdapter, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Level: level, Format: c.Log.Format}), nil
}
