package tuning

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Origin Origin `yaml:"origin" envPrefix:"ORIGIN_"`

	TileDegrees        float64 `yaml:"tile_degrees" env:"TILE_DEGREES"`
	SpawnProbability   float64 `yaml:"spawn_probability" env:"SPAWN_PROBABILITY"`
	ViewPaddingTiles   *int    `yaml:"view_padding_tiles" env:"VIEW_PADDING_TILES"`
	PickupRadiusMeters float64 `yaml:"pickup_radius_meters" env:"PICKUP_RADIUS_METERS"`
	RetainOverlay      bool    `yaml:"retain_overlay" env:"RETAIN_OVERLAY"`
	// MaxWindowCells rejects viewports whose padded window is larger.
	MaxWindowCells     int     `yaml:"max_window_cells" env:"MAX_WINDOW_CELLS"`

	// Simulated movement.
	StepDegrees    float64 `yaml:"step_degrees" env:"STEP_DEGREES"`
	CenterOnPlayer *bool   `yaml:"center_on_player" env:"CENTER_ON_PLAYER"`

	Storage Storage `yaml:"storage" envPrefix:"STORAGE_"`
}

type Origin struct {
	Lat float64 `yaml:"lat" env:"LAT"`
	Lng float64 `yaml:"lng" env:"LNG"`
}

type Storage struct {
	CellStoreKey string `yaml:"cell_store_key" env:"CELL_STORE_KEY"`
	PointsKey    string `yaml:"points_key" env:"POINTS_KEY"`
	DBPath       string `yaml:"db_path" env:"DB_PATH"`
	JournalDir   string `yaml:"journal_dir" env:"JOURNAL_DIR"`
}

const (
	EnvPrefix = "WOB_"

	DefaultViewPaddingTiles = 2
	DefaultMaxWindowCells   = 40000
)

// Defaults is the classroom world.
func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

// Load reads a tuning file, fills unset fields with defaults, then applies WOB_* overrides.
func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := ApplyEnv(&t); err != nil {
		return t, err
	}
	t.applyDefaults()
	return t, t.Validate()
}

// ApplyEnv overrides fields from WOB_* environment variables.
func ApplyEnv(t *Tuning) error {
	if err := env.ParseWithOptions(t, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (t *Tuning) Validate() error {
	if t.SpawnProbability > 1 {
		return fmt.Errorf("tuning: spawn_probability %v > 1", t.SpawnProbability)
	}
	if t.Origin.Lat < -90 || t.Origin.Lat > 90 || t.Origin.Lng < -180 || t.Origin.Lng > 180 {
		return fmt.Errorf("tuning: origin out of range: %+v", t.Origin)
	}
	if t.ViewPaddingTiles != nil && *t.ViewPaddingTiles < 0 {
		return fmt.Errorf("tuning: view_padding_tiles %d < 0", *t.ViewPaddingTiles)
	}
	if t.MaxWindowCells < 0 {
		return fmt.Errorf("tuning: max_window_cells %d < 0", t.MaxWindowCells)
	}
	return nil
}

// Padding is the window padding in tiles. Unset means DefaultViewPaddingTiles; 0 is allowed.
func (t Tuning) Padding() int {
	if t.ViewPaddingTiles == nil {
		return DefaultViewPaddingTiles
	}
	return *t.ViewPaddingTiles
}

// WindowCap is the largest padded window a viewport may cover.
func (t Tuning) WindowCap() int {
	if t.MaxWindowCells <= 0 {
		return DefaultMaxWindowCells
	}
	return t.MaxWindowCells
}

// CentersOnPlayer reports whether movement re-centers the viewport.
func (t Tuning) CentersOnPlayer() bool {
	return t.CenterOnPlayer == nil || *t.CenterOnPlayer
}

func (t *Tuning) applyDefaults() {
	if t.Origin == (Origin{}) {
		t.Origin = Origin{Lat: 36.997936938057016, Lng: -122.05703507501151}
	}
	if t.TileDegrees <= 0 {
		t.TileDegrees = 1e-4
	}
	if t.SpawnProbability <= 0 {
		t.SpawnProbability = 0.1
	}
	if t.MaxWindowCells <= 0 {
		t.MaxWindowCells = DefaultMaxWindowCells
	}
	if t.PickupRadiusMeters <= 0 {
		t.PickupRadiusMeters = 50
	}
	if t.StepDegrees <= 0 {
		t.StepDegrees = 0.001
	}
	if t.Storage.CellStoreKey == "" {
		t.Storage.CellStoreKey = "wob_cellstore_v1"
	}
	if t.Storage.PointsKey == "" {
		t.Storage.PointsKey = "wob_points_v1"
	}
	if t.Storage.DBPath == "" {
		t.Storage.DBPath = "./data/wob.db"
	}
	if t.Storage.JournalDir == "" {
		t.Storage.JournalDir = "./data/journal"
	}
}
