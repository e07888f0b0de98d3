package experiment

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/qlmgroup/phoswitch/instrument"
	"github.com/qlmgroup/phoswitch/instrument/kdc101"
)

// AxisConfig describes one motorized axis of the stage.
type AxisConfig struct {
	Port   string
	Baud   int
	Limits kdc101.Limits
}

// Config collects everything needed to bring up the rig.
type Config struct {
	Generator instrument.Config
	X, Y      AxisConfig

	SerialTimeout time.Duration
	HomeTimeout   time.Duration
	MoveTimeout   time.Duration
	Tolerance     float64 // mm

	AnalogAmplitude float64 // V
	BurstPeriod     float64 // s
}

// LoadConfig reads a yaml rig description, applying defaults for
// anything unset.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("error reading config file: %s", err)
	}

	cfg := Config{
		Generator: instrument.Config{
			Port:    v.GetString("generator.port"),
			Baud:    v.GetInt("generator.baud"),
			Timeout: v.GetDuration("serial_timeout"),
		},
		X: AxisConfig{
			Port: v.GetString("x.port"),
			Baud: v.GetInt("x.baud"),
			Limits: kdc101.Limits{
				Min: v.GetFloat64("x.min"),
				Max: v.GetFloat64("x.max"),
			},
		},
		Y: AxisConfig{
			Port: v.GetString("y.port"),
			Baud: v.GetInt("y.baud"),
			Limits: kdc101.Limits{
				Min: v.GetFloat64("y.min"),
				Max: v.GetFloat64("y.max"),
			},
		},
		SerialTimeout:   v.GetDuration("serial_timeout"),
		HomeTimeout:     v.GetDuration("home_timeout"),
		MoveTimeout:     v.GetDuration("move_timeout"),
		Tolerance:       v.GetFloat64("tolerance_mm"),
		AnalogAmplitude: v.GetFloat64("analog_amplitude"),
		BurstPeriod:     v.GetFloat64("burst_period"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("generator.baud", 115200)
	v.SetDefault("x.baud", 115200)
	v.SetDefault("y.baud", 115200)
	v.SetDefault("x.max", 25.0) // KDC101/PRM stage travel, mm
	v.SetDefault("y.max", 25.0)
	v.SetDefault("serial_timeout", 2*time.Second)
	v.SetDefault("home_timeout", DefaultHomeTimeout)
	v.SetDefault("move_timeout", kdc101.DefaultMoveTimeout)
	v.SetDefault("tolerance_mm", kdc101.DefaultTolerance)
	v.SetDefault("analog_amplitude", DefaultAnalogAmplitude)
	v.SetDefault("burst_period", DefaultBurstPeriod)
}

func (c Config) validate() error {
	if c.Generator.Port == "" {
		return fmt.Errorf("config: generator.port is required")
	}
	if c.X.Port == "" || c.Y.Port == "" {
		return fmt.Errorf("config: x.port and y.port are required")
	}
	if c.X.Limits.Max <= c.X.Limits.Min {
		return fmt.Errorf("config: x travel limits %g..%g are empty", c.X.Limits.Min, c.X.Limits.Max)
	}
	if c.Y.Limits.Max <= c.Y.Limits.Min {
		return fmt.Errorf("config: y travel limits %g..%g are empty", c.Y.Limits.Min, c.Y.Limits.Max)
	}
	if c.AnalogAmplitude < 0 || c.AnalogAmplitude > 5 {
		return fmt.Errorf("config: analog_amplitude %g outside 0..5V", c.AnalogAmplitude)
	}
	return nil
}
