package engine

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/openquant-lab/breakwater/internal/indicator"
	"github.com/openquant-lab/breakwater/pkg/errors"
)

// BacktestConfig holds every tunable of a simulation run. Violations are
// fatal: they surface once at Initialize and abort before the loop starts.
type BacktestConfig struct {
	InitialCapital  float64 `yaml:"initial_capital" json:"initial_capital" validate:"required,gt=0" jsonschema:"title=Initial Capital,description=Starting capital for the backtest in USD,minimum=0"`
	StopLoss        float64 `yaml:"stop_loss" json:"stop_loss" validate:"required,gt=0,lt=1" jsonschema:"title=Stop Loss,description=Fractional loss that forces an exit"`
	TakeProfit      float64 `yaml:"take_profit" json:"take_profit" validate:"required,gt=0" jsonschema:"title=Take Profit,description=Fractional gain that forces an exit"`
	MaxPositionSize float64 `yaml:"max_position_size" json:"max_position_size" validate:"required,gt=0,lte=1" jsonschema:"title=Max Position Size,description=Fraction of available cash allocated per entry"`
	MinTradeAmount  float64 `yaml:"min_trade_amount" json:"min_trade_amount" validate:"gte=0" jsonschema:"title=Min Trade Amount,description=Entries below this value are rejected"`
	MaxPositions    int     `yaml:"max_positions" json:"max_positions" validate:"required,gte=1" jsonschema:"title=Max Positions,description=Maximum simultaneous open positions"`
	LookbackDays    int     `yaml:"lookback_days" json:"lookback_days" validate:"required,gte=1" jsonschema:"title=Lookback Days,description=Trailing observations fed to the indicator engine"`
	EntryThreshold  float64 `yaml:"entry_threshold" json:"entry_threshold" validate:"required,gt=0,lte=10" jsonschema:"title=Entry Threshold,description=Minimum total score for an entry"`
	RiskFreeRate    float64 `yaml:"risk_free_rate" json:"risk_free_rate" validate:"gte=0" jsonschema:"title=Risk Free Rate,description=Annual risk-free rate used in the Sharpe ratio"`
	// Parallelism bounds the per-step indicator workers; 0 means NumCPU.
	Parallelism int                        `yaml:"parallelism" json:"parallelism" validate:"gte=0" jsonschema:"title=Parallelism,description=Indicator worker count (0 = NumCPU)"`
	StartTime   optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional lower bound of the simulated range"`
	EndTime     optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional upper bound of the simulated range"`

	Indicator indicator.Config `yaml:"indicator" json:"indicator" jsonschema:"title=Indicator,description=Indicator engine lookbacks/scales/weights"`
}

// UnmarshalYAML implements custom unmarshaling for BacktestConfig so that
// optional bounds map onto Option values and an omitted indicator section
// falls back to the canonical constants.
func (c *BacktestConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type Config struct {
		InitialCapital  float64           `yaml:"initial_capital"`
		StopLoss        float64           `yaml:"stop_loss"`
		TakeProfit      float64           `yaml:"take_profit"`
		MaxPositionSize float64           `yaml:"max_position_size"`
		MinTradeAmount  float64           `yaml:"min_trade_amount"`
		MaxPositions    int               `yaml:"max_positions"`
		LookbackDays    int               `yaml:"lookback_days"`
		EntryThreshold  float64           `yaml:"entry_threshold"`
		RiskFreeRate    float64           `yaml:"risk_free_rate"`
		Parallelism     int               `yaml:"parallelism"`
		StartTime       *time.Time        `yaml:"start_time"`
		EndTime         *time.Time        `yaml:"end_time"`
		Indicator       *indicator.Config `yaml:"indicator"`
	}

	var config Config
	if err := unmarshal(&config); err != nil {
		return err
	}

	c.InitialCapital = config.InitialCapital
	c.StopLoss = config.StopLoss
	c.TakeProfit = config.TakeProfit
	c.MaxPositionSize = config.MaxPositionSize
	c.MinTradeAmount = config.MinTradeAmount
	c.MaxPositions = config.MaxPositions
	c.LookbackDays = config.LookbackDays
	c.EntryThreshold = config.EntryThreshold
	c.RiskFreeRate = config.RiskFreeRate
	c.Parallelism = config.Parallelism

	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	} else {
		c.StartTime = optional.None[time.Time]()
	}

	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	} else {
		c.EndTime = optional.None[time.Time]()
	}

	if config.Indicator != nil {
		c.Indicator = *config.Indicator
	} else {
		c.Indicator = indicator.DefaultConfig()
	}

	return nil
}

// Validate checks the configuration against its constraints.
func (c *BacktestConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest configuration", err)
	}

	return nil
}

// DefaultConfig returns the canonical run configuration.
func DefaultConfig() BacktestConfig {
	return BacktestConfig{
		InitialCapital:  10000,
		StopLoss:        0.10,
		TakeProfit:      0.20,
		MaxPositionSize: 0.10,
		MinTradeAmount:  100,
		MaxPositions:    5,
		LookbackDays:    90,
		EntryThreshold:  7.0,
		RiskFreeRate:    0.02,
		Parallelism:     0,
		StartTime:       optional.None[time.Time](),
		EndTime:         optional.None[time.Time](),
		Indicator:       indicator.DefaultConfig(),
	}
}

// TestConfig returns a configuration suitable for tests, with the given
// capital and a permissive minimum trade amount.
func TestConfig(initialCapital float64) BacktestConfig {
	config := DefaultConfig()
	config.InitialCapital = initialCapital
	config.MinTradeAmount = 0

	return config
}

// GenerateSchema generates a JSON schema for the BacktestConfig.
func (c *BacktestConfig) GenerateSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "backtest-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestConfig.
func (c *BacktestConfig) GenerateSchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(c.GenerateSchema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
