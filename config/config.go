// Package config is for app wide settings that are unmarshalled
// from Viper (see: /cmd)
package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// DefaultASD is the anti-Shine-Dalgarno sequence passed to OSTIR
// when the caller doesn't provide one
const DefaultASD = "ACCTCCTTA"

// OSTIRConfig is settings for the external OSTIR predictor binary
type OSTIRConfig struct {
	// path or name of the ostir executable
	Bin string `mapstructure:"ostir-bin"`

	// the maximum number of seconds a single ostir call may run
	TimeoutSeconds int `mapstructure:"ostir-timeout-seconds"`
}

// WindowConfig is settings for the screener's sequence windows
type WindowConfig struct {
	// max bp of pre-sequence kept adjacent to the RBS insertion point
	PreSeqMaxBP int `mapstructure:"design-preseq-max-bp"`

	// max bp of CDS kept from the start codon
	CDSMaxBP int `mapstructure:"design-cds-max-bp"`
}

// DesignConfig is settings for the candidate search and refinement
type DesignConfig struct {
	// the default number of annealing iterations
	Iterations int `mapstructure:"design-iterations"`

	// the default number of final candidates returned
	TopCandidates int `mapstructure:"design-top-candidates"`

	// oversampling factor for full-length refinement (>= 1)
	RefinementMultiplier int `mapstructure:"design-full-refinement-multiplier"`

	// the default random seed, empty for nondeterministic
	RandomSeed string `mapstructure:"design-random-seed"`

	// comma separated Shine-Dalgarno cores seeded into random candidates
	SDCores string `mapstructure:"design-sd-cores"`

	// allowed spacing between the SD core and the start codon
	SDSpacingMin int `mapstructure:"design-sd-spacing-min"`
	SDSpacingMax int `mapstructure:"design-sd-spacing-max"`

	// iterations without improvement before restarting from the pool
	RestartPatience int `mapstructure:"design-restart-patience"`

	// trailing window of accepts used to adapt the temperature
	AcceptWindow int `mapstructure:"design-accept-window"`

	// annealing temperature schedule
	TemperatureInit float64 `mapstructure:"design-temperature-init"`
	TemperatureMin  float64 `mapstructure:"design-temperature-min"`
	TemperatureMax  float64 `mapstructure:"design-temperature-max"`
}

// ServerConfig is settings for the HTTP front end
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// seconds a finished background task is kept for polling
	TaskTTLSeconds int `mapstructure:"task-ttl-seconds"`

	// whether large /run inputs switch to a background task by default
	DefaultAsync bool `mapstructure:"default-async"`

	// whether error responses include internal detail
	DebugError bool `mapstructure:"debug-error"`
}

// Config is the root-level settings struct, populated from
// environment variables once at process start and passed by
// reference into the pipeline
type Config struct {
	OSTIR  OSTIRConfig  `mapstructure:",squash"`
	Window WindowConfig `mapstructure:",squash"`
	Design DesignConfig `mapstructure:",squash"`
	Server ServerConfig `mapstructure:",squash"`
}

// environment variable for each viper key
var envKeys = map[string]string{
	"ostir-bin":                         "OSTIR_BIN",
	"ostir-timeout-seconds":             "OSTIR_TIMEOUT_SECONDS",
	"task-ttl-seconds":                  "RBS_TASK_TTL_SECONDS",
	"design-iterations":                 "RBS_DESIGN_ITERATIONS",
	"design-top-candidates":             "RBS_DESIGN_TOP_CANDIDATES",
	"design-preseq-max-bp":              "RBS_DESIGN_PRESEQ_MAX_BP",
	"design-cds-max-bp":                 "RBS_DESIGN_CDS_MAX_BP",
	"design-full-refinement-multiplier": "RBS_DESIGN_FULL_REFINEMENT_MULTIPLIER",
	"design-random-seed":                "RBS_DESIGN_RANDOM_SEED",
	"design-sd-cores":                   "RBS_DESIGN_SD_CORES",
	"design-sd-spacing-min":             "RBS_DESIGN_SD_SPACING_MIN",
	"design-sd-spacing-max":             "RBS_DESIGN_SD_SPACING_MAX",
	"design-restart-patience":           "RBS_DESIGN_RESTART_PATIENCE",
	"design-accept-window":              "RBS_DESIGN_ACCEPT_WINDOW",
	"design-temperature-init":           "RBS_DESIGN_TEMPERATURE_INIT",
	"design-temperature-min":            "RBS_DESIGN_TEMPERATURE_MIN",
	"design-temperature-max":            "RBS_DESIGN_TEMPERATURE_MAX",
	"default-async":                     "RBS_DEFAULT_ASYNC",
	"debug-error":                       "RBS_DEBUG_ERROR",
	"host":                              "HOST",
	"port":                              "PORT",
}

func setDefaults() {
	viper.SetDefault("ostir-bin", "ostir")
	viper.SetDefault("ostir-timeout-seconds", 120)
	viper.SetDefault("task-ttl-seconds", 3600)
	viper.SetDefault("design-iterations", 500)
	viper.SetDefault("design-top-candidates", 10)
	viper.SetDefault("design-preseq-max-bp", 50)
	viper.SetDefault("design-cds-max-bp", 50)
	viper.SetDefault("design-full-refinement-multiplier", 2)
	viper.SetDefault("design-random-seed", "")
	viper.SetDefault("design-sd-cores", "AGGAGG")
	viper.SetDefault("design-sd-spacing-min", 5)
	viper.SetDefault("design-sd-spacing-max", 9)
	viper.SetDefault("design-restart-patience", 100)
	viper.SetDefault("design-accept-window", 20)
	viper.SetDefault("design-temperature-init", 1.0)
	viper.SetDefault("design-temperature-min", 1e-4)
	viper.SetDefault("design-temperature-max", 8.0)
	viper.SetDefault("default-async", true)
	viper.SetDefault("debug-error", false)
	viper.SetDefault("host", "127.0.0.1")
	viper.SetDefault("port", 8000)
}

// New returns a new Config struct populated by Viper settings
// (environment variables and/or command line arguments)
func New() *Config {
	setDefaults()
	for key, env := range envKeys {
		viper.BindEnv(key, env) // nolint:errcheck
	}

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		log.Fatalf("unable to decode settings into struct, %v", err)
	}

	if c.Design.RefinementMultiplier < 1 {
		c.Design.RefinementMultiplier = 1
	}
	if c.Design.SDSpacingMax < c.Design.SDSpacingMin {
		c.Design.SDSpacingMax = c.Design.SDSpacingMin
	}

	return &c
}

// SDCoreList is the cleaned list of SD cores. RNA input is
// accepted, commas separate cores, empties are dropped
func (c *Config) SDCoreList() []string {
	var cores []string
	for _, core := range strings.Split(c.Design.SDCores, ",") {
		core = strings.ToUpper(strings.TrimSpace(core))
		core = strings.ReplaceAll(core, "U", "T")
		if core != "" {
			cores = append(cores, core)
		}
	}

	if len(cores) == 0 {
		cores = []string{"AGGAGG"}
	}
	return cores
}
