package model

import (
	"fmt"
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	FormatJSON = "json"
	FormatText = "text"

	DefaultListen  = ":8470"
	DefaultHistory = 50
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource, cue.Filename("config.cue"))
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version   int       `json:"version" yaml:"version"` // fixed 0 for now
	Service   Service   `json:"service" yaml:"service"`
	Readiness Readiness `json:"readiness" yaml:"readiness,omitempty"`
	Sensors   []Sensor  `json:"sensors" yaml:"sensors"`
}

type Service struct {
	Verbose bool   `json:"verbose" yaml:"verbose"`
	Log     string `json:"log" yaml:"log"`       // "stderr"|"stdout"|"discard"|path
	Format  string `json:"format" yaml:"format"` // "json"|"text"
	// Listen is the address of the control API, empty disables it.
	Listen  string `json:"listen" yaml:"listen"`
	History int    `json:"history" yaml:"history"`
	// Journal is the path of the sqlite journal, empty disables it.
	Journal     string       `json:"journal" yaml:"journal"`
	Maintenance *Maintenance `json:"maintenance,omitempty" yaml:"maintenance,omitempty"`
}

// Maintenance schedules a cleanup on every sensor. Exactly one of Cron and
// Duration is set.
type Maintenance struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"` // ISO8601, e.g. PT1H
}

type Readiness struct {
	Webhook *Webhook `json:"webhook,omitempty" yaml:"webhook,omitempty"`
}

type Webhook struct {
	URL     string `json:"url" yaml:"url"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

type Sensor struct {
	ID      int    `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Latency string `json:"latency" yaml:"latency"`
}

func (s Sensor) LatencyDuration() (time.Duration, error) {
	d, err := time.ParseDuration(s.Latency)
	if err != nil {
		return 0, fmt.Errorf("sensor %d latency: %w", s.ID, err)
	}
	return d, nil
}

func (w Webhook) TimeoutDuration() (time.Duration, error) {
	if w.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(w.Timeout)
}

// DefaultConfig is stored on the first run when no config file exists.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Service: Service{
			Log:     LogStderr,
			Format:  FormatJSON,
			Listen:  DefaultListen,
			History: DefaultHistory,
		},
		Sensors: []Sensor{
			{ID: 1, Name: "fingerprint", Latency: "250ms"},
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	if err := out.check(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// check covers what the schema can't express.
func (c Config) check() error {
	seen := make(map[int]struct{}, len(c.Sensors))
	for _, s := range c.Sensors {
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("%w: duplicate sensor id %d", ErrConfig, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	if m := c.Service.Maintenance; m != nil && m.Cron != "" {
		if _, err := ParseCron(m.Cron); err != nil {
			return fmt.Errorf("%w: maintenance cron: %w", ErrConfig, err)
		}
	}
	if m := c.Service.Maintenance; m != nil && m.Duration != "" {
		if _, err := ParseISODuration(m.Duration); err != nil {
			return fmt.Errorf("%w: maintenance duration: %w", ErrConfig, err)
		}
	}
	return nil
}
