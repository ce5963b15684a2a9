package config

import (
	_ "embed"
	"errors"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"
)

// ErrNoConfigDir is returned when accessing files of a configuration that
// wasn't loaded from a directory.
var ErrNoConfigDir = errors.New("configuration has no directory")

const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	configFs afero.Fs

	Prompt        string `json:"prompt"`
	MaxLineLength int    `json:"max_line_length" validate:"gte=1,lte=1048576"`
	NullDevice    string `json:"null_device" validate:"required"`
	Color         string `json:"color" validate:"oneof=always auto never"`
	EventLog      string `json:"event_log" validate:"omitempty,excludesall=/"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() (afero.Fs, error) {
	if c.configFs == nil {
		return nil, ErrNoConfigDir
	}
	return c.configFs, nil
}

// EventLogEnabled returns true if events should be recorded.
func (c *Configuration) EventLogEnabled() bool {
	return c.EventLog != "" && c.configFs != nil
}

// OpenEventLog opens the event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	return c.openEventLog(os.O_APPEND | os.O_CREATE | os.O_WRONLY)
}

// ReadEventLog opens the event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	return c.openEventLog(os.O_RDONLY)
}

func (c *Configuration) openEventLog(flag int) (afero.File, error) {
	configFs, err := c.fs()
	if err != nil {
		return nil, err
	}
	if c.EventLog == "" {
		return nil, errors.New("event log is disabled")
	}
	return configFs.OpenFile(c.EventLog, flag, 0600)
}

// Default returns the built-in configuration. It isn't backed by a directory
// so the event log is disabled.
func Default() *Configuration {
	return defaultConfig()
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
