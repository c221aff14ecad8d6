package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/achetronic/forwarder/api"
)

const (
	// Environment variables recognized by the forwarder
	EnvMode      = "MODE"
	EnvDump      = "DUMP"
	EnvDumpWidth = "DUMP_WIDTH"

	DefaultDumpWidth    = 16
	DefaultPollInterval = 1 * time.Second
	DefaultDialTimeout  = 10 * time.Second

	ConfigKind       = "Forwarder"
	ConfigApiVersion = "forwarder/v1"

	// Error messages
	ReadConfigErrorMessage    = "failed reading config file %s"
	InvalidConfigErrorMessage = "config file %s is not valid"
	ReadEnvFileErrorMessage   = "failed reading env file %s"
	ParseEnvErrorMessage      = "failed parsing environment"
	InvalidPortErrorMessage   = "invalid %s %q"
)

// environment represents the options taken from the process environment
type environment struct {
	Mode      string `env:"MODE" envDefault:"TCP"`
	DumpWidth string `env:"DUMP_WIDTH"`
}

// Options represents the inputs the configuration is built from
type Options struct {
	// ConfigFile is an optional YAML manifest with the forwarder spec
	ConfigFile string

	// EnvFile is an optional dotenv file. Its values never override the process environment
	EnvFile string

	// Environ is the process environment in os.Environ() form
	Environ []string

	RemoteHost string
	RemotePort string
	LocalPort  string
}

// Default returns the configuration used when nothing else is given
func Default() api.Config {
	config := api.Config{
		ApiVersion: ConfigApiVersion,
		Kind:       ConfigKind,
	}
	config.Metadata.Name = "forwarder"
	config.Spec = api.Forwarder{
		Listener: api.Listener{
			Protocol: api.ProtocolTCP,
		},
		Dump: api.Dump{
			Width: DefaultDumpWidth,
		},
		PollInterval: DefaultPollInterval,
		DialTimeout:  DefaultDialTimeout,
	}
	return config
}

// LoadYAMLConfig reads a YAML manifest over the given base configuration
func LoadYAMLConfig(filePath string, base api.Config) (config api.Config, err error) {
	config = base

	yfile, err := os.ReadFile(filePath)
	if err != nil {
		return config, errors.Wrapf(err, ReadConfigErrorMessage, filePath)
	}

	// Try to load config into the object
	err = yaml.Unmarshal(yfile, &config)
	if err != nil {
		return config, errors.Wrapf(err, InvalidConfigErrorMessage, filePath)
	}

	return config, nil
}

// Load builds the configuration from defaults, the optional manifest, the environment and the
// positional arguments, in increasing order of precedence
func Load(opts Options) (config api.Config, err error) {
	config = Default()

	if opts.ConfigFile != "" {
		config, err = LoadYAMLConfig(opts.ConfigFile, config)
		if err != nil {
			return config, err
		}
	}

	environ, err := mergedEnvironment(opts)
	if err != nil {
		return config, err
	}

	var envConfig environment
	err = env.ParseWithOptions(&envConfig, env.Options{Environment: environ})
	if err != nil {
		return config, errors.Wrap(err, ParseEnvErrorMessage)
	}

	// MODE is only honored when present, so the manifest protocol survives otherwise
	if _, found := environ[EnvMode]; found || config.Spec.Listener.Protocol == "" {
		config.Spec.Listener.Protocol = api.ParseProtocol(envConfig.Mode)
	}
	if _, found := environ[EnvDump]; found {
		config.Spec.Dump.Enabled = true
	}
	if _, found := environ[EnvDumpWidth]; found {
		config.Spec.Dump.Width = NormalizeDumpWidth(envConfig.DumpWidth)
	} else {
		config.Spec.Dump.Width = normalizeWidth(config.Spec.Dump.Width)
	}

	config.Spec.Backend.Host = opts.RemoteHost
	if config.Spec.Backend.Port, err = parsePort("remote port", opts.RemotePort); err != nil {
		return config, err
	}
	if config.Spec.Listener.Port, err = parsePort("local port", opts.LocalPort); err != nil {
		return config, err
	}

	if config.Spec.PollInterval <= 0 {
		config.Spec.PollInterval = DefaultPollInterval
	}
	if config.Spec.DialTimeout <= 0 {
		config.Spec.DialTimeout = DefaultDialTimeout
	}
	if config.Spec.MaxSessions < 0 {
		config.Spec.MaxSessions = 0
	}

	return config, nil
}

// NormalizeDumpWidth returns the configured width rounded down to a multiple of 16.
// Values that do not parse, or round down below 16, give the default width
func NormalizeDumpWidth(raw string) int {
	width, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultDumpWidth
	}
	return normalizeWidth(width)
}

func normalizeWidth(width int) int {
	width = (width / 16) * 16
	if width < DefaultDumpWidth {
		return DefaultDumpWidth
	}
	return width
}

// mergedEnvironment merges the dotenv file under the process environment
func mergedEnvironment(opts Options) (map[string]string, error) {
	environ := env.ToMap(opts.Environ)
	if opts.EnvFile == "" {
		return environ, nil
	}

	fileEnv, err := godotenv.Read(opts.EnvFile)
	if err != nil {
		return nil, errors.Wrapf(err, ReadEnvFileErrorMessage, opts.EnvFile)
	}

	for key, value := range fileEnv {
		if _, found := environ[key]; !found {
			environ[key] = value
		}
	}
	return environ, nil
}

// parsePort converts a positional argument into a port number
func parsePort(name, value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, InvalidPortErrorMessage, name, value)
	}
	if port < 0 || port > 65535 {
		return 0, errors.Errorf(InvalidPortErrorMessage, name, value)
	}
	return port, nil
}
