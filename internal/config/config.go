package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	StdoutTraces bool   `yaml:"stdout_traces"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Codec       CodecConfig       `yaml:"codec"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
	Noise       []NoiseDefinition `yaml:"noise"`
	Bus         BusConfig         `yaml:"bus"`
	ResultStore ResultStoreConfig `yaml:"result_store"`
	Report      ReportConfig      `yaml:"report"`
}

type CodecConfig struct {
	Mode           string `yaml:"mode"` // http, exec, wasm, mock
	Endpoint       string `yaml:"endpoint"`
	Command        string `yaml:"command"`
	Module         string `yaml:"module"`
	TimeoutMS      int    `yaml:"timeout_ms"`
	PingAttempts   int    `yaml:"ping_attempts"`
	PingIntervalMS int    `yaml:"ping_interval_ms"`
	SampleRate     int    `yaml:"sample_rate"`
}

type EvaluationConfig struct {
	Groups          []int  `yaml:"groups"`
	StringsPerGroup int    `yaml:"strings_per_group"`
	Seed            uint64 `yaml:"seed"` // 0 picks a random seed
	Workers         int    `yaml:"workers"`
	Verbose         bool   `yaml:"verbose"`
}

// NoiseDefinition is the on-disk shape of one catalogue entry.
type NoiseDefinition struct {
	Name       string      `yaml:"name"`
	Model      string      `yaml:"model"`
	Parameters []string    `yaml:"parameters"`
	Cases      []NoiseCase `yaml:"cases"`
}

type NoiseCase struct {
	Values     []float64 `yaml:"values"`
	Difficulty string    `yaml:"difficulty"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

type ResultStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type ReportConfig struct {
	JSONPath string `yaml:"json_path"`
	HTMLPath string `yaml:"html_path"`
	XLSXPath string `yaml:"xlsx_path"`
}

func Default() Config {
	return Config{
		RuntimeName: "codecbench",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "0.0.0.0",
			Port:    8081,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		Codec: CodecConfig{
			Mode:           "http",
			Endpoint:       "http://localhost:8000",
			TimeoutMS:      60000,
			PingAttempts:   5,
			PingIntervalMS: 1000,
			SampleRate:     44100,
		},
		Evaluation: EvaluationConfig{
			Groups:          []int{1, 10, 100, 1000, 10000, 20000, 30000},
			StringsPerGroup: 5,
			Workers:         1,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "codecbench.progress",
		},
		ResultStore: ResultStoreConfig{
			Path:          "./data/codecbench.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxRuns:       100,
		},
		Report: ReportConfig{
			JSONPath: "report.json",
			HTMLPath: "report.html",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "CODECBENCH_RUNTIME_NAME")
	overrideString(&cfg.Environment, "CODECBENCH_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "CODECBENCH_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "CODECBENCH_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CODECBENCH_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CODECBENCH_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CODECBENCH_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CODECBENCH_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "CODECBENCH_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.Codec.Mode, "CODECBENCH_CODEC_MODE")
	overrideString(&cfg.Codec.Endpoint, "CODECBENCH_CODEC_ENDPOINT")
	overrideString(&cfg.Codec.Command, "CODECBENCH_CODEC_COMMAND")
	overrideString(&cfg.Codec.Module, "CODECBENCH_CODEC_MODULE")
	overrideInt(&cfg.Codec.TimeoutMS, "CODECBENCH_CODEC_TIMEOUT_MS")
	overrideInt(&cfg.Codec.PingAttempts, "CODECBENCH_CODEC_PING_ATTEMPTS")
	overrideInt(&cfg.Codec.PingIntervalMS, "CODECBENCH_CODEC_PING_INTERVAL_MS")
	overrideIntSlice(&cfg.Evaluation.Groups, "CODECBENCH_EVALUATION_GROUPS")
	overrideInt(&cfg.Evaluation.StringsPerGroup, "CODECBENCH_EVALUATION_STRINGS_PER_GROUP")
	overrideUint64(&cfg.Evaluation.Seed, "CODECBENCH_EVALUATION_SEED")
	overrideInt(&cfg.Evaluation.Workers, "CODECBENCH_EVALUATION_WORKERS")
	overrideBool(&cfg.Evaluation.Verbose, "CODECBENCH_EVALUATION_VERBOSE")
	overrideBool(&cfg.Bus.Enabled, "CODECBENCH_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "CODECBENCH_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CODECBENCH_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CODECBENCH_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CODECBENCH_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CODECBENCH_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CODECBENCH_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CODECBENCH_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CODECBENCH_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "CODECBENCH_BUS_SUBJECT_PREFIX")
	overrideString(&cfg.ResultStore.Path, "CODECBENCH_RESULT_STORE_PATH")
	overrideString(&cfg.ResultStore.RetentionMode, "CODECBENCH_RESULT_STORE_RETENTION_MODE")
	overrideInt(&cfg.ResultStore.RetentionDays, "CODECBENCH_RESULT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.ResultStore.MaxRuns, "CODECBENCH_RESULT_STORE_MAX_RUNS")
	overrideBool(&cfg.ResultStore.VacuumOnStart, "CODECBENCH_RESULT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Report.JSONPath, "CODECBENCH_REPORT_JSON_PATH")
	overrideString(&cfg.Report.HTMLPath, "CODECBENCH_REPORT_HTML_PATH")
	overrideString(&cfg.Report.XLSXPath, "CODECBENCH_REPORT_XLSX_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideUint64(target *uint64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// overrideIntSlice ignores the variable entirely if any element fails to parse.
func overrideIntSlice(target *[]int, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return
	}
	var parsed []int
	for _, p := range strings.Split(value, ",") {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return
		}
		parsed = append(parsed, n)
	}
	if len(parsed) > 0 {
		*target = parsed
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Codec.Mode {
	case "http", "exec", "wasm", "mock":
	default:
		return errors.New("codec.mode must be one of http|exec|wasm|mock")
	}
	if cfg.Codec.Mode == "http" && cfg.Codec.Endpoint == "" {
		return errors.New("codec.endpoint must be set when mode=http")
	}
	if cfg.Codec.Mode == "exec" && cfg.Codec.Command == "" {
		return errors.New("codec.command must be set when mode=exec")
	}
	if cfg.Codec.Mode == "wasm" && cfg.Codec.Module == "" {
		return errors.New("codec.module must be set when mode=wasm")
	}
	if cfg.Codec.TimeoutMS <= 0 {
		return errors.New("codec.timeout_ms must be positive")
	}
	if cfg.Codec.PingAttempts <= 0 {
		return errors.New("codec.ping_attempts must be >= 1")
	}
	if cfg.Codec.PingIntervalMS < 0 {
		return errors.New("codec.ping_interval_ms must be >= 0")
	}
	if cfg.Codec.SampleRate <= 0 {
		return errors.New("codec.sample_rate must be positive")
	}
	if len(cfg.Evaluation.Groups) == 0 {
		return errors.New("evaluation.groups must not be empty")
	}
	for _, g := range cfg.Evaluation.Groups {
		if g <= 0 {
			return fmt.Errorf("evaluation.groups must contain positive lengths, got %d", g)
		}
	}
	if cfg.Evaluation.StringsPerGroup <= 0 {
		return errors.New("evaluation.strings_per_group must be >= 1")
	}
	if cfg.Evaluation.Workers <= 0 {
		return errors.New("evaluation.workers must be >= 1")
	}
	for i, def := range cfg.Noise {
		if def.Name == "" {
			return fmt.Errorf("noise[%d].name must not be empty", i)
		}
		if def.Model == "" {
			return fmt.Errorf("noise[%d].model must not be empty", i)
		}
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	switch cfg.ResultStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("result_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.ResultStore.RetentionMode != "ephemeral" && cfg.ResultStore.Path == "" {
		return errors.New("result_store.path must not be empty")
	}
	if cfg.ResultStore.RetentionDays < 0 {
		return errors.New("result_store.retention_days must be >= 0")
	}
	return nil
}
