package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Pipedrive PipedriveConfig `yaml:"pipedrive" mapstructure:"pipedrive"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Workbook  WorkbookConfig  `yaml:"workbook" mapstructure:"workbook"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PipedriveConfig holds CRM API credentials and request tuning.
type PipedriveConfig struct {
	APIToken     string  `yaml:"api_token" mapstructure:"api_token"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	PageSize     int     `yaml:"page_size" mapstructure:"page_size"`
	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// Timeout returns the per-request timeout.
func (p PipedriveConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// CategoryConfig binds a pipeline id to its output file name.
type CategoryConfig struct {
	ID   int64  `yaml:"id" mapstructure:"id"`
	File string `yaml:"file" mapstructure:"file"`
}

// ExportConfig configures which pipelines are exported and how.
type ExportConfig struct {
	OutputDir     string           `yaml:"output_dir" mapstructure:"output_dir"`
	Format        string           `yaml:"format" mapstructure:"format"`
	SheetName     string           `yaml:"sheet_name" mapstructure:"sheet_name"`
	FilePattern   string           `yaml:"file_pattern" mapstructure:"file_pattern"`
	Categories    []CategoryConfig `yaml:"categories" mapstructure:"categories"`
	CategoryIDs   []int64          `yaml:"category_ids" mapstructure:"category_ids"`
	ColumnsFile   string           `yaml:"columns_file" mapstructure:"columns_file"`
	IDField       string           `yaml:"id_field" mapstructure:"id_field"`
	CategoryField string           `yaml:"category_field" mapstructure:"category_field"`
	StageField    string           `yaml:"stage_field" mapstructure:"stage_field"`
}

// CategoryList returns the configured categories in declaration order.
// Explicit Categories take precedence; otherwise CategoryIDs are expanded
// through FilePattern, where "{id}" is replaced by the pipeline id.
func (e ExportConfig) CategoryList() []CategoryConfig {
	if len(e.Categories) > 0 {
		out := make([]CategoryConfig, len(e.Categories))
		for i, c := range e.Categories {
			if c.File == "" {
				c.File = e.fileFor(c.ID)
			}
			out[i] = c
		}
		return out
	}
	out := make([]CategoryConfig, 0, len(e.CategoryIDs))
	for _, id := range e.CategoryIDs {
		out = append(out, CategoryConfig{ID: id, File: e.fileFor(id)})
	}
	return out
}

func (e ExportConfig) fileFor(id int64) string {
	name := strings.ReplaceAll(e.FilePattern, "{id}", strconv.FormatInt(id, 10))
	ext := "." + e.Format
	if !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return name
}

// WorkbookConfig configures the downstream consolidated workbook refresh.
type WorkbookConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	SofficePath string `yaml:"soffice_path" mapstructure:"soffice_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MetricsConfig configures the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PIPEDRIVE_EXPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("pipedrive.api_token", "PIPEDRIVE_EXPORT_PIPEDRIVE_API_TOKEN", "PIPEDRIVE_API_TOKEN"); err != nil {
		return nil, eris.Wrap(err, "config: bind token env")
	}

	// Defaults
	v.SetDefault("pipedrive.base_url", "https://api.pipedrive.com/v1")
	v.SetDefault("pipedrive.page_size", 500)
	v.SetDefault("pipedrive.max_retries", 5)
	v.SetDefault("pipedrive.timeout_secs", 30)
	v.SetDefault("pipedrive.rate_limit_rps", 8)
	v.SetDefault("export.output_dir", ".")
	v.SetDefault("export.format", "xlsx")
	v.SetDefault("export.sheet_name", "Sheet1")
	v.SetDefault("export.file_pattern", "dados_pipedrive_venda_funil_{id}")
	v.SetDefault("export.category_ids", []int64{})
	v.SetDefault("export.columns_file", "")
	v.SetDefault("export.id_field", "id")
	v.SetDefault("export.category_field", "pipeline_id")
	v.SetDefault("export.stage_field", "stage_id")
	v.SetDefault("workbook.path", "")
	v.SetDefault("workbook.soffice_path", "soffice")
	v.SetDefault("workbook.timeout_secs", 120)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by the given command mode.
// Supported modes: "export", "schema", "refresh", "history".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "export":
		errs = append(errs, c.validateAPI()...)
		errs = append(errs, c.validateExport()...)
	case "schema":
		errs = append(errs, c.validateAPI()...)
	case "refresh":
		if c.Workbook.TimeoutSecs <= 0 {
			errs = append(errs, "workbook.timeout_secs must be > 0")
		}
	case "history":
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres to inspect run history")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateStore()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateAPI() []string {
	var errs []string
	if c.Pipedrive.APIToken == "" {
		errs = append(errs, "pipedrive.api_token is required")
	}
	if c.Pipedrive.BaseURL == "" {
		errs = append(errs, "pipedrive.base_url is required")
	}
	if c.Pipedrive.MaxRetries < 1 {
		errs = append(errs, "pipedrive.max_retries must be >= 1")
	}
	if c.Pipedrive.TimeoutSecs <= 0 {
		errs = append(errs, "pipedrive.timeout_secs must be > 0")
	}
	if c.Pipedrive.RateLimitRPS < 0 {
		errs = append(errs, "pipedrive.rate_limit_rps must be >= 0")
	}
	return errs
}

func (c *Config) validateExport() []string {
	var errs []string
	if c.Pipedrive.PageSize < 1 || c.Pipedrive.PageSize > 500 {
		errs = append(errs, "pipedrive.page_size must be between 1 and 500")
	}
	formatOK := true
	switch c.Export.Format {
	case "xlsx", "csv":
	default:
		formatOK = false
		errs = append(errs, "export.format must be xlsx or csv")
	}
	if c.Export.OutputDir == "" {
		errs = append(errs, "export.output_dir is required")
	}
	if c.Export.IDField == "" || c.Export.CategoryField == "" {
		errs = append(errs, "export.id_field and export.category_field are required")
	}

	cats := c.Export.CategoryList()
	if len(cats) == 0 {
		errs = append(errs, "at least one export category is required")
	}
	seenID := make(map[int64]bool, len(cats))
	seenFile := make(map[string]bool, len(cats))
	for _, cat := range cats {
		if cat.ID <= 0 {
			errs = append(errs, "export category ids must be > 0")
			continue
		}
		if seenID[cat.ID] {
			errs = append(errs, "duplicate export category "+strconv.FormatInt(cat.ID, 10))
		}
		if seenFile[cat.File] {
			errs = append(errs, "duplicate export file "+cat.File)
		}
		if formatOK && !strings.EqualFold(filepath.Ext(cat.File), "."+c.Export.Format) {
			errs = append(errs, "export file "+cat.File+" does not match format "+c.Export.Format)
		}
		seenID[cat.ID] = true
		seenFile[cat.File] = true
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "", "none", "sqlite":
		return nil
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres driver"}
		}
		return nil
	default:
		return []string{"store.driver must be none, sqlite or postgres"}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
