package config

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system config
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig web config
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Secret signs admin tokens.
	Secret string `yaml:"secret"`
	// AdminPassword is a bcrypt hash produced by `storefront hash-password`.
	AdminPassword string        `yaml:"admin_password"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

// LogConfig logger config
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// StorageConfig selects the catalog backend: "drive" or "database".
type StorageConfig struct {
	Backend string `yaml:"backend"`
}

// DriveConfig configures the remote document client. The URL fields seed the
// persisted settings the first time the service starts.
type DriveConfig struct {
	FileURL               string        `yaml:"file_url"`
	AppsScriptURL         string        `yaml:"apps_script_url"`
	ProductsJSONUpdateURL string        `yaml:"products_json_update_url"`
	SyncURL               string        `yaml:"sync_url"`
	RelayURL              string        `yaml:"relay_url"`
	ReadTimeout           time.Duration `yaml:"read_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	EndpointRetries       int           `yaml:"endpoint_retries"`
	RetryStep             time.Duration `yaml:"retry_step"`
	SettleDelay           time.Duration `yaml:"settle_delay"`
	BlindWrite            bool          `yaml:"blind_write"`
	VerifyBeforeWrite     bool          `yaml:"verify_before_write"`
	Breaker               bool          `yaml:"breaker"`
	UploadWorkers         int           `yaml:"upload_workers"`
}

// DBConfig database config
type DBConfig struct {
	Type     string `yaml:"type"` // postgres or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// CatalogConfig controls the storefront snapshot and presentation rules.
type CatalogConfig struct {
	RefreshInterval  string        `yaml:"refresh_interval"`
	RefreshDelay     time.Duration `yaml:"refresh_delay"`
	NewWindow        time.Duration `yaml:"new_window"`
	PlaceholderImage string        `yaml:"placeholder_image"`
	ThumbnailWidth   int           `yaml:"thumbnail_width"`
	NodeID           int64         `yaml:"node_id"`
}

type SftpConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"`
	// HostKey is the server public key in authorized_keys format. Empty skips the check.
	HostKey string `yaml:"host_key"`
}

// BackupConfig controls the periodic document backup job.
type BackupConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Schedule string     `yaml:"schedule"`
	Dir      string     `yaml:"dir"`
	Keep     int        `yaml:"keep"`
	Sftp     SftpConfig `yaml:"sftp"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system"`
	Web      WebConfig     `yaml:"web"`
	Logger   LogConfig     `yaml:"logger"`
	Storage  StorageConfig `yaml:"storage"`
	Drive    DriveConfig   `yaml:"drive"`
	Database DBConfig      `yaml:"database"`
	Catalog  CatalogConfig `yaml:"catalog"`
	Backup   BackupConfig  `yaml:"backup"`
}

const (
	BackendDrive    = "drive"
	BackendDatabase = "database"

	DefaultFileURL  = "https://drive.google.com/file/d/1nuTKttBMej3SuIMtO3rJplsCDcJ_chnv/view?usp=sharing"
	DefaultRelayURL = "https://api.allorigins.win/raw?url="
)

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetBackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return path.Join(c.System.Workdir, "backup")
}

// SettingsDBPath is the bbolt file holding runtime settings.
func (c *AppConfig) SettingsDBPath() string {
	return path.Join(c.GetDataDir(), "settings.db")
}

func (c *AppConfig) initDirs() {
	_ = os.MkdirAll(c.GetDataDir(), 0o755)
	_ = os.MkdirAll(c.GetLogDir(), 0o755)
	_ = os.MkdirAll(c.GetBackupDir(), 0o755)
}

// DefaultAppConfig returns the configuration used when no file is present.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "VitasPro",
			Location: "Europe/Belgrade",
			Workdir:  "/var/storefront",
		},
		Web: WebConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Secret:   "9b6de5cc-0731-4bf1-vitaspro-storefront",
			TokenTTL: 12 * time.Hour,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: false,
			Filename:   "/var/storefront/logs/storefront.log",
		},
		Storage: StorageConfig{Backend: BackendDrive},
		Drive: DriveConfig{
			FileURL:           DefaultFileURL,
			RelayURL:          DefaultRelayURL,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			EndpointRetries:   2,
			RetryStep:         time.Second,
			SettleDelay:       2 * time.Second,
			BlindWrite:        true,
			VerifyBeforeWrite: true,
			Breaker:           true,
			UploadWorkers:     4,
		},
		Database: DBConfig{
			Type:     "sqlite",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "storefront",
			User:     "postgres",
			MaxConn:  20,
			IdleConn: 5,
		},
		Catalog: CatalogConfig{
			RefreshInterval:  "@every 30s",
			RefreshDelay:     time.Second,
			NewWindow:        24 * time.Hour,
			PlaceholderImage: "/vitaspro.jpg",
			ThumbnailWidth:   1000,
			NodeID:           1,
		},
		Backup: BackupConfig{
			Schedule: "@daily",
			Keep:     14,
			Sftp:     SftpConfig{Port: 22},
		},
	}
}

// LoadConfig reads the YAML file (falling back to /etc/storefront.yml and
// then to defaults), an optional .env file and STOREFRONT_* overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	_ = godotenv.Load(".env")

	if cfile == "" {
		cfile = "storefront.yml"
	}
	if !fileExists(cfile) {
		cfile = "/etc/storefront.yml"
	}

	cfg := DefaultAppConfig()
	if fileExists(cfile) {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfile)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", cfile)
		}
	}

	applyEnv(cfg)
	cfg.normalize()
	cfg.initDirs()
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	setEnvValue("STOREFRONT_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvValue("STOREFRONT_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("STOREFRONT_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("STOREFRONT_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("STOREFRONT_WEB_PORT", &cfg.Web.Port)
	setEnvValue("STOREFRONT_WEB_SECRET", &cfg.Web.Secret)
	setEnvValue("STOREFRONT_ADMIN_PASSWORD", &cfg.Web.AdminPassword)

	setEnvValue("STOREFRONT_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("STOREFRONT_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)

	setEnvValue("STOREFRONT_STORAGE_BACKEND", &cfg.Storage.Backend)

	setEnvValue("STOREFRONT_DRIVE_FILE_URL", &cfg.Drive.FileURL)
	setEnvValue("STOREFRONT_DRIVE_APPS_SCRIPT_URL", &cfg.Drive.AppsScriptURL)
	setEnvValue("STOREFRONT_DRIVE_UPDATE_URL", &cfg.Drive.ProductsJSONUpdateURL)
	setEnvValue("STOREFRONT_DRIVE_SYNC_URL", &cfg.Drive.SyncURL)
	setEnvBoolValue("STOREFRONT_DRIVE_BLIND_WRITE", &cfg.Drive.BlindWrite)
	setEnvDurationValue("STOREFRONT_DRIVE_READ_TIMEOUT", &cfg.Drive.ReadTimeout)

	setEnvValue("STOREFRONT_DB_TYPE", &cfg.Database.Type)
	setEnvValue("STOREFRONT_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("STOREFRONT_DB_PORT", &cfg.Database.Port)
	setEnvValue("STOREFRONT_DB_NAME", &cfg.Database.Name)
	setEnvValue("STOREFRONT_DB_USER", &cfg.Database.User)
	setEnvValue("STOREFRONT_DB_PWD", &cfg.Database.Passwd)
	setEnvBoolValue("STOREFRONT_DB_DEBUG", &cfg.Database.Debug)

	setEnvBoolValue("STOREFRONT_BACKUP_ENABLED", &cfg.Backup.Enabled)
	setEnvValue("STOREFRONT_BACKUP_SFTP_HOST", &cfg.Backup.Sftp.Host)
	setEnvValue("STOREFRONT_BACKUP_SFTP_PASSWORD", &cfg.Backup.Sftp.Password)
}

// normalize fills zero values a partial YAML file may leave behind.
func (c *AppConfig) normalize() {
	def := DefaultAppConfig()
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend != BackendDatabase {
		c.Storage.Backend = BackendDrive
	}
	if c.Drive.RelayURL == "" {
		c.Drive.RelayURL = def.Drive.RelayURL
	}
	if c.Drive.ReadTimeout <= 0 {
		c.Drive.ReadTimeout = def.Drive.ReadTimeout
	}
	if c.Drive.WriteTimeout <= 0 {
		c.Drive.WriteTimeout = def.Drive.WriteTimeout
	}
	if c.Drive.EndpointRetries < 0 {
		c.Drive.EndpointRetries = 0
	}
	if c.Drive.RetryStep <= 0 {
		c.Drive.RetryStep = def.Drive.RetryStep
	}
	if c.Drive.UploadWorkers <= 0 {
		c.Drive.UploadWorkers = def.Drive.UploadWorkers
	}
	if c.Catalog.RefreshInterval == "" {
		c.Catalog.RefreshInterval = def.Catalog.RefreshInterval
	}
	if c.Catalog.NewWindow <= 0 {
		c.Catalog.NewWindow = def.Catalog.NewWindow
	}
	if c.Catalog.PlaceholderImage == "" {
		c.Catalog.PlaceholderImage = def.Catalog.PlaceholderImage
	}
	if c.Catalog.ThumbnailWidth <= 0 {
		c.Catalog.ThumbnailWidth = def.Catalog.ThumbnailWidth
	}
	if c.Web.TokenTTL <= 0 {
		c.Web.TokenTTL = def.Web.TokenTTL
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = def.Backup.Schedule
	}
	if c.Backup.Sftp.Port == 0 {
		c.Backup.Sftp.Port = 22
	}
}

func fileExists(file string) bool {
	info, err := os.Stat(file)
	return err == nil && !info.IsDir()
}

func setEnvValue(name string, val *string) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	if evalue := os.Getenv(name); evalue != "" {
		*val = cast.ToBool(evalue)
	}
}

func setEnvIntValue(name string, val *int) {
	if evalue := os.Getenv(name); evalue != "" {
		if v, err := cast.ToIntE(evalue); err == nil {
			*val = v
		}
	}
}

func setEnvDurationValue(name string, val *time.Duration) {
	if evalue := os.Getenv(name); evalue != "" {
		if v, err := cast.ToDurationE(evalue); err == nil {
			*val = v
		}
	}
}
