package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fystack/guardkv/pkg/constant"
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Environment    string `mapstructure:"environment"`
	NodeName       string `mapstructure:"node_name"`
	DataDir        string `mapstructure:"data_dir"`
	BadgerPassword string `mapstructure:"badger_password"`
	// Initializer is the first authorized principal of a fresh install.
	Initializer string `mapstructure:"initializer"`

	StableStorage *StableStorageConfig `mapstructure:"stable_storage"`
	Consul        *ConsulConfig        `mapstructure:"consul"`
	NATs          *NATsConfig          `mapstructure:"nats"`
	Backup        *BackupConfig        `mapstructure:"backup"`
	Transport     *TransportConfig     `mapstructure:"transport"`
}

type StableStorageConfig struct {
	Backend string `mapstructure:"backend"`
	Key     string `mapstructure:"key"`
}

type ConsulConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

type NATsConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type BackupConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	// EncryptionKey is hex encoded, 16, 24 or 32 bytes.
	EncryptionKey string `mapstructure:"encryption_key"`
}

type TransportConfig struct {
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func mask(s string) string {
	return strings.Repeat("*", len(s))
}

// MarshalJSONMask renders the config with every secret replaced by asterisks.
func (c AppConfig) MarshalJSONMask() string {
	c.BadgerPassword = mask(c.BadgerPassword)
	if c.Consul != nil {
		consul := *c.Consul
		consul.Password = mask(consul.Password)
		consul.Token = mask(consul.Token)
		c.Consul = &consul
	}
	if c.NATs != nil {
		nats := *c.NATs
		nats.Password = mask(nats.Password)
		c.NATs = &nats
	}
	if c.Backup != nil {
		backup := *c.Backup
		backup.EncryptionKey = mask(backup.EncryptionKey)
		c.Backup = &backup
	}

	bytes, err := json.Marshal(c)
	if err != nil {
		logger.Error("Failed to marshal app config", err)
	}
	return string(bytes)
}

// NodeDBPath is where a node keeps its badger store.
func (c *AppConfig) NodeDBPath(nodeName string) string {
	return filepath.Join(c.DataDir, "db", nodeName)
}

// BackupDir is where encrypted badger backups for a node are written.
func (c *AppConfig) BackupDir(nodeName string) string {
	if c.Backup != nil && c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.DataDir, "backups", nodeName)
}

// Validate reports every missing or inconsistent value at once.
func (c *AppConfig) Validate() error {
	var errs []error

	backends := []string{constant.StableBackendBadger, constant.StableBackendConsul}
	if c.StableStorage == nil || !lo.Contains(backends, c.StableStorage.Backend) {
		errs = append(errs, fmt.Errorf("stable_storage.backend must be one of %v", backends))
	}
	if c.BadgerPassword == "" {
		errs = append(errs, errors.New("badger_password is required"))
	}
	if c.NATs == nil || c.NATs.URL == "" {
		errs = append(errs, errors.New("nats.url is required"))
	}
	if c.StableStorage != nil && c.StableStorage.Backend == constant.StableBackendConsul &&
		(c.Consul == nil || c.Consul.Address == "") {
		errs = append(errs, errors.New("consul.address is required for the consul backend"))
	}
	if c.Backup != nil && c.Backup.Enabled && c.Backup.EncryptionKey == "" {
		errs = append(errs, errors.New("backup.encryption_key is required when backups are enabled"))
	}
	return errors.Join(errs...)
}

func setDefaults() {
	viper.SetDefault("environment", constant.EnvDevelopment)
	viper.SetDefault("data_dir", ".")
	viper.SetDefault("stable_storage.backend", constant.StableBackendBadger)
	viper.SetDefault("stable_storage.key", constant.DefaultSnapshotKey)
	viper.SetDefault("transport.subject_prefix", "guardkv")
	viper.SetDefault("transport.request_timeout", "3s")
	viper.SetDefault("backup.enabled", false)

	// registered so AutomaticEnv values show up in AllSettings
	for _, key := range []string{
		"node_name", "badger_password", "initializer",
		"nats.url", "nats.username", "nats.password",
		"consul.address", "consul.username", "consul.password", "consul.token",
		"backup.dir", "backup.encryption_key",
	} {
		viper.SetDefault(key, "")
	}
}

// InitViperConfig reads config.yaml from the working directory, or configFile
// when given. A missing default file is not an error: environment variables
// (nats.url -> NATS_URL) can carry the whole config.
func InitViperConfig(configFile string) error {
	setDefaults()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		return nil
	}

	logger.Info("Reading config file", "file", viper.ConfigFileUsed())
	return nil
}

func LoadConfig() (*AppConfig, error) {
	var config AppConfig
	decoderConfig := &mapstructure.DecoderConfig{
		Result:           &config,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if config.StableStorage == nil {
		config.StableStorage = &StableStorageConfig{}
	}
	if config.Consul == nil {
		config.Consul = &ConsulConfig{}
	}
	if config.NATs == nil {
		config.NATs = &NATsConfig{}
	}
	if config.Backup == nil {
		config.Backup = &BackupConfig{}
	}
	if config.Transport == nil {
		config.Transport = &TransportConfig{}
	}
	return &config, nil
}
