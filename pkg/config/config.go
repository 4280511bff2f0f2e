package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"combo/pkg/utils/constants"

	"github.com/spf13/viper"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var config *Config

// configViperMutex 保护全局配置加载时的 viper 全局状态操作
var configViperMutex sync.Mutex

// 命令行标志，由 cmd 包绑定
var (
	ConfigFileFlag string
	LogLevelFlag   string
)

// Config 是 master 启动后不可变的运行参数
type Config struct {
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	RunDir          string        `yaml:"pids" mapstructure:"pids"`
	MasterName      string        `yaml:"masterName" mapstructure:"masterName"`
	Port            int           `yaml:"port" mapstructure:"port"`
	BasePath        string        `yaml:"basePath" mapstructure:"basePath"`
	MaxAge          int           `yaml:"maxAge" mapstructure:"maxAge"`
	RootsFile       string        `yaml:"rootsFile,omitempty" mapstructure:"rootsFile"`
	Server          string        `yaml:"server" mapstructure:"server"`
	LaunchTimeout   time.Duration `yaml:"launchTimeout" mapstructure:"launchTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" mapstructure:"shutdownTimeout"`
	Daemonize       bool          `yaml:"daemon" mapstructure:"daemon"`
	WatchRoots      bool          `yaml:"watch" mapstructure:"watch"`
	MetricsAddr     string        `yaml:"metricsAddr,omitempty" mapstructure:"metricsAddr"`
	Log             Log           `yaml:"log" mapstructure:"log"`

	// URL 路径到文件系统根目录的映射，保持配置中的顺序
	Roots *orderedmap.OrderedMap[string, string] `yaml:"-" mapstructure:"-"`
}

type Log struct {
	Level        string `yaml:"level,omitempty" mapstructure:"level,omitempty"`
	FileEnabled  bool   `yaml:"file_enabled" mapstructure:"file_enabled"`
	FilePath     string `yaml:"file_path,omitempty" mapstructure:"file_path,omitempty"`
	FileSize     int    `yaml:"file_size,omitempty" mapstructure:"file_size,omitempty"`
	FileCompress bool   `yaml:"file_compress,omitempty" mapstructure:"file_compress,omitempty"`
	MaxAge       int    `yaml:"max_age,omitempty" mapstructure:"max_age,omitempty"`
	MaxBackups   int    `yaml:"max_backups,omitempty" mapstructure:"max_backups,omitempty"`
}

func setDefault(v *viper.Viper) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("pids", constants.DefaultRunDir)
	v.SetDefault("masterName", constants.DefaultMasterName)
	v.SetDefault("port", constants.DefaultPort)
	v.SetDefault("basePath", cwd)
	v.SetDefault("maxAge", constants.DefaultMaxAge)
	v.SetDefault("server", constants.DefaultServer)
	v.SetDefault("launchTimeout", 2*time.Second)
	v.SetDefault("shutdownTimeout", time.Duration(0))
	v.SetDefault("daemon", false)
	v.SetDefault("watch", false)
	v.SetDefault("log", map[string]any{
		"level":         constants.DefaultLogLevel,
		"file_path":     constants.DaemonLogFilePath,
		"file_enabled":  false,
		"file_compress": false,
		"file_size":     10,
		"max_age":       7,
		"max_backups":   7,
	})
}

func GetConfig() *Config {
	return config
}

// SetConfig 使用全局 viper 实例加载配置并保存为全局配置
//
// 参数：
//
//	configFile: 配置文件路径，为空或不存在时按默认路径查找 combo.yml
//
// 返回：
//
//	error: 配置文件格式错误或参数非法
func SetConfig(configFile string) error {
	configViperMutex.Lock()
	defer configViperMutex.Unlock()

	cfg, err := Load(viper.GetViper(), configFile)
	if err != nil {
		return err
	}

	config = cfg
	return nil
}

// Load 从指定的 viper 实例读取配置
//
// 读取顺序（后者覆盖前者）：默认值、配置文件、COMBO_ 前缀的环境变量、已绑定的命令行标志。
// rootsFile 中的映射会追加到配置文件 roots 段之后，相同路径以 rootsFile 为准。
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(constants.DefaultDaemonName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("etc")
		v.AddConfigPath("../etc")
		v.AddConfigPath(constants.ComboHome)
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefault(v)

	err := v.ReadInConfig()
	if err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	cfg.BasePath, err = filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, err
	}

	cfg.RunDir, err = filepath.Abs(cfg.RunDir)
	if err != nil {
		return nil, err
	}

	cfg.Roots = orderedmap.New[string, string]()
	if inline := v.GetStringMapString("roots"); len(inline) > 0 {
		for _, route := range sortedKeys(inline) {
			cfg.Roots.Set(route, resolveRoot(cfg.BasePath, inline[route]))
		}
	}

	if cfg.RootsFile != "" {
		roots, err := LoadRoots(cfg.RootsFile, cfg.BasePath)
		if err != nil {
			return nil, err
		}

		for pair := roots.Oldest(); pair != nil; pair = pair.Next() {
			cfg.Roots.Set(pair.Key, pair.Value)
		}
	}

	return &cfg, nil
}
