package conf

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/kr/pretty"
	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

var (
	conf *Config
	once sync.Once
)

type Config struct {
	Env      string
	Hertz    Hertz    `yaml:"hertz"`
	TCP      TCP      `yaml:"tcp"`
	Book     Book     `yaml:"book"`
	Redis    Redis    `yaml:"redis"`
	Postgres Postgres `yaml:"postgres"`
	Kafka    Kafka    `yaml:"kafka"`
	Registry Registry `yaml:"registry"`
}

type Hertz struct {
	Service         string `yaml:"service"`
	Address         string `yaml:"address"`
	EnablePprof     bool   `yaml:"enable_pprof"`
	EnableGzip      bool   `yaml:"enable_gzip"`
	EnableAccessLog bool   `yaml:"enable_access_log"`
	LogLevel        string `yaml:"log_level"`
	LogFileName     string `yaml:"log_file_name"`
	LogMaxSize      int    `yaml:"log_max_size"`
	LogMaxBackups   int    `yaml:"log_max_backups"`
	LogMaxAge       int    `yaml:"log_max_age"`
}

// TCP is the raw byte-stream listener, length-prefixed frames over netpoll.
type TCP struct {
	Address string `yaml:"address"`
}

// Book sizes the order manager's queues.
type Book struct {
	InboxSize   int `yaml:"inbox_size"`
	SinkSize    int `yaml:"sink_size"`
	HeartbeatMS int `yaml:"heartbeat_ms"`
}

func (b Book) Heartbeat() time.Duration {
	if b.HeartbeatMS <= 0 {
		return time.Second
	}
	return time.Duration(b.HeartbeatMS) * time.Millisecond
}

type Redis struct {
	Address       string `yaml:"address"`
	Password      string `yaml:"password"`
	Username      string `yaml:"username"`
	DB            int    `yaml:"db"`
	SnapshotTTLMS int    `yaml:"snapshot_ttl_ms"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Kafka struct {
	Brokers         []string `yaml:"brokers"`
	DepthTopic      string   `yaml:"depth_topic"`
	FillsTopic      string   `yaml:"fills_topic"`
	FillsGroup      string   `yaml:"fills_group"`
	DeadLetterTopic string   `yaml:"dead_letter_topic"`
}

type Registry struct {
	RegistryAddress []string `yaml:"registry_address"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
}

// GetConf gets configuration instance
func GetConf() *Config {
	once.Do(initConf)
	return conf
}

func initConf() {
	prefix := "conf"
	confFileRelPath := filepath.Join(prefix, filepath.Join(GetEnv(), "conf.yaml"))
	content, err := ioutil.ReadFile(confFileRelPath)
	if err != nil {
		panic(err)
	}

	conf = new(Config)
	err = yaml.Unmarshal(content, conf)
	if err != nil {
		hlog.Error("parse yaml error - %v", err)
		panic(err)
	}
	if err := validator.Validate(conf); err != nil {
		hlog.Error("validate config error - %v", err)
		panic(err)
	}

	conf.Env = GetEnv()

	pretty.Printf("%+v\n", conf)
}

func GetEnv() string {
	e := os.Getenv("GO_ENV")
	if len(e) == 0 {
		return "test"
	}
	return e
}

func LogLevel() hlog.Level {
	level := GetConf().Hertz.LogLevel
	switch level {
	case "trace":
		return hlog.LevelTrace
	case "debug":
		return hlog.LevelDebug
	case "info":
		return hlog.LevelInfo
	case "notice":
		return hlog.LevelNotice
	case "warn":
		return hlog.LevelWarn
	case "error":
		return hlog.LevelError
	case "fatal":
		return hlog.LevelFatal
	default:
		return hlog.LevelInfo
	}
}
