package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/colonyworld/replica/engine/common"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/crontab"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

const (
	_DEFAULT_CONFIG_FILE       = "replica.ini"
	_DEFAULT_LOCALHOST_IP      = "127.0.0.1"
	_DEFAULT_PORT              = 14700
	_DEFAULT_TRANSPORT         = "tcp"
	_DEFAULT_AUTOSAVE_INTERVAL = time.Minute * 5
	_DEFAULT_HTTP_IP           = "127.0.0.1"
	_DEFAULT_LOG_LEVEL         = "debug"
	_DEFAULT_STORAGE_DB        = "replica"
	_DEFAULT_SAVE_SLOT         = "autosave"
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	replicaConfig  *ReplicaConfig
	configLock     sync.Mutex
)

// ServerConfig defines fields of the [server] section
type ServerConfig struct {
	Ip                 string
	Port               int
	Transport          string
	TickInterval       time.Duration
	Linger             time.Duration
	CompressConnection bool
	ReadBufferSize     int
	WriteBufferSize    int
	NoDelay            bool
	MaxConnections     int
	ConsolePort        int
	AutosaveInterval   time.Duration
	AutosaveSlot       string
	BackupSchedule     string // crontab spec of timestamped backup saves, empty disables backups
	LogFile            string
	LogStderr          bool
	LogLevel           string
	HTTPIp             string
	HTTPPort           int
	GoMaxProcs         int
}

// ListenAddr returns the ip:port the server listens on
func (sc *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", sc.Ip, sc.Port)
}

// ClientConfig defines fields of the [client] section
type ClientConfig struct {
	ServerAddr         string
	Transport          string
	TickInterval       time.Duration
	CompressConnection bool // must match compress_connection of the server
	ReadBufferSize     int
	WriteBufferSize    int
	NoDelay            bool
	LogFile            string
	LogStderr          bool
	LogLevel           string
}

// StorageConfig defines fields of the [storage] section
type StorageConfig struct {
	Type       string // Type of storage (filesystem, mongodb, redis, redis_cluster)
	Directory  string // Directory of filesystem storage (filesystem)
	Url        string // Connection URL (mongodb, redis)
	DB         string // Database name (mongodb, redis)
	Collection string // Collection name (mongodb)
	StartNodes common.StringSet
}

// InterestConfig defines fields of the [interest] section.
// Radius overrides the network radius registered for a type key, keyed by `radius.<type_key>`.
type InterestConfig struct {
	DefaultRadius float64
	Radius        map[string]float64
}

// RadiusOf returns the configured radius override of the type key
func (ic *InterestConfig) RadiusOf(typeKey string) (float64, bool) {
	r, ok := ic.Radius[typeKey]
	return r, ok
}

// DebugConfig defines fields of the [debug] section
type DebugConfig struct {
	StrictIntegrity bool
	DebugPackets    bool
	DebugInterest   bool
	DebugSaveLoad   bool
}

// ReplicaConfig defines the total config file structure
type ReplicaConfig struct {
	Server   ServerConfig
	Client   ClientConfig
	Storage  StorageConfig
	Interest InterestConfig
	Debug    DebugConfig
}

func (cfg *ReplicaConfig) String() string {
	return DumpPretty(cfg)
}

// SetConfigFile sets the config file path (replica.ini by default)
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config
func Get() *ReplicaConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if replicaConfig == nil {
		replicaConfig = readReplicaConfig()
	}
	return replicaConfig
}

// Reload forces to reload the whole config
func Reload() *ReplicaConfig {
	configLock.Lock()
	replicaConfig = nil
	configLock.Unlock()

	return Get()
}

// GetServer returns the server config
func GetServer() *ServerConfig {
	return &Get().Server
}

// GetClient returns the client config
func GetClient() *ClientConfig {
	return &Get().Client
}

// GetStorage returns the storage config
func GetStorage() *StorageConfig {
	return &Get().Storage
}

// GetInterest returns the interest config
func GetInterest() *InterestConfig {
	return &Get().Interest
}

// GetDebug returns the debug config
func GetDebug() *DebugConfig {
	return &Get().Debug
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

// Default returns the config used when no config file is provided
func Default() *ReplicaConfig {
	config := &ReplicaConfig{}
	empty := ini.Empty()
	readServerConfig(empty.Section("server"), &config.Server)
	readClientConfig(empty.Section("client"), &config.Client)
	readStorageConfig(empty.Section("storage"), &config.Storage)
	readInterestConfig(empty.Section("interest"), &config.Interest)
	readDebugConfig(empty.Section("debug"), &config.Debug)
	return config
}

func readReplicaConfig() *ReplicaConfig {
	config := ReplicaConfig{}
	gwlog.Infof("Using config file: %s", configFilePath)
	iniFile, err := ini.Load(configFilePath)
	checkConfigError(err, "")

	readServerConfig(iniFile.Section("server"), &config.Server)
	readClientConfig(iniFile.Section("client"), &config.Client)
	readStorageConfig(iniFile.Section("storage"), &config.Storage)
	readInterestConfig(iniFile.Section("interest"), &config.Interest)
	readDebugConfig(iniFile.Section("debug"), &config.Debug)

	for _, sec := range iniFile.Sections() {
		switch strings.ToLower(sec.Name()) {
		case ini.DefaultSection, "server", "client", "storage", "interest", "debug":
		default:
			gwlog.Errorf("unknown section: %s", sec.Name())
		}
	}

	applyEnvOverrides(&config)
	validateConfig(&config)
	return &config
}

func readServerConfig(sec *ini.Section, sc *ServerConfig) {
	sc.Ip = "0.0.0.0"
	sc.Port = _DEFAULT_PORT
	sc.Transport = _DEFAULT_TRANSPORT
	sc.TickInterval = consts.TICK_INTERVAL
	sc.Linger = consts.DEFAULT_LINGER
	sc.ReadBufferSize = consts.SOCKET_READ_BUFFER_SIZE
	sc.WriteBufferSize = consts.SOCKET_WRITE_BUFFER_SIZE
	sc.NoDelay = consts.SET_TCP_NO_DELAY
	sc.AutosaveInterval = _DEFAULT_AUTOSAVE_INTERVAL
	sc.AutosaveSlot = _DEFAULT_SAVE_SLOT
	sc.LogFile = "server.log"
	sc.LogStderr = true
	sc.LogLevel = _DEFAULT_LOG_LEVEL
	sc.HTTPIp = _DEFAULT_HTTP_IP
	sc.HTTPPort = 0 // admin http not enabled by default

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "ip" {
			sc.Ip = key.MustString(sc.Ip)
		} else if name == "port" {
			sc.Port = key.MustInt(sc.Port)
		} else if name == "transport" {
			sc.Transport = key.MustString(sc.Transport)
		} else if name == "tick_interval_ms" {
			sc.TickInterval = time.Millisecond * time.Duration(key.MustInt(int(sc.TickInterval/time.Millisecond)))
		} else if name == "linger_ms" {
			sc.Linger = time.Millisecond * time.Duration(key.MustInt(int(sc.Linger/time.Millisecond)))
		} else if name == "compress_connection" {
			sc.CompressConnection = key.MustBool(sc.CompressConnection)
		} else if name == "read_buffer_size" {
			sc.ReadBufferSize = key.MustInt(sc.ReadBufferSize)
		} else if name == "write_buffer_size" {
			sc.WriteBufferSize = key.MustInt(sc.WriteBufferSize)
		} else if name == "no_delay" {
			sc.NoDelay = key.MustBool(sc.NoDelay)
		} else if name == "max_connections" {
			sc.MaxConnections = key.MustInt(sc.MaxConnections)
		} else if name == "console_port" {
			sc.ConsolePort = key.MustInt(sc.ConsolePort)
		} else if name == "autosave_interval" {
			sc.AutosaveInterval = time.Second * time.Duration(key.MustInt(int(sc.AutosaveInterval/time.Second)))
		} else if name == "autosave_slot" {
			sc.AutosaveSlot = key.MustString(sc.AutosaveSlot)
		} else if name == "backup_schedule" {
			sc.BackupSchedule = strings.TrimSpace(key.MustString(sc.BackupSchedule))
		} else if name == "log_file" {
			sc.LogFile = key.MustString(sc.LogFile)
		} else if name == "log_stderr" {
			sc.LogStderr = key.MustBool(sc.LogStderr)
		} else if name == "log_level" {
			sc.LogLevel = key.MustString(sc.LogLevel)
		} else if name == "http_ip" {
			sc.HTTPIp = key.MustString(sc.HTTPIp)
		} else if name == "http_port" {
			sc.HTTPPort = key.MustInt(sc.HTTPPort)
		} else if name == "gomaxprocs" {
			sc.GoMaxProcs = key.MustInt(sc.GoMaxProcs)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readClientConfig(sec *ini.Section, cc *ClientConfig) {
	cc.ServerAddr = fmt.Sprintf("%s:%d", _DEFAULT_LOCALHOST_IP, _DEFAULT_PORT)
	cc.Transport = _DEFAULT_TRANSPORT
	cc.TickInterval = consts.TICK_INTERVAL
	cc.ReadBufferSize = consts.SOCKET_READ_BUFFER_SIZE
	cc.WriteBufferSize = consts.SOCKET_WRITE_BUFFER_SIZE
	cc.NoDelay = consts.SET_TCP_NO_DELAY
	cc.LogFile = "client.log"
	cc.LogStderr = true
	cc.LogLevel = _DEFAULT_LOG_LEVEL

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "server_addr" {
			cc.ServerAddr = key.MustString(cc.ServerAddr)
		} else if name == "transport" {
			cc.Transport = key.MustString(cc.Transport)
		} else if name == "tick_interval_ms" {
			cc.TickInterval = time.Millisecond * time.Duration(key.MustInt(int(cc.TickInterval/time.Millisecond)))
		} else if name == "compress_connection" {
			cc.CompressConnection = key.MustBool(cc.CompressConnection)
		} else if name == "read_buffer_size" {
			cc.ReadBufferSize = key.MustInt(cc.ReadBufferSize)
		} else if name == "write_buffer_size" {
			cc.WriteBufferSize = key.MustInt(cc.WriteBufferSize)
		} else if name == "no_delay" {
			cc.NoDelay = key.MustBool(cc.NoDelay)
		} else if name == "log_file" {
			cc.LogFile = key.MustString(cc.LogFile)
		} else if name == "log_stderr" {
			cc.LogStderr = key.MustBool(cc.LogStderr)
		} else if name == "log_level" {
			cc.LogLevel = key.MustString(cc.LogLevel)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readStorageConfig(sec *ini.Section, config *StorageConfig) {
	// setup default values
	config.Type = "filesystem"
	config.Directory = "_save"
	config.DB = _DEFAULT_STORAGE_DB
	config.Collection = "snapshots"
	config.StartNodes = common.StringSet{}

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "type" {
			config.Type = key.MustString(config.Type)
		} else if name == "directory" {
			config.Directory = key.MustString(config.Directory)
		} else if name == "url" {
			config.Url = key.MustString(config.Url)
		} else if name == "db" {
			config.DB = key.MustString(config.DB)
		} else if name == "collection" {
			config.Collection = key.MustString(config.Collection)
		} else if strings.HasPrefix(name, "start_nodes_") {
			config.StartNodes.Add(key.MustString(""))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readInterestConfig(sec *ini.Section, config *InterestConfig) {
	config.DefaultRadius = math.Inf(1)
	config.Radius = map[string]float64{}

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "default_radius" {
			config.DefaultRadius = parseRadius(key)
		} else if strings.HasPrefix(name, "radius.") {
			config.Radius[key.Name()[len("radius."):]] = parseRadius(key)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

// parseRadius accepts a non-negative number or inf
func parseRadius(key *ini.Key) float64 {
	r, err := strconv.ParseFloat(strings.TrimSpace(key.String()), 64)
	if err != nil || r < 0 || math.IsNaN(r) {
		gwlog.Panicf("invalid radius %s = %q", key.Name(), key.String())
	}
	return r
}

func readDebugConfig(sec *ini.Section, config *DebugConfig) {
	config.DebugPackets = consts.DEBUG_PACKETS
	config.DebugInterest = consts.DEBUG_INTEREST
	config.DebugSaveLoad = consts.DEBUG_SAVE_LOAD

	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "strict_integrity" {
			config.StrictIntegrity = key.MustBool(config.StrictIntegrity)
		} else if name == "debug_packets" {
			config.DebugPackets = key.MustBool(config.DebugPackets)
		} else if name == "debug_interest" {
			config.DebugInterest = key.MustBool(config.DebugInterest)
		} else if name == "debug_save_load" {
			config.DebugSaveLoad = key.MustBool(config.DebugSaveLoad)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		gwlog.Panicf("read config error: %s", msg)
	}
}

func validateStorageConfig(config *StorageConfig) {
	if config.Type == "filesystem" {
		// directory must be set
		if config.Directory == "" {
			gwlog.Panicf("directory is not set in %s storage config", config.Type)
		}
	} else if config.Type == "mongodb" {
		if config.Url == "" {
			gwlog.Panicf("url is not set in %s storage config", config.Type)
		}
		if config.DB == "" || config.Collection == "" {
			gwlog.Panicf("db and collection must be set in %s storage config", config.Type)
		}
	} else if config.Type == "redis" {
		if config.Url == "" {
			gwlog.Panicf("redis host is not set")
		}
		if _, err := strconv.Atoi(config.DB); err != nil {
			gwlog.Panic(errors.Wrap(err, "redis db must be integer"))
		}
	} else if config.Type == "redis_cluster" {
		if len(config.StartNodes) == 0 {
			gwlog.Panicf("must have at least 1 start_nodes for [storage].redis_cluster")
		}
		for s := range config.StartNodes {
			if s == "" {
				gwlog.Panicf("start_nodes must not be empty")
			}
		}
	} else {
		gwlog.Panicf("unknown storage type: %s", config.Type)
	}
}

func validateConfig(config *ReplicaConfig) {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		gwlog.Panicf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.TickInterval <= 0 || config.Client.TickInterval <= 0 {
		gwlog.Panicf("tick_interval_ms must be positive")
	}
	if config.Server.Linger < 0 {
		gwlog.Panicf("linger_ms must not be negative")
	}
	if config.Server.CompressConnection != config.Client.CompressConnection {
		gwlog.Warnf("compress_connection differs between [server] and [client], clients of this config can not talk to the server")
	}
	if config.Server.BackupSchedule != "" {
		if _, err := crontab.Parse(config.Server.BackupSchedule); err != nil {
			gwlog.Panicf("invalid backup_schedule: %v", err)
		}
	}
	validateStorageConfig(&config.Storage)
}
