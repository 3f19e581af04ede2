package config

import (
	"os"
	"strconv"

	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/joho/godotenv"
)

// Environment variables overriding the config file
const (
	EnvIP          = "REPLICA_IP"
	EnvPort        = "REPLICA_PORT"
	EnvTransport   = "REPLICA_TRANSPORT"
	EnvLogLevel    = "REPLICA_LOG_LEVEL"
	EnvHTTPPort    = "REPLICA_HTTP_PORT"
	EnvServerAddr  = "REPLICA_SERVER_ADDR"
	EnvStorageType = "REPLICA_STORAGE_TYPE"
	EnvStorageURL  = "REPLICA_STORAGE_URL"
)

// LoadEnvFiles loads .env files into the process environment, skipping files that do not exist.
// Variables already present in the environment are not overwritten.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			gwlog.Warnf("load env file %s failed: %v", f, err)
		} else {
			gwlog.Infof("Loaded env file %s", f)
		}
	}
}

func applyEnvOverrides(config *ReplicaConfig) {
	if v, ok := os.LookupEnv(EnvIP); ok {
		config.Server.Ip = v
	}
	if v, ok := os.LookupEnv(EnvPort); ok {
		config.Server.Port = envInt(EnvPort, v, config.Server.Port)
	}
	if v, ok := os.LookupEnv(EnvTransport); ok {
		config.Server.Transport = v
		config.Client.Transport = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		config.Server.LogLevel = v
		config.Client.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvHTTPPort); ok {
		config.Server.HTTPPort = envInt(EnvHTTPPort, v, config.Server.HTTPPort)
	}
	if v, ok := os.LookupEnv(EnvServerAddr); ok {
		config.Client.ServerAddr = v
	}
	if v, ok := os.LookupEnv(EnvStorageType); ok {
		config.Storage.Type = v
	}
	if v, ok := os.LookupEnv(EnvStorageURL); ok {
		config.Storage.Url = v
	}
}

func envInt(name string, v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		gwlog.Errorf("invalid %s=%q, using %d", name, v, def)
		return def
	}
	return n
}
