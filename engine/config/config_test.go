package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/consts"
	"github.com/colonyworld/replica/engine/gwutils"
)

const testConfig = `
[server]
ip = 127.0.0.1
port = 15000
transport = relay
tick_interval_ms = 20
autosave_interval = 60
backup_schedule = */30 * * * *
http_port = 18080

[client]
server_addr = 127.0.0.1:15000
compress_connection = true
no_delay = false

[storage]
type = redis_cluster
start_nodes_1 = 127.0.0.1:7000
start_nodes_2 = 127.0.0.1:7001

[interest]
default_radius = 100
radius.world_clock = inf
radius.settler = 40

[debug]
strict_integrity = true
`

func writeConfig(t *testing.T, content string) string {
	file := filepath.Join(t.TempDir(), "replica.ini")
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	SetConfigFile(file)
	return file
}

func TestLoad(t *testing.T) {
	file := writeConfig(t, testConfig)
	config := Reload()

	assert.Equal(t, file, GetConfigFilePath())
	assert.Equal(t, "127.0.0.1:15000", config.Server.ListenAddr())
	assert.Equal(t, "relay", config.Server.Transport)
	assert.Equal(t, 20*time.Millisecond, config.Server.TickInterval)
	assert.Equal(t, time.Minute, config.Server.AutosaveInterval)
	assert.Equal(t, "*/30 * * * *", config.Server.BackupSchedule)
	assert.Equal(t, 18080, GetServer().HTTPPort)
	assert.Equal(t, "127.0.0.1:15000", GetClient().ServerAddr)
	assert.T(t, GetClient().CompressConnection)
	assert.T(t, !GetClient().NoDelay)
	assert.Equal(t, consts.SOCKET_READ_BUFFER_SIZE, GetClient().ReadBufferSize)
	assert.Equal(t, 2, len(GetStorage().StartNodes))
	assert.T(t, GetDebug().StrictIntegrity, "strict_integrity not read")

	assert.Equal(t, 100.0, GetInterest().DefaultRadius)
	r, ok := GetInterest().RadiusOf("world_clock")
	assert.T(t, ok && math.IsInf(r, 1), "world_clock radius should be inf")
	r, ok = GetInterest().RadiusOf("settler")
	assert.T(t, ok && r == 40, "settler radius should be 40")
	_, ok = GetInterest().RadiusOf("stockpile")
	assert.T(t, !ok, "stockpile has no override")
}

func TestDefault(t *testing.T) {
	config := Default()
	assert.Equal(t, "tcp", config.Server.Transport)
	assert.Equal(t, "filesystem", config.Storage.Type)
	assert.T(t, math.IsInf(config.Interest.DefaultRadius, 1), "default radius should be inf")
	assert.T(t, !config.Debug.StrictIntegrity, "strict_integrity should be off by default")
}

func TestUnknownKeyPanics(t *testing.T) {
	writeConfig(t, "[server]\nno_such_key = 1\n")
	err := gwutils.CatchPanic(func() {
		Reload()
	})
	assert.T(t, err != nil, "unknown key should panic")
}

func TestEnvOverrides(t *testing.T) {
	writeConfig(t, testConfig)
	envFile := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(envFile, []byte("REPLICA_PORT=16000\nREPLICA_TRANSPORT=kcp\n"), 0644)
	defer os.Unsetenv(EnvPort)
	defer os.Unsetenv(EnvTransport)

	LoadEnvFiles(envFile, filepath.Join(t.TempDir(), "missing.env"))
	config := Reload()
	assert.Equal(t, 16000, config.Server.Port)
	assert.Equal(t, "kcp", config.Server.Transport)
	assert.Equal(t, "kcp", config.Client.Transport)
}
