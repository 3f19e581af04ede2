package binutil

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/colonyworld/replica/engine/gwlog"
)

func get(t *testing.T, ts *httptest.Server, path string) (int, string) {
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := ioutil.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestAdminRouter(t *testing.T) {
	ts := httptest.NewServer(NewAdminRouter(AdminHandlers{
		Info: func() interface{} {
			return map[string]int{"entities": 3}
		},
	}))
	defer ts.Close()

	code, body := get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = get(t, ts, "/info")
	assert.Equal(t, http.StatusOK, code)
	var info map[string]int
	assert.Equal(t, nil, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, 3, info["entities"])

	code, body = get(t, ts, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Tf(t, strings.Contains(body, "go_goroutines"), "metrics output missing go collector")

	code, _ = get(t, ts, "/ws")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSetupHTTPServerDisabled(t *testing.T) {
	assert.T(t, SetupHTTPServer("127.0.0.1", 0, AdminHandlers{}) == nil)
}

func TestSetupGWLogFile(t *testing.T) {
	old := gwlog.GetOutput()
	oldLevel := gwlog.GetLevel()
	defer func() {
		gwlog.SetOutput(old)
		gwlog.SetLevel(oldLevel)
	}()

	logFile := filepath.Join(t.TempDir(), "replica.log")
	SetupGWLog("test", "info", logFile, false)
	gwlog.Infof("written to file %d", 7)
	gwlog.Debugf("filtered")
	gwlog.Sync()

	data, err := os.ReadFile(logFile)
	assert.Equal(t, nil, err)
	assert.Tf(t, strings.Contains(string(data), "written to file 7"), "log file content: %q", data)
	assert.Tf(t, !strings.Contains(string(data), "filtered"), "debug should be filtered: %q", data)
}
