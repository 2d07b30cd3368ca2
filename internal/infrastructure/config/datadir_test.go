package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDataDir_Resolution(t *testing.T) {
	home, err := os.UserHomeDir()
	assert.NoError(t, err)

	tests := []struct {
		name    string
		dataDir string
		xdg     string
		want    string
	}{
		{name: "显式目录优先", dataDir: "/srv/shopmind", xdg: "/xdg", want: "/srv/shopmind"},
		{name: "XDG 数据目录", xdg: "/xdg", want: filepath.Join("/xdg", "shopmind")},
		{name: "家目录", want: filepath.Join(home, DefaultDataDirName)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvDataDir, tt.dataDir)
			t.Setenv("XDG_DATA_HOME", tt.xdg)
			ResetDataDir()
			assert.Equal(t, tt.want, GetDataDir())
		})
	}
}

func TestGetDataDir_Cached(t *testing.T) {
	ResetDataDir()
	t.Setenv(EnvDataDir, "/first/path")
	assert.Equal(t, "/first/path", GetDataDir())

	t.Setenv(EnvDataDir, "/second/path")
	assert.Equal(t, "/first/path", GetDataDir(), "缓存值不受环境变量修改影响")

	ResetDataDir()
	assert.Equal(t, "/second/path", GetDataDir())
}

func TestDataPath(t *testing.T) {
	ResetDataDir()
	t.Setenv(EnvDataDir, "/data")
	assert.Equal(t, filepath.Join("/data", "models", "intent_model.json"), DataPath("models", "intent_model.json"))
	ResetDataDir()
}
