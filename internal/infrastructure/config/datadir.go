package config

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	// EnvDataDir 数据目录环境变量名
	EnvDataDir = "SHOPMIND_DATA_DIR"
	// DefaultDataDirName 家目录下的默认数据目录名
	DefaultDataDirName = ".shopmind"
)

var (
	dataDirMu   sync.Mutex
	dataDirPath string
)

// GetDataDir 数据根目录，首次解析后缓存
// 顺序：SHOPMIND_DATA_DIR → $XDG_DATA_HOME/shopmind → ~/.shopmind → ./.shopmind
func GetDataDir() string {
	dataDirMu.Lock()
	defer dataDirMu.Unlock()
	if dataDirPath == "" {
		dataDirPath = resolveDataDir()
	}
	return dataDirPath
}

// DataPath 数据目录下的路径
func DataPath(elem ...string) string {
	return filepath.Join(append([]string{GetDataDir()}, elem...)...)
}

// ResetDataDir 清除缓存（仅用于测试）
func ResetDataDir() {
	dataDirMu.Lock()
	defer dataDirMu.Unlock()
	dataDirPath = ""
}

func resolveDataDir() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "shopmind")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, DefaultDataDirName)
	}
	return DefaultDataDirName
}
