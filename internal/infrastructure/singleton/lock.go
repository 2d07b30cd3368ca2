// Package singleton 同一端口只允许一个服务实例
package singleton

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// HealthCheckTimeout 探测已有实例的超时时间
const HealthCheckTimeout = 2 * time.Second

// ErrAlreadyRunning 端口上已有健康的实例
var ErrAlreadyRunning = errors.New("another instance is already serving this address")

// CheckAndLock 占用监听地址
// 地址空闲时返回 listener；被健康实例占用时返回 ErrAlreadyRunning；
// 被占用但 healthPath 不返回 200 时返回普通错误
func CheckAndLock(addr, healthPath string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err == nil {
		return listener, nil
	}
	if !isAddrInUse(err) {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if isInstanceRunning(addr, healthPath) {
		return nil, ErrAlreadyRunning
	}
	return nil, fmt.Errorf("address %s is in use but %s is not healthy", addr, healthPath)
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows 下 errno 为 WSAEADDRINUSE
	var errno syscall.Errno
	if errors.As(err, &errno) && errno == 10048 {
		return true
	}
	return strings.Contains(err.Error(), "address already in use")
}

func isInstanceRunning(addr, healthPath string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "" {
		host = "localhost"
	}

	client := &http.Client{Timeout: HealthCheckTimeout}
	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + healthPath)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
