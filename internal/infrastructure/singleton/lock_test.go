package singleton

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestCheckAndLock_AddressFree(t *testing.T) {
	l, err := CheckAndLock(freeAddr(t), "/health")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.NoError(t, l.Close())
}

func TestCheckAndLock_HealthyInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	l, err := CheckAndLock(strings.TrimPrefix(server.URL, "http://"), "/health")
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Nil(t, l)
}

func TestCheckAndLock_UnhealthyInstance(t *testing.T) {
	// 占用端口但不响应 HTTP
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	l, err := CheckAndLock(busy.Addr().String(), "/health")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.Nil(t, l)
}

func TestIsAddrInUse(t *testing.T) {
	l1, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l1.Close()

	_, err = net.Listen("tcp", l1.Addr().String())
	assert.True(t, isAddrInUse(err))

	_, err = net.Listen("tcp", "invalid")
	assert.False(t, isAddrInUse(err))
	assert.False(t, isAddrInUse(nil))
}

func TestIsInstanceRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	assert.False(t, isInstanceRunning(strings.TrimPrefix(server.URL, "http://"), "/health"), "非 200 不视为健康")
	assert.False(t, isInstanceRunning("not-an-addr", "/health"))
}
