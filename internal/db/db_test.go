package db

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/kanrigate/internal/config"
	"github.com/example/kanrigate/internal/k8s"
)

func TestNewAuditEvent(t *testing.T) {
	ev := NewAuditEvent(k8s.AuditEntry{
		Actor:      "admin",
		Operation:  "create_role_binding",
		Resource:   "rolebinding",
		Name:       "alice___template-namespaced-resources___developer___team-a",
		Username:   "alice",
		Namespace:  "team-a",
		Permission: "developer",
	})
	assert.True(t, ev.Success)
	assert.Empty(t, ev.Error)
	assert.Equal(t, "admin", ev.Actor)
	assert.Equal(t, "team-a", ev.Namespace)

	failed := NewAuditEvent(k8s.AuditEntry{
		Operation: "delete_service_account",
		Username:  "ghost",
		Err:       errors.New("not found"),
	})
	assert.False(t, failed.Success)
	assert.Equal(t, "not found", failed.Error)
}

func TestCloseNil(t *testing.T) {
	assert.NotPanics(t, func() { Close(nil) })
}

// silentListener accepts connections and never writes to them, like a
// database that stalled after the TCP handshake.
func silentListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln
}

func TestAuditStoreRecordDoesNotHangOnStalledDatabase(t *testing.T) {
	ln := silentListener(t)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	cfg := &config.Config{DBHost: host, DBPort: port, DBUser: "kanrigate", DBPassword: "kanrigate", DBName: "kanrigate"}
	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() { Close(gdb) })

	store := NewAuditStore(gdb, nil)
	store.writeTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	start := time.Now()
	go func() {
		store.Record(ctx, k8s.AuditEntry{Operation: "create_service_account", Username: "alice"})
		close(done)
	}()

	select {
	case <-done:
		assert.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a database that never answers")
	}
}

func TestNewAuditStoreDefaults(t *testing.T) {
	store := NewAuditStore(nil, nil)
	assert.Equal(t, auditWriteTimeout, store.writeTimeout)
	assert.NotNil(t, store.logger)
}
