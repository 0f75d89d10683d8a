package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// setValidEnv sets the minimum environment for Load to succeed.
func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOARDSYNC_JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "BOARDSYNC_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "BOARDSYNC_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "BOARDSYNC_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got := getEnv(tc.key, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "BOARDSYNC_TEST_DUR_UNSET", setVal: nil, fallback: 30 * time.Second, want: 30 * time.Second},
		{name: "parses duration", key: "BOARDSYNC_TEST_DUR_VALID", setVal: strPtr("45s"), fallback: 0, want: 45 * time.Second},
		{name: "parses compound duration", key: "BOARDSYNC_TEST_DUR_COMPOUND", setVal: strPtr("1m30s"), fallback: 0, want: 90 * time.Second},
		{name: "errors on bare number", key: "BOARDSYNC_TEST_DUR_BARE", setVal: strPtr("30"), fallback: 0, wantErr: true},
		{name: "errors on garbage", key: "BOARDSYNC_TEST_DUR_GARBAGE", setVal: strPtr("soon"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvDuration(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback float64
		want     float64
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "BOARDSYNC_TEST_FLOAT_UNSET", setVal: nil, fallback: 20, want: 20},
		{name: "parses float", key: "BOARDSYNC_TEST_FLOAT_VALID", setVal: strPtr("2.5"), fallback: 0, want: 2.5},
		{name: "parses int", key: "BOARDSYNC_TEST_FLOAT_INT", setVal: strPtr("10"), fallback: 0, want: 10},
		{name: "errors on garbage", key: "BOARDSYNC_TEST_FLOAT_GARBAGE", setVal: strPtr("fast"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvFloat(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.Collab.HeartbeatWindow)
	assert.Equal(t, 60*time.Second, cfg.Collab.ReconnectGrace)
	assert.Equal(t, 256, cfg.Collab.QueueBound)
	assert.Equal(t, "ot", cfg.Collab.TextMergeEngine)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOARDSYNC_JWT_SECRET")
}

func TestLoad_RejectsShortJWTSecret(t *testing.T) {
	t.Setenv("BOARDSYNC_JWT_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoad_ValidatesCollabBounds(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "zero heartbeat window", key: "BOARDSYNC_HEARTBEAT_WINDOW", val: "0s"},
		{name: "negative grace", key: "BOARDSYNC_RECONNECT_GRACE", val: "-10s"},
		{name: "zero queue bound", key: "BOARDSYNC_QUEUE_BOUND", val: "0"},
		{name: "unknown merge engine", key: "BOARDSYNC_TEXT_MERGE_ENGINE", val: "three-way"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setValidEnv(t)
			t.Setenv(tc.key, tc.val)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := &DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "svc", Password: "pw",
		DBName: "boards", SSLMode: "require",
	}
	assert.Equal(t, "host=db.internal port=5433 user=svc password=pw dbname=boards sslmode=require", c.DSN())
}
