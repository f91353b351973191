package cache

import (
	"testing"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		want       string
	}{
		{
			name:       "Environment variable exists",
			key:        "TEST_REDIS_URL",
			defaultVal: "localhost:6379",
			envValue:   "redis:6380",
			want:       "redis:6380",
		},
		{
			name:       "Environment variable does not exist",
			key:        "TEST_REDIS_URL_MISSING",
			defaultVal: "localhost:6379",
			want:       "localhost:6379",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := getEnv(tt.key, tt.defaultVal); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		defaultVal int
		want       int
	}{
		{"Valid integer", "3", 0, 3},
		{"Invalid integer", "not_a_number", 1, 1},
		{"Empty value", "", 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_REDIS_DB", tt.envValue)

			if got := getEnvAsInt("TEST_REDIS_DB", tt.defaultVal); got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionKey(t *testing.T) {
	got := SessionKey("0xAbCdEF0000000000000000000000000000000001")
	want := "flipzone:session:0xabcdef0000000000000000000000000000000001"
	if got != want {
		t.Errorf("SessionKey() = %v, want %v", got, want)
	}
}

func TestNewSessionStore_DefaultTTL(t *testing.T) {
	store := NewSessionStore(nil, "0x01", 0)
	if store.ttl != DEFAULT_SESSION_TTL {
		t.Errorf("ttl = %v, want %v", store.ttl, DEFAULT_SESSION_TTL)
	}
}

func TestService_Interface(t *testing.T) {
	var _ Service = (*service)(nil)
}

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		password string
		db       int
		wantAddr string
		wantPass string
		wantDB   int
		wantErr  bool
	}{
		{"host and port", "localhost:6379", "", 0, "localhost:6379", "", 0, false},
		{"url", "redis://:secret@cache:6380/2", "", 0, "cache:6380", "secret", 2, false},
		{"explicit overrides url", "redis://:secret@cache:6380/2", "other", 5, "cache:6380", "other", 5, false},
		{"bad scheme", "http://cache:6379", "", 0, "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := redisOptions(tt.addr, tt.password, tt.db)
			if (err != nil) != tt.wantErr {
				t.Fatalf("redisOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if opts.Addr != tt.wantAddr || opts.Password != tt.wantPass || opts.DB != tt.wantDB {
				t.Errorf("redisOptions() = %s/%q/%d, want %s/%q/%d", opts.Addr, opts.Password, opts.DB, tt.wantAddr, tt.wantPass, tt.wantDB)
			}
			if opts.MaxRetries != 3 {
				t.Errorf("MaxRetries = %d, want 3", opts.MaxRetries)
			}
		})
	}
}
