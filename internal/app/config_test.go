package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bistro/internal/domain/order"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"postgres", Config{Storage: StoragePostgres, DatabaseURL: "postgres://db", Auth: AuthConfig{JWTSecret: "s"}}, ""},
		{"memory without url", Config{Storage: StorageMemory, Auth: AuthConfig{JWTSecret: "s"}}, ""},
		{"postgres without url", Config{Storage: StoragePostgres, Auth: AuthConfig{JWTSecret: "s"}}, "database URL is required"},
		{"unknown storage", Config{Storage: "sqlite", Auth: AuthConfig{JWTSecret: "s"}}, "unknown storage"},
		{"no secret", Config{Storage: StorageMemory}, "JWT secret is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	cfg = Config{Addr: "127.0.0.1:1", DatabaseURL: "postgres://explicit"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:1", cfg.Addr)
}

func TestCheckoutConfig_AdmissionWindow(t *testing.T) {
	w := CheckoutConfig{OpenHour: 7, CloseHour: 21, CloseMinute: 30, DeliveryCloseHour: 21}.AdmissionWindow()
	assert.Equal(t, order.DefaultAdmissionWindow, w)
}
