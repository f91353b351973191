package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
)

// MONAD_TESTNET_CHAIN_ID is the network the FlipZone contract is deployed on.
const MONAD_TESTNET_CHAIN_ID = 10143

type Config struct {
	Port int

	// Ledger
	RPCURL           string
	ChainID          uint64
	ContractAddress  string
	PlayerPrivateKey string
	GasLimit         uint64
	ConfirmTimeout   time.Duration
	RecoveryAttempts int
	RecoveryBackoff  time.Duration

	// Payout curve
	BaseRate      decimal.Decimal
	MaxMultiplier decimal.Decimal
	MaxRounds     int
	MinBet        decimal.Decimal
	MaxBet        decimal.Decimal

	// Presentation
	AnimationTimeout time.Duration

	// Storage
	SessionTTL     time.Duration
	AuditEnabled   bool
	MigrationsPath string
}

func Load() *Config {
	return &Config{
		Port:             getEnvAsInt("PORT", 8080),
		RPCURL:           getEnv("RPC_URL", "https://testnet-rpc.monad.xyz"),
		ChainID:          uint64(getEnvAsInt("CHAIN_ID", MONAD_TESTNET_CHAIN_ID)),
		ContractAddress:  getEnv("CONTRACT_ADDRESS", ""),
		PlayerPrivateKey: getEnv("PLAYER_PRIVATE_KEY", ""),
		GasLimit:         uint64(getEnvAsInt("GAS_LIMIT", 300000)),
		ConfirmTimeout:   getEnvAsDuration("CONFIRM_TIMEOUT", 90*time.Second),
		RecoveryAttempts: getEnvAsInt("RECOVERY_ATTEMPTS", 3),
		RecoveryBackoff:  getEnvAsDuration("RECOVERY_BACKOFF", 2*time.Second),
		BaseRate:         getEnvAsDecimal("BASE_RATE", decimal.RequireFromString("1.2")),
		MaxMultiplier:    getEnvAsDecimal("MAX_MULTIPLIER", decimal.NewFromInt(4)),
		MaxRounds:        getEnvAsInt("MAX_ROUNDS", 15),
		MinBet:           getEnvAsDecimal("MIN_BET", decimal.RequireFromString("0.1")),
		MaxBet:           getEnvAsDecimal("MAX_BET", decimal.NewFromInt(10)),
		// 7 loops of a 21 frame sprite plus the landing frames, 30ms each
		AnimationTimeout: getEnvAsDuration("ANIMATION_TIMEOUT", 5*time.Second),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		AuditEnabled:     getEnvAsBool("AUDIT_ENABLED", true),
		MigrationsPath:   getEnv("MIGRATIONS_PATH", "./migrations"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}
