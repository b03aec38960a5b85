package config

import (
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cast"
)

// ZaloPayConfig carries the two shared secrets of the ZaloPay scheme: key1
// signs outbound requests, key2 verifies inbound callbacks.
type ZaloPayConfig struct {
	AppID        int
	Key1         string
	Key2         string
	Endpoint     string
	QueryURL     string
	CallbackURL  string
	RedirectBase string
}

type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	QueryURL    string
	CallbackURL string
}

type Config struct {
	ServerAddr string

	ZaloPay ZaloPayConfig
	MoMo    MoMoConfig

	// SweepInterval is how often the timeout sweeper ticks; PendingDeadline
	// is how long an order may sit pending before it is force-resolved.
	SweepInterval   time.Duration
	PendingDeadline time.Duration
}

func Load() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		ZaloPay: ZaloPayConfig{
			AppID:        cast.ToInt(getEnv("ZALOPAY_APP_ID", "2553")),
			Key1:         getEnv("ZALOPAY_KEY1", ""),
			Key2:         getEnv("ZALOPAY_KEY2", ""),
			Endpoint:     getEnv("ZALOPAY_ENDPOINT", "https://sb-openapi.zalopay.vn/v2/create"),
			QueryURL:     getEnv("ZALOPAY_QUERY_URL", "https://sb-openapi.zalopay.vn/v2/query"),
			CallbackURL:  getEnv("ZALOPAY_CALLBACK_URL", ""),
			RedirectBase: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
		MoMo: MoMoConfig{
			PartnerCode: getEnv("MOMO_PARTNER_CODE", ""),
			AccessKey:   getEnv("MOMO_ACCESS_KEY", ""),
			SecretKey:   getEnv("MOMO_SECRET_KEY", ""),
			Endpoint:    getEnv("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/create"),
			QueryURL:    getEnv("MOMO_QUERY_URL", "https://test-payment.momo.vn/v2/gateway/api/query"),
			CallbackURL: getEnv("MOMO_CALLBACK_URL", ""),
		},
		SweepInterval:   cast.ToDuration(getEnv("SWEEP_INTERVAL", "1m")),
		PendingDeadline: cast.ToDuration(getEnv("PENDING_DEADLINE", "15m")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
