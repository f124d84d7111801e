/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ramp-quote-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	requestTimeout, err := getEnvDuration("HTTP_REQUEST_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	responseHeaderTimeout, err := getEnvDuration("HTTP_RESPONSE_HEADER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	dialTimeout, err := getEnvDuration("HTTP_DIAL_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	idleConnTimeout, err := getEnvDuration("HTTP_IDLE_CONN_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, err
	}

	rateLimit, err := getEnvFloat("HTTP_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}

	providerTimeout, err := getEnvDuration("PROVIDER_TIMEOUT", 20*time.Second)
	if err != nil {
		return nil, err
	}

	sweepInterval, err := getEnvDuration("QUOTE_SWEEP_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	warmupInterval, err := getEnvDuration("SUPPORT_WARMUP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	platform := models.Platform(strings.ToLower(getEnvString("CLIENT_PLATFORM", "")))
	switch platform {
	case models.PlatformUnknown, models.PlatformIOS, models.PlatformAndroid, models.PlatformWeb:
	default:
		return nil, fmt.Errorf("invalid CLIENT_PLATFORM: %q", platform)
	}

	listenAddr := getEnvString("LISTEN_ADDR", ":8080")

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "ramp.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		HTTP: models.HTTPConfig{
			RequestTimeout:        requestTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			DialTimeout:           dialTimeout,
			IdleConnTimeout:       idleConnTimeout,
			MaxIdleConns:          getEnvInt("HTTP_MAX_IDLE_CONNS", 10),
			MaxIdleConnsPerHost:   getEnvInt("HTTP_MAX_IDLE_CONNS_PER_HOST", 5),
			RateLimit:             rateLimit,
			RateBurst:             getEnvInt("HTTP_RATE_BURST", 20),
		},
		Engine: models.EngineConfig{
			ProvidersFile:      getEnvString("PROVIDERS_FILE", "providers.yaml"),
			RulesFile:          getEnvString("RULES_FILE", ""),
			RulesURL:           getEnvString("RULES_URL", ""),
			Platform:           platform,
			ProviderTimeout:    providerTimeout,
			QuoteSweepInterval: sweepInterval,
			WarmupInterval:     warmupInterval,
			ReturnURLBase:      getEnvString("RETURN_URL_BASE", "https://deep.ramp.local"),
			MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		},
		Server: models.ServerConfig{
			ListenAddr:      listenAddr,
			PublicURL:       getEnvString("PUBLIC_URL", "http://localhost"+listenAddr),
			ShutdownTimeout: shutdownTimeout,
		},
	}, nil
}

// ApplySecrets fills provider credentials from <ID>_API_KEY, <ID>_SECRET and <ID>_PRIVATE_KEY.
// Secrets never live in providers.yaml.
func ApplySecrets(providers []models.ProviderConfig) {
	for i := range providers {
		prefix := strings.ToUpper(providers[i].ID)
		providers[i].APIKey = getEnvString(prefix+"_API_KEY", providers[i].APIKey)
		providers[i].Secret = getEnvString(prefix+"_SECRET", providers[i].Secret)
		providers[i].PrivateKey = strings.ReplaceAll(getEnvString(prefix+"_PRIVATE_KEY", providers[i].PrivateKey), `\n`, "\n")
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return f, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
