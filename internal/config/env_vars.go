package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar         = "PORT"
	appNameVar         = "APP_NAME"
	apiBaseURLVar      = "API_BASE_URL"
	wsBaseURLVar       = "WS_BASE_URL"
	siteURLVar         = "SITE_URL"
	redisURLVar        = "REDIS_URL"
	cookieSecretEnvVar = "COOKIE_SECRET"
	jwksURLVar         = "JWKS_URL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Retail Console")
}

func (EnvVars) GetEnv() string {
	return GetEnv("ENV", "DEV")
}

// GetAPIBaseURL returns the origin every API request is joined to (e.g., "https://api.example.com/api/v1/")
func (EnvVars) GetAPIBaseURL() string {
	return withTrailingSlash(GetEnv(apiBaseURLVar, "http://localhost:8000/api/v1/"))
}

// GetWSBaseURL returns the base URL of the realtime channel
func (EnvVars) GetWSBaseURL() string {
	return withTrailingSlash(GetEnv(wsBaseURLVar, "ws://localhost:8000/ws/"))
}

// GetSiteURL returns the public URL of this console
func (EnvVars) GetSiteURL() string {
	return GetEnv(siteURLVar, "http://localhost:8080")
}

// GetRedisURL returns the Redis URL; empty keeps cache and session state in memory
func (EnvVars) GetRedisURL() string {
	return GetEnv(redisURLVar, "")
}

// GetCookieSecret returns the key material for sealing token cookies; empty stores them in plain text
func (EnvVars) GetCookieSecret() string {
	return GetEnv(cookieSecretEnvVar, "")
}

// GetJWKSURL returns the key set used to check access-token signatures locally
func (EnvVars) GetJWKSURL() string {
	return GetEnv(jwksURLVar, "")
}

// GetEnv resolves a setting from the environment, then the loaded config file, then the default
func GetEnv(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if value, ok := fileValue(envVar); ok {
		return value
	}
	return defaultValue
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(envVar string, defaultValue int) int {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func getBool(envVar string, defaultValue bool) bool {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
