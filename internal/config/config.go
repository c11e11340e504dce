package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	CacheConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetAPIBaseURL() string
	GetWSBaseURL() string
	GetSiteURL() string
	GetRedisURL() string
	GetCookieSecret() string
	GetJWKSURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type CacheConfig interface {
	GetFetchCacheTTL() time.Duration
	GetRetryCount() int
	GetRetryInterval() time.Duration
}

type SessionConfig interface {
	GetLocales() []string
	GetDefaultLocale() string
	GetStrictAccessCheck() bool
	GetAccessCheckTimeout() time.Duration
	GetMaxSessionAge() time.Duration
	GetProbeInterval() time.Duration
	GetNotificationLogSize() int
	GetReconnectInterval() time.Duration
}

type mainConfig struct {
	EnvVars
	Cors
	Cache
	Session
}

func New() Config {
	return mainConfig{}
}
