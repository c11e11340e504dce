package config

import (
	"strings"
	"time"
)

type Session struct{}

var _ SessionConfig = Session{}

// GetLocales returns the locale segments recognised at the start of a console path
func (Session) GetLocales() []string {
	raw := GetEnv("LOCALES", "en,ru,uz")
	var locales []string
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			locales = append(locales, l)
		}
	}
	return locales
}

func (s Session) GetDefaultLocale() string {
	return GetEnv("DEFAULT_LOCALE", s.GetLocales()[0])
}

// GetStrictAccessCheck makes the shop access re-check block rendering
func (Session) GetStrictAccessCheck() bool {
	return getBool("STRICT_ACCESS_CHECK", false)
}

// GetAccessCheckTimeout bounds the remote shop access re-check
func (Session) GetAccessCheckTimeout() time.Duration {
	return getDuration("ACCESS_CHECK_TIMEOUT", 10*time.Second)
}

func (Session) GetMaxSessionAge() time.Duration {
	return getDuration("MAX_SESSION_AGE", 30*time.Minute) // Idle console sessions are swept after 30 minutes
}

func (Session) GetProbeInterval() time.Duration {
	return getDuration("PROBE_INTERVAL", 10*time.Second)
}

func (Session) GetNotificationLogSize() int {
	return getInt("NOTIFICATION_LOG_SIZE", 100)
}

func (Session) GetReconnectInterval() time.Duration {
	return getDuration("WS_RECONNECT_INTERVAL", 3*time.Second)
}
