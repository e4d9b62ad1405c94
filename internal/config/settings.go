package config

import (
	"strings"
	"time"
)

// Settings is a startup snapshot of the connector configuration. It is loaded
// once in main and handed to each component explicitly; nothing reads the
// environment after startup.
type Settings struct {
	// BaseURL is the public address of this service, as seen by end users
	// and embedded in editor configuration.
	BaseURL string

	// DocumentServerURL is the public address of the document server.
	DocumentServerURL string

	// DocumentServerInternalURL, when set, replaces DocumentServerURL for
	// requests this service makes itself (the document server may only be
	// reachable on an internal network).
	DocumentServerInternalURL string

	// StorageURL, when set, replaces BaseURL in links handed to the document
	// server (the reverse of DocumentServerInternalURL).
	StorageURL string

	// Secret encrypts hash tokens embedded in download and callback URLs.
	// It must stay stable across restarts or outstanding links break.
	Secret string

	// DocumentServerSecret is the shared JWT secret. Empty disables request
	// signing entirely.
	DocumentServerSecret string

	// JWTHeader is the header carrying signed requests, "Authorization"
	// unless the document server is configured with a custom one.
	JWTHeader string

	// JWTLeeway is the clock-skew allowance for token expiry checks.
	JWTLeeway time.Duration

	// InstanceID prefixes user identifiers sent to the document server in
	// multi-instance setups; it is stripped from callback payloads.
	InstanceID string

	SkipTLSVerify   bool
	ConvertTimeout  time.Duration
	RequestTimeout  time.Duration
	HealthInterval  time.Duration
	DataDir         string
}

// Load builds Settings from the environment.
func Load() Settings {
	return Settings{
		BaseURL:                   strings.TrimSuffix(Get("BASE_URL", "http://localhost:8000"), "/"),
		DocumentServerURL:         strings.TrimSuffix(Get("DOCUMENT_SERVER_URL", ""), "/"),
		DocumentServerInternalURL: strings.TrimSuffix(Get("DOCUMENT_SERVER_INTERNAL_URL", ""), "/"),
		StorageURL:                strings.TrimSuffix(Get("STORAGE_URL", ""), "/"),
		Secret:                    Get("SECRET", ""),
		DocumentServerSecret:      Get("DOCUMENT_SERVER_SECRET", ""),
		JWTHeader:                 Get("JWT_HEADER", "Authorization"),
		JWTLeeway:                 GetDuration("JWT_LEEWAY", 5*time.Minute),
		InstanceID:                Get("INSTANCE_ID", ""),
		SkipTLSVerify:             GetBool("SKIP_TLS_VERIFY", false),
		ConvertTimeout:            GetDuration("CONVERT_TIMEOUT", 2*time.Minute),
		RequestTimeout:            GetDuration("REQUEST_TIMEOUT", 60*time.Second),
		HealthInterval:            GetDuration("HEALTHCHECK_INTERVAL", 0),
		DataDir:                   Get("DATA_DIR", "/data"),
	}
}

// ReplaceDocumentServerURL rewrites u to the internal document server address
// when one is configured. URLs that do not start with the public address are
// returned unchanged.
func (s Settings) ReplaceDocumentServerURL(u string) string {
	if s.DocumentServerInternalURL == "" || s.DocumentServerURL == "" {
		return u
	}
	if strings.HasPrefix(u, s.DocumentServerURL) {
		return s.DocumentServerInternalURL + strings.TrimPrefix(u, s.DocumentServerURL)
	}
	return u
}

// ReplaceStorageURL rewrites u so the document server dereferences it against
// the storage-facing address instead of the public one.
func (s Settings) ReplaceStorageURL(u string) string {
	if s.StorageURL == "" {
		return u
	}
	if strings.HasPrefix(u, s.BaseURL) {
		return s.StorageURL + strings.TrimPrefix(u, s.BaseURL)
	}
	return u
}

// SigningEnabled reports whether a shared JWT secret is configured.
func (s Settings) SigningEnabled() bool {
	return s.DocumentServerSecret != ""
}
