// Package policy loads the layered, file-backed configuration that drives
// every other package: the threshold base vector and calibration overlay,
// detector-family feature toggles, post-filter rules, whitelist and
// dictionary term banks, and named policy bundle presets. It owns no
// redaction logic of its own — it only turns files on disk into the typed
// values internal/threshold, internal/detect and internal/apply already
// expect, with the service's own settings layered defaults → file → env.
package policy

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// RuntimeConfig holds the operational settings of the redaction service:
// listener ports, log level, cache backing, and the streaming defaults.
// Settings are layered: defaults → redact-config.json → environment
// variables (env vars win).
type RuntimeConfig struct {
	APIPort        int    `json:"apiPort"`
	ManagementPort int    `json:"managementPort"` // loopback-only runtime introspection/control API
	ManagementToken string `json:"managementToken"` // bearer token for the management API; "" = no auth
	LogLevel       string `json:"logLevel"`
	CacheFile      string `json:"cacheFile"`      // bbolt path for the learned-detector cache; "" = no cache
	FeedbackFile   string `json:"feedbackFile"`   // bbolt path for the feedback store; "" = feedback learning disabled
	FeedbackMinSamples int `json:"feedbackMinSamples"`

	StreamBufferSize int    `json:"streamBufferSize"`
	StreamOverlap    int    `json:"streamOverlap"`
	StreamMode       string `json:"streamMode"` // "immediate" | "sentence"

	PolicyDir    string `json:"policyDir"`    // directory of *.toml policy bundle presets
	ActivePolicy string `json:"activePolicy"` // bundle name to apply; "" = built-in default
	ThresholdsFile string `json:"thresholdsFile"`
	CalibrationFile string `json:"calibrationFile"`
	FeaturesFile   string `json:"featuresFile"`
	PostFilterFile string `json:"postFilterFile"`
	WhitelistFile  string `json:"whitelistFile"`
	DictionaryFile string `json:"dictionaryFile"`

	LearnedEndpoint string `json:"learnedEndpoint"` // opaque ML detector HTTP endpoint; "" = learned family disabled
	LearnedTimeoutSeconds int `json:"learnedTimeoutSeconds"`
	LearnedCacheCapacity  int `json:"learnedCacheCapacity"` // S3-FIFO entry cap in front of CacheFile; 0 = no caching

	DebugInvariants bool `json:"debugInvariants"` // panic instead of warn-and-coalesce on invariant violations
}

// Load returns a RuntimeConfig with defaults overridden by path (if it
// exists) and then by environment variables.
func Load(path string) *RuntimeConfig {
	cfg := defaults()
	loadFile(cfg, path)
	loadEnv(cfg)
	return cfg
}

func defaults() *RuntimeConfig {
	return &RuntimeConfig{
		APIPort:            8443,
		ManagementPort:     8444,
		LogLevel:           "info",
		CacheFile:          "redact-cache.db",
		FeedbackFile:       "redact-feedback.db",
		FeedbackMinSamples: 5,
		StreamBufferSize:   4096,
		StreamOverlap:      64,
		StreamMode:         "sentence",
		PolicyDir:          "policies",
		ThresholdsFile:     "thresholds.json",
		CalibrationFile:    "calibration.json",
		FeaturesFile:       "features.yaml",
		PostFilterFile:     "postfilter.yaml",
		WhitelistFile:      "whitelist.yaml",
		DictionaryFile:     "dictionary.yaml",
		LearnedTimeoutSeconds: 30,
		LearnedCacheCapacity:  2048,
	}
}

func loadFile(cfg *RuntimeConfig, path string) {
	if path == "" {
		path = "redact-config.json"
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[POLICY] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[POLICY] Loaded %s", path)
	}
}

func loadEnv(cfg *RuntimeConfig) {
	if v := os.Getenv("REDACT_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = n
		}
	}
	if v := os.Getenv("REDACT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REDACT_MANAGEMENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ManagementPort = n
		}
	}
	if v := os.Getenv("REDACT_MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}
	if v := os.Getenv("REDACT_CACHE_FILE"); v != "" {
		cfg.CacheFile = v
	}
	if v := os.Getenv("REDACT_FEEDBACK_FILE"); v != "" {
		cfg.FeedbackFile = v
	}
	if v := os.Getenv("REDACT_FEEDBACK_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.FeedbackMinSamples = n
		}
	}
	if v := os.Getenv("REDACT_STREAM_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamBufferSize = n
		}
	}
	if v := os.Getenv("REDACT_STREAM_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.StreamOverlap = n
		}
	}
	if v := os.Getenv("REDACT_STREAM_MODE"); v != "" {
		cfg.StreamMode = v
	}
	if v := os.Getenv("REDACT_POLICY_DIR"); v != "" {
		cfg.PolicyDir = v
	}
	if v := os.Getenv("REDACT_ACTIVE_POLICY"); v != "" {
		cfg.ActivePolicy = v
	}
	if v := os.Getenv("REDACT_LEARNED_ENDPOINT"); v != "" {
		cfg.LearnedEndpoint = v
	}
	if v := os.Getenv("REDACT_LEARNED_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LearnedTimeoutSeconds = n
		}
	}
	if v := os.Getenv("REDACT_LEARNED_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.LearnedCacheCapacity = n
		}
	}
	if v := os.Getenv("REDACT_DEBUG_INVARIANTS"); v == "true" {
		cfg.DebugInvariants = true
	}
}
