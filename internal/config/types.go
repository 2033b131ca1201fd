// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package config

import "time"

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Log         LogConfig         `yaml:"log"`
	Store       StoreConfig       `yaml:"store"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Executor    ExecutorConfig    `yaml:"executor"`
	Capability  string            `yaml:"capability"`
	Browser     BrowserConfig     `yaml:"browser"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Recorder    RecorderConfig    `yaml:"recorder"`
	Lease       LeaseConfig       `yaml:"lease"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
	Ops         OpsConfig         `yaml:"ops"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type StoreConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey"`
	Table   string        `yaml:"table"`
	Timeout time.Duration `yaml:"timeout"`

	// BreakerThreshold is the number of consecutive query failures that
	// pause store polling; 0 disables the breaker.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

type ReconcileConfig struct {
	Interval time.Duration `yaml:"interval"`
	Grace    time.Duration `yaml:"grace"`
}

type ExecutorConfig struct {
	AuthAttempts        int           `yaml:"authAttempts"`
	AuthBackoff         time.Duration `yaml:"authBackoff"`
	TimeoutMargin       time.Duration `yaml:"timeoutMargin"`
	StatusWriteAttempts int           `yaml:"statusWriteAttempts"`
	StatusWriteBackoff  time.Duration `yaml:"statusWriteBackoff"`
	LaunchRate          float64       `yaml:"launchRate"`
	LaunchBurst         int           `yaml:"launchBurst"`
}

type BrowserConfig struct {
	ExecPath    string            `yaml:"execPath"`
	Headless    bool              `yaml:"headless"`
	ProfileRoot string            `yaml:"profileRoot"`
	DisplayName string            `yaml:"displayName"`
	PulseSink   bool              `yaml:"pulseSink"`
	StepTimeout time.Duration     `yaml:"stepTimeout"`
	JoinRetries int               `yaml:"joinRetries"`
	JoinDelay   time.Duration     `yaml:"joinDelay"`
	Selectors   SelectorsConfig   `yaml:"selectors"`
	ExtraFlags  map[string]string `yaml:"extraFlags"`
}

type SelectorsConfig struct {
	LoginURL      string   `yaml:"loginUrl"`
	Email         string   `yaml:"email"`
	EmailNext     string   `yaml:"emailNext"`
	Password      string   `yaml:"password"`
	PasswordNext  string   `yaml:"passwordNext"`
	NameInput     string   `yaml:"nameInput"`
	JoinButtons   []string `yaml:"joinButtons"`
	JoinTexts     []string `yaml:"joinTexts"`
	InMeeting     string   `yaml:"inMeeting"`
	MediaToggles  []string `yaml:"mediaToggles"`
	LoggedInProbe string   `yaml:"loggedInProbe"`
}

type CredentialsConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type RecorderConfig struct {
	OutputDir  string        `yaml:"outputDir"`
	FFmpegPath string        `yaml:"ffmpegPath"`
	Pulse      bool          `yaml:"pulse"`
	StopGrace  time.Duration `yaml:"stopGrace"`
	Bitrate    string        `yaml:"bitrate"`
}

type LeaseConfig struct {
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDb"`
	TTL           time.Duration `yaml:"ttl"`
	Owner         string        `yaml:"owner"`
}

type ShutdownConfig struct {
	DrainTimeout  time.Duration `yaml:"drainTimeout"`
	FinalizeGrace time.Duration `yaml:"finalizeGrace"`
}

type OpsConfig struct {
	Listen             string `yaml:"listen"`
	ReconcileRateLimit int    `yaml:"reconcileRateLimit"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}
