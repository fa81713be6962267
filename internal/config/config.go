// Package config implements YAML settings loading, validation and
// per-poller materialisation for gdpoller. Global keys act as defaults;
// any poller may override any of them, with unset (nil) fields inheriting
// the global value. Dispatcher entries keep their unknown keys as an
// opaque options map handed to the dispatcher factory.
package config

// Settings is the top-level structure parsed from the settings file.
type Settings struct {
	Globals `yaml:",inline"`

	Logging     Logging  `yaml:"logging"`
	Metrics     Metrics  `yaml:"metrics"`
	GoogleDrive Drive    `yaml:"google_drive"`
	Pollers     []Poller `yaml:"pollers"`
}

// Globals are the keys that exist both at the top level and per poller.
// Pointer fields distinguish "unset, inherit" from an explicit zero.
type Globals struct {
	PollingInterval   *int `yaml:"polling_interval"`
	PollingDelay      *int `yaml:"polling_delay"`
	DispatchInterval  *int `yaml:"dispatch_interval"`
	TaskCheckInterval *int `yaml:"task_check_interval"`
	PageSize          *int `yaml:"page_size"`

	IgnoreFolder   *bool    `yaml:"ignore_folder"`
	Patterns       []string `yaml:"patterns"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
	Actions        []string `yaml:"actions"`

	BufferInterval *int `yaml:"buffer_interval"`
}

// Poller is one poller block: its overrides, targets and dispatcher chain.
type Poller struct {
	Name    string `yaml:"name"`
	Globals `yaml:",inline"`

	Targets     []string     `yaml:"targets"`
	Dispatchers []Dispatcher `yaml:"dispatchers"`
}

// Dispatcher selects a concrete dispatcher class. Every key other than the
// named ones is collected into Options and interpreted by the class's
// constructor.
type Dispatcher struct {
	Class          string         `yaml:"class"`
	BufferInterval *int           `yaml:"buffer_interval"`
	Mappings       []string       `yaml:"mappings"`
	Options        map[string]any `yaml:",inline"`
}

// Logging configures the log sink and secret redaction. Nil pattern list
// means the built-in redaction defaults.
type Logging struct {
	Level              string   `yaml:"level"`
	RedactedPatterns   []string `yaml:"redacted_patterns"`
	RedactedSubstitute string   `yaml:"redacted_substitute"`
}

// Metrics enables the Prometheus listener when an address is set.
type Metrics struct {
	Address string `yaml:"address"`
}

// Drive holds the Google credential, scopes and resolver cache knobs.
type Drive struct {
	Scopes      []string `yaml:"scopes"`
	Token       Token    `yaml:"token"`
	CacheEnable bool     `yaml:"cache_enable"`
	CacheMaxAge int      `yaml:"cache_ttl"`
	CacheSize   int      `yaml:"cache_maxsize"`
}

// Token is the stored OAuth2 user credential. The refresh token must
// already exist; this daemon never runs an authorisation flow.
type Token struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	AccessToken  string `yaml:"token"`
}
