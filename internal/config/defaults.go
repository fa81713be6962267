package config

// Built-in defaults, applied to any global key the settings file leaves
// unset. task_check_interval defaults negative: silence reporting and the
// watchdog are opt-in.
const (
	defaultPollingInterval   = 60
	defaultPollingDelay      = 0
	defaultDispatchInterval  = 1
	defaultTaskCheckInterval = -1
	defaultPageSize          = 100
	defaultBufferInterval    = 30

	defaultLogLevel  = "debug"
	defaultCacheSize = 64
	defaultCacheAge  = 600
)

var (
	defaultIgnoreFolder = true
	defaultPatterns     = []string{".*"}
	defaultScopes       = []string{"drive.readonly", "drive.activity.readonly"}
)

// applyDefaults fills every unset global with its built-in default, so
// materialisation only ever inherits concrete values.
func (s *Settings) applyDefaults() {
	fillInt(&s.PollingInterval, defaultPollingInterval)
	fillInt(&s.PollingDelay, defaultPollingDelay)
	fillInt(&s.DispatchInterval, defaultDispatchInterval)
	fillInt(&s.TaskCheckInterval, defaultTaskCheckInterval)
	fillInt(&s.PageSize, defaultPageSize)
	fillInt(&s.BufferInterval, defaultBufferInterval)

	if s.IgnoreFolder == nil {
		v := defaultIgnoreFolder
		s.IgnoreFolder = &v
	}

	if s.Patterns == nil {
		s.Patterns = append([]string(nil), defaultPatterns...)
	}

	if s.Logging.Level == "" {
		s.Logging.Level = defaultLogLevel
	}

	if s.GoogleDrive.Scopes == nil {
		s.GoogleDrive.Scopes = append([]string(nil), defaultScopes...)
	}

	if s.GoogleDrive.CacheSize == 0 {
		s.GoogleDrive.CacheSize = defaultCacheSize
	}

	if s.GoogleDrive.CacheMaxAge == 0 {
		s.GoogleDrive.CacheMaxAge = defaultCacheAge
	}
}

func fillInt(field **int, value int) {
	if *field == nil {
		v := value
		*field = &v
	}
}
