package auditk

import "time"

// Default tunables
const (
	DefaultHostFilterThreshold = 10
	DefaultMatchTTL            = 60 * time.Second
	DefaultScannedTTL          = 30 * time.Second
	DefaultScanMarkInterval    = 2 * time.Second
	DefaultImportChunkSize     = 25
	DefaultImportChunkPause    = 10 * time.Millisecond
	DefaultPollFrequency       = 10 * time.Second
	MinImportChunkSize         = 20
	MaxImportChunkSize         = 50
)

// PollFrequencies that the sitemap poller accepts
var PollFrequencies = []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}

// Config for auditker
type Config struct {
	RegistryPath        string        `toml:"registry_path"`
	Project             string        `toml:"project"`
	DataFile            string        `toml:"data_file"`
	JournalPath         string        `toml:"journal_path"`
	TargetURL           string        `toml:"target_url"`
	StripHostInDisplay  bool          `toml:"strip_host_in_display"`
	AutoUpdate          bool          `toml:"auto_update"`
	PollFrequency       time.Duration `toml:"poll_frequency"`
	HostFilterThreshold int           `toml:"host_filter_threshold"`
	MatchTTL            time.Duration `toml:"match_ttl"`
	ScannedTTL          time.Duration `toml:"scanned_ttl"`
	ScanMarkInterval    time.Duration `toml:"scan_mark_interval"`
	ScanMarkBurst       int           `toml:"scan_mark_burst"`
	ImportChunkSize     int           `toml:"import_chunk_size"`
	ImportChunkPause    time.Duration `toml:"import_chunk_pause"`
	AllowedHosts        []string      `toml:"allowed_hosts"`
	IgnoredHosts        []string      `toml:"ignored_hosts"`
	ExcludedHosts       []string      `toml:"excluded_hosts"`
	ExcludedURIs        []string      `toml:"excluded_uris"`
}

// DefaultConfig returns a config with every tunable set
func DefaultConfig() *Config {
	return &Config{
		PollFrequency:       DefaultPollFrequency,
		HostFilterThreshold: DefaultHostFilterThreshold,
		MatchTTL:            DefaultMatchTTL,
		ScannedTTL:          DefaultScannedTTL,
		ScanMarkInterval:    DefaultScanMarkInterval,
		ScanMarkBurst:       5,
		ImportChunkSize:     DefaultImportChunkSize,
		ImportChunkPause:    DefaultImportChunkPause,
	}
}

// Validate fills zero values with defaults and clamps values that are out of range
func (c *Config) Validate() {
	if c.HostFilterThreshold <= 0 {
		c.HostFilterThreshold = DefaultHostFilterThreshold
	}
	if c.MatchTTL <= 0 {
		c.MatchTTL = DefaultMatchTTL
	}
	if c.ScannedTTL <= 0 {
		c.ScannedTTL = DefaultScannedTTL
	}
	if c.ScanMarkInterval <= 0 {
		c.ScanMarkInterval = DefaultScanMarkInterval
	}
	if c.ScanMarkBurst <= 0 {
		c.ScanMarkBurst = 5
	}
	switch {
	case c.ImportChunkSize == 0:
		c.ImportChunkSize = DefaultImportChunkSize
	case c.ImportChunkSize < MinImportChunkSize:
		c.ImportChunkSize = MinImportChunkSize
	case c.ImportChunkSize > MaxImportChunkSize:
		c.ImportChunkSize = MaxImportChunkSize
	}
	if c.ImportChunkPause < 0 {
		c.ImportChunkPause = 0
	}
	c.PollFrequency = NearestPollFrequency(c.PollFrequency)
}

// NearestPollFrequency snaps d to the closest supported poll frequency
func NearestPollFrequency(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPollFrequency
	}
	best := PollFrequencies[0]
	for _, f := range PollFrequencies[1:] {
		if absDuration(d-f) < absDuration(d-best) {
			best = f
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
