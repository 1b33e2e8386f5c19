package configs

// Orchestrator tunes batch execution. BatchSize trades gateway burst load
// against completion latency; BatchDelayMS spaces consecutive batches.
type Orchestrator struct {
	BatchSize          int `env:"BATCH_SIZE" envDefault:"50"`
	BatchDelayMS       int `env:"BATCH_DELAY_MS" envDefault:"250"`
	TrackerMaxAttempts int `env:"TRACKER_MAX_ATTEMPTS" envDefault:"5"`
}

// Reaper tunes the periodic scans. RetentionDays bounds how long terminal
// campaigns are kept before the sweep deletes them.
type Reaper struct {
	ScanLimit     int `env:"SCAN_LIMIT" envDefault:"100"`
	RetentionDays int `env:"RETENTION_DAYS" envDefault:"90"`
}
