package config

import "time"

// Config holds all configuration for the application.
type Config struct {
	Port          string
	DBPath        string
	MigrationsDir string
	LogLevel      string
	LogFormat     string
	// SweepSchedule is a cron spec for the check-in and deadline sweeper.
	SweepSchedule string
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string
	Match         MatchConfig
	BracketReset  bool
	Evidence      EvidenceConfig
	PubSub        PubSubConfig
}

type MatchConfig struct {
	StrictScore   bool
	CheckInOffset time.Duration
	CheckInWindow time.Duration
	ResultWindow  time.Duration
	ForfeitWin    int
	ForfeitLoss   int
}

// EvidenceConfig selects the S3-compatible bucket. An empty Bucket keeps
// evidence in memory.
type EvidenceConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
}

// PubSubConfig is optional; both fields empty disables forwarding.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}
