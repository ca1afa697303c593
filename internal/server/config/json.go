package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/streamvault/internal/flagx"
	"github.com/dmitrijs2005/streamvault/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON
// configuration files. Interval fields use timex.Duration so both string
// values such as "2s" and integer nanoseconds parse. After unmarshalling,
// values are copied into the runtime Config.
type JsonConfig struct {
	DatabaseDSN string `json:"database_dsn"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	LedgerGatewayURL string         `json:"ledger_gateway_url"`
	LedgerTimeout    timex.Duration `json:"ledger_timeout"`

	SigningKeyDir       string `json:"signing_key_dir"`
	MinIdentityBalance  int64  `json:"min_identity_balance"`
	LowBalanceWatermark int64  `json:"low_balance_watermark"`
	SpendEstimate       int64  `json:"spend_estimate"`

	MaxPayloadSize   int64          `json:"max_payload_size"`
	MaxAttempts      int            `json:"max_attempts"`
	SubmitInterval   timex.Duration `json:"submit_interval"`
	RetryBackoffBase timex.Duration `json:"retry_backoff_base"`
	IdleWakeInterval timex.Duration `json:"idle_wake_interval"`

	BlobRetention   timex.Duration `json:"blob_retention"`
	CleanupInterval timex.Duration `json:"cleanup_interval"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. If no flag is set, nothing is
// loaded. An unreadable or invalid file panics: the process must not start
// on a half-applied configuration.
//
// Only fields present in the file override the target; absent fields keep
// their current (default) values.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.LedgerGatewayURL != "" {
		config.LedgerGatewayURL = c.LedgerGatewayURL
	}
	if c.LedgerTimeout.Duration != 0 {
		config.LedgerTimeout = c.LedgerTimeout.Duration
	}
	if c.SigningKeyDir != "" {
		config.SigningKeyDir = c.SigningKeyDir
	}
	if c.MinIdentityBalance != 0 {
		config.MinIdentityBalance = c.MinIdentityBalance
	}
	if c.LowBalanceWatermark != 0 {
		config.LowBalanceWatermark = c.LowBalanceWatermark
	}
	if c.SpendEstimate != 0 {
		config.SpendEstimate = c.SpendEstimate
	}
	if c.MaxPayloadSize != 0 {
		config.MaxPayloadSize = c.MaxPayloadSize
	}
	if c.MaxAttempts != 0 {
		config.MaxAttempts = c.MaxAttempts
	}
	if c.SubmitInterval.Duration != 0 {
		config.SubmitInterval = c.SubmitInterval.Duration
	}
	if c.RetryBackoffBase.Duration != 0 {
		config.RetryBackoffBase = c.RetryBackoffBase.Duration
	}
	if c.IdleWakeInterval.Duration != 0 {
		config.IdleWakeInterval = c.IdleWakeInterval.Duration
	}
	if c.BlobRetention.Duration != 0 {
		config.BlobRetention = c.BlobRetention.Duration
	}
	if c.CleanupInterval.Duration != 0 {
		config.CleanupInterval = c.CleanupInterval.Duration
	}
}
