package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/streamvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   ledger gateway base URL
//	-k string   signing key directory
//	-i int      submit interval, seconds
//	-m int      max submission attempts
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Interval
// flags are accepted as integers in seconds and converted to durations.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-u", "-p", "-b", "-g", "-e", "-l", "-k", "-i", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LedgerGatewayURL, "l", config.LedgerGatewayURL, "ledger gateway URL")
	fs.StringVar(&config.SigningKeyDir, "k", config.SigningKeyDir, "signing key directory")

	submitInterval := fs.Int("i", int(config.SubmitInterval.Seconds()), "submit_interval (in seconds)")
	fs.IntVar(&config.MaxAttempts, "m", config.MaxAttempts, "max submission attempts")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SubmitInterval = time.Duration(*submitInterval) * time.Second
}
