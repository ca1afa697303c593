package models

import "time"

// FundingState classifies a signing identity by its cached balance.
// Identities cycle unfunded → funded → low_balance → unfunded as funds are
// replenished and spent.
type FundingState string

const (
	FundingStateFunded     FundingState = "funded"
	FundingStateLowBalance FundingState = "low_balance"
	FundingStateUnfunded   FundingState = "unfunded"
)

// IdentityStatus is a read-only view of one signing identity, exposed for
// health checks. Key material never leaves the signing manager.
type IdentityStatus struct {
	Ref              string
	Address          string
	CachedBalance    int64
	LastBalanceCheck time.Time
	State            FundingState
}
