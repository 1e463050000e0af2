/*

This file contains the shared vault value types: rounding directions, fee configuration and
the point-in-time snapshot persisted by the operator loop.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Rounding selects the direction of integer division in share conversions.
type Rounding int

const (
	RoundDown Rounding = iota
	RoundUp
)

// FeeConfig holds the directional fee rates and their recipients.
type FeeConfig struct {
	EntryFeeBasisPoints uint64 `json:"entry_fee_basis_points"`
	ExitFeeBasisPoints  uint64 `json:"exit_fee_basis_points"`
	EntryFeeRecipient   string `json:"entry_fee_recipient"`
	ExitFeeRecipient    string `json:"exit_fee_recipient"`
}

// VaultSummary is the read-only view served to dashboards.
type VaultSummary struct {
	Address            string      `json:"address"`
	BaseDenom          string      `json:"base_denom"`
	TotalAssets        sdkmath.Int `json:"total_assets"`
	TotalShares        sdkmath.Int `json:"total_shares"`
	SharePrice         string      `json:"share_price,omitempty"` // 1e18-scaled, empty when no shares exist
	TargetHealthFactor sdkmath.Int `json:"target_health_factor"`
	Fees               FeeConfig   `json:"fees"`
	Strategy           string      `json:"strategy"`
}

// VaultSnapshot captures the vault state at the end of an operator cycle.
type VaultSnapshot struct {
	SnapshotID          int64       `json:"snapshot_id,omitempty"` // Auto-incremented by DB
	CycleNumber         int         `json:"cycle_number"`
	CycleID             string      `json:"cycle_id"`
	Timestamp           time.Time   `json:"timestamp"`
	TotalAssets         sdkmath.Int `json:"total_assets"`
	TotalShares         sdkmath.Int `json:"total_shares"`
	SharePrice          string      `json:"share_price,omitempty"`
	TargetHealthFactor  sdkmath.Int `json:"target_health_factor"`
	CurrentHealthFactor string      `json:"current_health_factor,omitempty"`
	OraclePrice         string      `json:"oracle_price,omitempty"`
	EntryFeeBasisPoints uint64      `json:"entry_fee_basis_points"`
	ExitFeeBasisPoints  uint64      `json:"exit_fee_basis_points"`
	Strategy            string      `json:"strategy"`
	RebalanceError      string      `json:"rebalance_error,omitempty"`
}

// VaultParameters is a persisted version of the owner-controlled vault configuration.
type VaultParameters struct {
	ParamsID            int64       `json:"params_id,omitempty"` // Auto-incremented by DB
	Version             int         `json:"version"`
	ConfigName          string      `json:"config_name"`
	EntryFeeBasisPoints uint64      `json:"entry_fee_basis_points"`
	ExitFeeBasisPoints  uint64      `json:"exit_fee_basis_points"`
	EntryFeeRecipient   string      `json:"entry_fee_recipient"`
	ExitFeeRecipient    string      `json:"exit_fee_recipient"`
	TargetHealthFactor  sdkmath.Int `json:"target_health_factor"`
	ActivatedAt         time.Time   `json:"activated_at"`
}

// SameSettings reports whether p and other configure the vault identically.
func (p VaultParameters) SameSettings(other VaultParameters) bool {
	if p.TargetHealthFactor.IsNil() || other.TargetHealthFactor.IsNil() {
		return p.TargetHealthFactor.IsNil() == other.TargetHealthFactor.IsNil() && p.sameFees(other)
	}
	return p.TargetHealthFactor.Equal(other.TargetHealthFactor) && p.sameFees(other)
}

func (p VaultParameters) sameFees(other VaultParameters) bool {
	return p.EntryFeeBasisPoints == other.EntryFeeBasisPoints &&
		p.ExitFeeBasisPoints == other.ExitFeeBasisPoints &&
		p.EntryFeeRecipient == other.EntryFeeRecipient &&
		p.ExitFeeRecipient == other.ExitFeeRecipient
}
