/*

This file contains the event records emitted by the vault on every committed state change.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventType identifies the kind of committed state change.
type EventType string

const (
	EventDeposit               EventType = "DEPOSIT"
	EventWithdraw              EventType = "WITHDRAW"
	EventFeeCollected          EventType = "FEE_COLLECTED"
	EventSharesApproved        EventType = "SHARES_APPROVED"
	EventSharesTransferred     EventType = "SHARES_TRANSFERRED"
	EventActionExecuted        EventType = "ACTION_EXECUTED"
	EventStrategyRotated       EventType = "STRATEGY_ROTATED"
	EventRebalance             EventType = "REBALANCE"
	EventFeeBasisPointsUpdated EventType = "FEE_BASIS_POINTS_UPDATED"
	EventFeeRecipientsUpdated  EventType = "FEE_RECIPIENTS_UPDATED"
	EventHealthFactorUpdated   EventType = "HEALTH_FACTOR_UPDATED"
	EventCollaboratorUpdated   EventType = "COLLABORATOR_UPDATED"
	EventRoleGranted           EventType = "ROLE_GRANTED"
	EventRoleRevoked           EventType = "ROLE_REVOKED"
)

// Event is a single record of a committed vault transaction. Amount fields are
// populated only for the event types that carry them.
type Event struct {
	ID         string            `json:"id"`
	TxID       string            `json:"tx_id"` // All events of one transaction share it
	Type       EventType         `json:"type"`
	Caller     string            `json:"caller"`
	Receiver   string            `json:"receiver,omitempty"`
	Owner      string            `json:"owner,omitempty"`
	Assets     sdkmath.Int       `json:"assets"`
	Shares     sdkmath.Int       `json:"shares"`
	Fee        sdkmath.Int       `json:"fee"`
	Receipt    *ActionReceipt    `json:"receipt,omitempty"` // For ACTION_EXECUTED
	Attributes map[string]string `json:"attributes,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}
