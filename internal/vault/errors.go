package vault

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	"github.com/elys-network/hfvault/internal/fees"
	"github.com/elys-network/hfvault/internal/healthfactor"
	"github.com/elys-network/hfvault/internal/roles"
)

// ModuleName is the codespace of every vault error.
const ModuleName = "hfvault"

var (
	ErrZeroAddress                = errorsmod.Register(ModuleName, 2, "zero address")
	ErrInvalidPath                = errorsmod.Register(ModuleName, 3, "swap path must have at least two assets")
	ErrAccessDenied               = errorsmod.Register(ModuleName, 4, "access denied")
	ErrNoSharesMinted             = errorsmod.Register(ModuleName, 5, "no shares minted")
	ErrCollaboratorFailure        = errorsmod.Register(ModuleName, 6, "collaborator call failed")
	ErrDivisionByZeroHealthFactor = errorsmod.Register(ModuleName, 7, "target health factor is zero")
	ErrInvalidAmount              = errorsmod.Register(ModuleName, 8, "invalid amount")
	ErrInvalidBasisPoints         = errorsmod.Register(ModuleName, 9, "basis points out of range")
	ErrReentrantCall              = errorsmod.Register(ModuleName, 10, "re-entrant call")
	ErrExceededMaxWithdraw        = errorsmod.Register(ModuleName, 11, "withdraw exceeds maximum")
	ErrExceededMaxRedeem          = errorsmod.Register(ModuleName, 12, "redeem exceeds maximum")
	ErrInsufficientAllowance      = errorsmod.Register(ModuleName, 13, "insufficient share allowance")
	ErrStalePrice                 = errorsmod.Register(ModuleName, 14, "oracle price is stale")
	ErrAmountOverflow             = errorsmod.Register(ModuleName, 15, "amount exceeds 256-bit range")
	ErrInsufficientShares         = errorsmod.Register(ModuleName, 16, "insufficient shares")
)

// collaboratorFailure keeps both the vault condition and the collaborator's own error matchable.
func collaboratorFailure(op string, err error) error {
	return errors.Join(errorsmod.Wrap(ErrCollaboratorFailure, op), err)
}

// translate maps errors of the leaf packages onto the vault taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, healthfactor.ErrZeroHealthFactor):
		return errorsmod.Wrap(ErrDivisionByZeroHealthFactor, err.Error())
	case errors.Is(err, healthfactor.ErrOverflow), errors.Is(err, fees.ErrResultOverflow):
		return errorsmod.Wrap(ErrAmountOverflow, err.Error())
	case errors.Is(err, healthfactor.ErrAmountInvalid), errors.Is(err, fees.ErrAmountNil), errors.Is(err, fees.ErrAmountNegative):
		return errorsmod.Wrap(ErrInvalidAmount, err.Error())
	case errors.Is(err, fees.ErrBasisPointsInvalid):
		return errorsmod.Wrap(ErrInvalidBasisPoints, err.Error())
	case errors.Is(err, roles.ErrAccessDenied):
		return errorsmod.Wrap(ErrAccessDenied, err.Error())
	case errors.Is(err, roles.ErrZeroAddress):
		return errorsmod.Wrap(ErrZeroAddress, err.Error())
	case errors.Is(err, roles.ErrUnknownRole):
		return errorsmod.Wrap(ErrAccessDenied, err.Error())
	default:
		return err
	}
}
