package memory

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
)

// ModuleAddress derives a deterministic account address for a named in-memory collaborator.
func ModuleAddress(name string) sdk.AccAddress {
	return authtypes.NewModuleAddress(name)
}
