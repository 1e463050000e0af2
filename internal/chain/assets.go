package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cosmos/cosmos-sdk/types/query"
	assetprofile "github.com/elys-network/elys/v6/x/assetprofile/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/elys-network/hfvault/internal/logger"
)

var ErrUnknownDenom = errors.New("denom is not registered in the asset profile")

// AssetProfileClient is the part of the assetprofile query client used for entries.
type AssetProfileClient interface {
	EntryAll(ctx context.Context, in *assetprofile.QueryAllEntryRequest, opts ...grpc.CallOption) (*assetprofile.QueryAllEntryResponse, error)
}

// AssetRegistry resolves denoms against the chain's asset profile.
type AssetRegistry struct {
	client AssetProfileClient
	logger zerolog.Logger
}

func NewAssetRegistry(client AssetProfileClient) (*AssetRegistry, error) {
	if client == nil {
		return nil, errors.New("assetprofile client cannot be nil")
	}
	return &AssetRegistry{client: client, logger: logger.GetForComponent("asset_registry")}, nil
}

// NewAssetRegistryFromConn creates a registry using the assetprofile query client on conn.
func NewAssetRegistryFromConn(conn *grpc.ClientConn) (*AssetRegistry, error) {
	if conn == nil {
		return nil, errors.New("GRPC client cannot be nil")
	}
	return NewAssetRegistry(assetprofile.NewQueryClient(conn))
}

// FetchAllEntries pages through the asset profile and returns every entry.
func (r *AssetRegistry) FetchAllEntries(ctx context.Context) ([]assetprofile.Entry, error) {
	var (
		entries []assetprofile.Entry
		nextKey []byte
	)
	for {
		response, err := r.client.EntryAll(ctx, &assetprofile.QueryAllEntryRequest{
			Pagination: &query.PageRequest{Key: nextKey, Limit: pricePageLimit},
		})
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to fetch token entries from assetprofile module")
			return nil, fmt.Errorf("assetprofile query failed: %w", err)
		}
		if response == nil {
			return nil, errors.New("nil response from assetprofile module")
		}
		entries = append(entries, response.Entry...)

		if response.Pagination == nil || len(response.Pagination.NextKey) == 0 {
			break
		}
		nextKey = response.Pagination.NextKey
	}
	if len(entries) == 0 {
		return nil, errors.New("no token entries available from assetprofile module")
	}
	r.logger.Info().Int("tokenCount", len(entries)).Msg("Fetched token entries from assetprofile")
	return entries, nil
}

// RequireDenoms fails with ErrUnknownDenom unless every denom matches an entry's denom or base
// denom. It returns the matching entries keyed by the requested denom.
func (r *AssetRegistry) RequireDenoms(ctx context.Context, denoms ...string) (map[string]assetprofile.Entry, error) {
	entries, err := r.FetchAllEntries(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]assetprofile.Entry, 2*len(entries))
	for _, entry := range entries {
		if entry.BaseDenom != "" {
			index[entry.BaseDenom] = entry
		}
		if entry.Denom != "" {
			index[entry.Denom] = entry
		}
	}

	found := make(map[string]assetprofile.Entry, len(denoms))
	var missing []string
	for _, denom := range denoms {
		entry, ok := index[denom]
		if !ok {
			missing = append(missing, denom)
			continue
		}
		found[denom] = entry
		r.logger.Debug().
			Str("denom", denom).
			Str("displayName", entry.DisplayName).
			Uint64("decimals", entry.Decimals).
			Msg("Denom resolved")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDenom, strings.Join(missing, ", "))
	}
	return found, nil
}
