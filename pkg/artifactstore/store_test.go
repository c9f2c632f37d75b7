package artifactstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePinner struct {
	failScope Scope
	calls     []Credentials
}

func (f *fakePinner) Pin(ctx context.Context, creds Credentials, content []byte, metadata PinMetadata) (string, error) {
	f.calls = append(f.calls, creds)
	if metadata.KeyValues["scope"] == string(f.failScope) {
		return "", errors.New("pin rejected")
	}
	return "bafy-fake-cid", nil
}

func newTestStore(t *testing.T, pinner Pinner) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := New(Config{
		Pinner:                pinner,
		GatewayBase:           "https://gateway.example/ipfs",
		TeamCredentials:       Credentials{APIKey: "team-key"},
		CommunityCredentials:  Credentials{APIKey: "community-key"},
		TeamRegistryPath:      filepath.Join(dir, "cid-registry-team.json"),
		CommunityRegistryPath: filepath.Join(dir, "cid-registry-community.json"),
	})
	require.NoError(t, err)
	return store
}

func TestUploadComputesArtifactIDFromContentHash(t *testing.T) {
	store := newTestStore(t, &fakePinner{})

	result, err := store.Upload(context.Background(), UploadRequest{
		Content:      []byte("pragma solidity ^0.8.20; contract Token {}"),
		ArtifactType: "contract_source",
		Scope:        ScopeTeam,
	})
	require.NoError(t, err)
	require.Equal(t, "bafy-fake-cid", result.CID)
	require.Contains(t, result.ArtifactID, "contract_source-")
	require.NotEmpty(t, result.RegistryEntry.ContentHash)
	require.Equal(t, "ipfs://bafy-fake-cid", result.IPFSURL)
}

func TestUploadKeepsScopesInSeparateRegistries(t *testing.T) {
	store := newTestStore(t, &fakePinner{})

	teamResult, err := store.Upload(context.Background(), UploadRequest{Content: []byte("team artifact"), ArtifactType: "prompt", Scope: ScopeTeam})
	require.NoError(t, err)

	communityResult, err := store.Upload(context.Background(), UploadRequest{Content: []byte("community artifact"), ArtifactType: "prompt", Scope: ScopeCommunity, UserID: "user-1"})
	require.NoError(t, err)

	_, foundInCommunity := store.Lookup(ScopeCommunity, teamResult.ArtifactID)
	require.False(t, foundInCommunity)

	_, foundInTeam := store.Lookup(ScopeTeam, communityResult.ArtifactID)
	require.False(t, foundInTeam)

	entry, ok := store.Lookup(ScopeCommunity, communityResult.ArtifactID)
	require.True(t, ok)
	require.Equal(t, "user-1", entry.Metadata["uploader_id"])
}

func TestUploadFailsTerminallyWithoutFallback(t *testing.T) {
	store := newTestStore(t, &fakePinner{failScope: ScopeCommunity})

	_, err := store.Upload(context.Background(), UploadRequest{Content: []byte("x"), ArtifactType: "prompt", Scope: ScopeCommunity})
	require.Error(t, err)

	_, found := store.Lookup(ScopeTeam, "prompt-0000000000000000")
	require.False(t, found)
}

func TestCommunityCredentialsFallBackToTeamWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	pinner := &fakePinner{}
	store, err := New(Config{
		Pinner:                pinner,
		GatewayBase:           "https://gateway.example/ipfs",
		TeamCredentials:       Credentials{APIKey: "team-key"},
		TeamRegistryPath:      filepath.Join(dir, "cid-registry-team.json"),
		CommunityRegistryPath: filepath.Join(dir, "cid-registry-community.json"),
	})
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), UploadRequest{Content: []byte("x"), ArtifactType: "prompt", Scope: ScopeCommunity})
	require.NoError(t, err)

	require.Len(t, pinner.calls, 1)
	require.Equal(t, "team-key", pinner.calls[0].APIKey)
}

func TestInvalidScopeIsRejected(t *testing.T) {
	store := newTestStore(t, &fakePinner{})
	_, err := store.Upload(context.Background(), UploadRequest{Content: []byte("x"), ArtifactType: "prompt", Scope: "BOGUS"})
	require.Error(t, err)
}
