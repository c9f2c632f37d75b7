// Package artifactstore uploads generated artifacts (contract source,
// prompts, workflow context, metadata) to a content-addressed pinning
// service under one of two strictly-separated namespaces: team
// (official, vetted) and community (user-generated). Each scope keeps
// its own on-disk registry; nothing ever crosses between them.
package artifactstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/contractforge/forge/internal/atomicfile"
)

// Scope is one of the two strictly-separated artifact namespaces.
type Scope string

const (
	ScopeTeam      Scope = "TEAM"
	ScopeCommunity Scope = "COMMUNITY"
)

// Credentials authenticates against the pinning API for one scope.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Pinner is the minimal surface of a content-addressed pinning service
// (e.g. Pinata-style IPFS pinning). A real implementation lives behind
// this interface so the store can be tested without network access.
type Pinner interface {
	Pin(ctx context.Context, creds Credentials, content []byte, metadata PinMetadata) (cid string, err error)
}

// PinMetadata is submitted alongside the content to the pinning API.
type PinMetadata struct {
	Name      string
	KeyValues map[string]string
}

// RegistryEntry is one uploaded artifact's permanent record.
type RegistryEntry struct {
	ArtifactID  string            `json:"artifact_id"`
	CID         string            `json:"cid"`
	Scope       Scope             `json:"scope"`
	ArtifactType string           `json:"artifact_type"`
	ContentHash string            `json:"content_hash"`
	IPFSURL     string            `json:"ipfs_url"`
	GatewayURL  string            `json:"gateway_url"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UploadResult is returned from Upload.
type UploadResult struct {
	CID           string
	Scope         Scope
	ArtifactID    string
	IPFSURL       string
	GatewayURL    string
	RegistryEntry RegistryEntry
}

// UploadRequest describes one artifact to upload.
type UploadRequest struct {
	Content           []byte
	ArtifactType      string
	Scope             Scope
	Metadata          map[string]string
	WorkflowSignature string
	UserID            string
}

// Store is the Dual-Scope Artifact Store. It owns two independent
// registries and two independent credential sets; Upload never lets an
// artifact cross between them.
type Store struct {
	pinner      Pinner
	gatewayBase string

	teamCreds      Credentials
	communityCreds Credentials

	teamRegistry      *registry
	communityRegistry *registry
}

// Config configures a Store.
type Config struct {
	Pinner             Pinner
	GatewayBase        string // e.g. "https://gateway.pinata.cloud/ipfs"
	TeamCredentials    Credentials
	CommunityCredentials Credentials
	TeamRegistryPath   string
	CommunityRegistryPath string
}

// New builds a Store. If CommunityCredentials is the zero value,
// community uploads fall through to team credentials — registry
// separation still holds unconditionally.
func New(cfg Config) (*Store, error) {
	teamReg, err := loadRegistry(cfg.TeamRegistryPath)
	if err != nil {
		return nil, fmt.Errorf("artifactstore: load team registry: %w", err)
	}
	communityReg, err := loadRegistry(cfg.CommunityRegistryPath)
	if err != nil {
		return nil, fmt.Errorf("artifactstore: load community registry: %w", err)
	}

	communityCreds := cfg.CommunityCredentials
	if communityCreds == (Credentials{}) {
		communityCreds = cfg.TeamCredentials
	}

	return &Store{
		pinner:            cfg.Pinner,
		gatewayBase:       cfg.GatewayBase,
		teamCreds:         cfg.TeamCredentials,
		communityCreds:    communityCreds,
		teamRegistry:      teamReg,
		communityRegistry: communityReg,
	}, nil
}

// Upload computes the content hash, pins the content under scope's
// credentials, and records the result in scope's registry. On pinning
// failure it returns a terminal error with no silent fallback to the
// other scope.
func (s *Store) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Scope != ScopeTeam && req.Scope != ScopeCommunity {
		return nil, fmt.Errorf("artifactstore: invalid scope %q", req.Scope)
	}

	hashBytes := sha256.Sum256(req.Content)
	contentHash := hex.EncodeToString(hashBytes[:])

	keyValues := map[string]string{
		"scope":        string(req.Scope),
		"artifact_type": req.ArtifactType,
		"content_hash": contentHash,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if req.WorkflowSignature != "" {
		keyValues["workflow_signature"] = req.WorkflowSignature
	}
	if req.Scope == ScopeCommunity && req.UserID != "" {
		keyValues["uploader_id"] = req.UserID
	}
	for k, v := range req.Metadata {
		keyValues[k] = v
	}

	creds := s.credentialsFor(req.Scope)
	pinMeta := PinMetadata{
		Name:      fmt.Sprintf("%s-%d", req.ArtifactType, time.Now().UTC().Unix()),
		KeyValues: keyValues,
	}

	cid, err := s.pinner.Pin(ctx, creds, req.Content, pinMeta)
	if err != nil {
		return nil, fmt.Errorf("artifactstore: pin failed: %w", err)
	}

	artifactID := fmt.Sprintf("%s-%s", req.ArtifactType, contentHash[:16])
	entry := RegistryEntry{
		ArtifactID:   artifactID,
		CID:          cid,
		Scope:        req.Scope,
		ArtifactType: req.ArtifactType,
		ContentHash:  contentHash,
		IPFSURL:      fmt.Sprintf("ipfs://%s", cid),
		GatewayURL:   fmt.Sprintf("%s/%s", s.gatewayBase, cid),
		UploadedAt:   time.Now().UTC(),
		Metadata:     keyValues,
	}

	reg := s.registryFor(req.Scope)
	if err := reg.insert(entry); err != nil {
		return nil, fmt.Errorf("artifactstore: persist registry: %w", err)
	}

	return &UploadResult{
		CID:           cid,
		Scope:         req.Scope,
		ArtifactID:    artifactID,
		IPFSURL:       entry.IPFSURL,
		GatewayURL:    entry.GatewayURL,
		RegistryEntry: entry,
	}, nil
}

func (s *Store) credentialsFor(scope Scope) Credentials {
	if scope == ScopeTeam {
		return s.teamCreds
	}
	return s.communityCreds
}

func (s *Store) registryFor(scope Scope) *registry {
	if scope == ScopeTeam {
		return s.teamRegistry
	}
	return s.communityRegistry
}

// Lookup returns the registry entry for artifactID within scope, if
// present.
func (s *Store) Lookup(scope Scope, artifactID string) (RegistryEntry, bool) {
	return s.registryFor(scope).get(artifactID)
}

// List returns every entry registered under scope. Callers must not rely
// on ordering; the underlying registry is a map.
func (s *Store) List(scope Scope) []RegistryEntry {
	return s.registryFor(scope).all()
}

// registry is a per-scope, mutex-guarded, atomically-persisted set of
// RegistryEntry records keyed by artifact ID.
type registry struct {
	mu      sync.RWMutex
	path    string
	entries map[string]RegistryEntry
}

func loadRegistry(path string) (*registry, error) {
	r := &registry{path: path, entries: make(map[string]RegistryEntry)}
	data, err := atomicfile.ReadFile(path)
	if err != nil {
		return r, nil
	}
	var entries map[string]RegistryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	r.entries = entries
	return r, nil
}

func (r *registry) insert(entry RegistryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.ArtifactID] = entry
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(r.path, data, 0o644)
}

func (r *registry) get(artifactID string) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[artifactID]
	return e, ok
}

func (r *registry) all() []RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
