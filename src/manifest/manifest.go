// Package manifest resolves the authoritative version list and per-version
// descriptors from the upstream manifest service, per spec §4.3.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/outpost-dev/launchcore/src/layout"
	"github.com/outpost-dev/launchcore/src/rules"
)

const defaultManifestURL = "https://launchermeta.mojang.com/mc/game/version_manifest_v2.json"

// manifestCacheTTL bounds how long an in-memory VersionManifest is reused
// before a fresh fetch is attempted, mirroring the short in-memory TTL
// cache spec §4.3 allows (modeled after the versionCache pattern used for
// MC server-jar provider version lists in the retrieval pack).
const manifestCacheTTL = 15 * time.Minute

// VersionType enumerates the Minecraft release channels.
type VersionType string

const (
	TypeRelease  VersionType = "release"
	TypeSnapshot VersionType = "snapshot"
	TypeOldAlpha VersionType = "old_alpha"
	TypeOldBeta  VersionType = "old_beta"
)

// VersionEntry is one row of the version-list manifest.
type VersionEntry struct {
	ID            string      `json:"id"`
	Type          VersionType `json:"type"`
	DescriptorURL string      `json:"url"`
	UpdatedAt     string      `json:"time"`
	ReleasedAt    string      `json:"releaseTime"`
}

// VersionManifest is the immutable, once-fetched version list.
type VersionManifest struct {
	Latest struct {
		ReleaseID  string `json:"release"`
		SnapshotID string `json:"snapshot"`
	} `json:"latest"`
	Versions []VersionEntry `json:"versions"`
}

// Find returns the manifest entry for id, if present.
func (m VersionManifest) Find(id string) (VersionEntry, bool) {
	for _, v := range m.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return VersionEntry{}, false
}

// rawArtifact mirrors the {url, sha1, size[, path, totalSize]} shape shared
// by every downloadable entry in a descriptor.
type rawArtifact struct {
	URL       string `json:"url"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	Path      string `json:"path,omitempty"`
	TotalSize int64  `json:"totalSize,omitempty"`
}

type rawOS struct {
	Name        string `json:"name,omitempty"`
	VersionExpr string `json:"version,omitempty"`
	Arch        string `json:"arch,omitempty"`
}

type rawRule struct {
	Action   string         `json:"action"`
	OS       *rawOS         `json:"os,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
}

func (r rawRule) toRule() rules.Rule {
	out := rules.Rule{Action: rules.Action(r.Action), Features: r.Features}
	if r.OS != nil {
		out.OS = &rules.OSCondition{Name: r.OS.Name, VersionExpr: r.OS.VersionExpr, Arch: r.OS.Arch}
	}
	return out
}

// Library describes one dependency jar, optionally native, optionally
// conditional.
type Library struct {
	Name    string
	Artifact *rawArtifact
	// Natives maps an OS name ("windows", "osx", "linux") to the
	// classifier string used to look up the native artifact.
	Natives map[string]string
	// NativeArtifacts maps a classifier string to its artifact.
	NativeArtifacts map[string]rawArtifact
	Extract         *ExtractRule
	Rules           []rules.Rule
}

// ExtractRule lists path prefixes to skip during native extraction.
type ExtractRule struct {
	Exclude []string
}

type rawLibrary struct {
	Name      string `json:"name"`
	Downloads struct {
		Artifact    *rawArtifact           `json:"artifact,omitempty"`
		Classifiers map[string]rawArtifact `json:"classifiers,omitempty"`
	} `json:"downloads"`
	Natives map[string]string `json:"natives,omitempty"`
	Extract *struct {
		Exclude []string `json:"exclude"`
	} `json:"extract,omitempty"`
	Rules []rawRule `json:"rules,omitempty"`
}

func (rl rawLibrary) toLibrary() Library {
	lib := Library{
		Name:            rl.Name,
		Artifact:        rl.Downloads.Artifact,
		Natives:         rl.Natives,
		NativeArtifacts: rl.Downloads.Classifiers,
	}
	if rl.Extract != nil {
		lib.Extract = &ExtractRule{Exclude: rl.Extract.Exclude}
	}
	for _, r := range rl.Rules {
		lib.Rules = append(lib.Rules, r.toRule())
	}
	return lib
}

// ArgEntry is a tagged-variant argument: either a bare literal or a
// rule-guarded group of one-or-more literal values (spec §4.8, design note
// in spec §9: avoid an accidental shared base class for the two shapes).
type ArgEntry struct {
	Literal string   // set when IsGroup is false
	Rules   []rules.Rule
	Values  []string // set when IsGroup is true
	IsGroup bool
}

func (a *ArgEntry) UnmarshalJSON(data []byte) error {
	var lit string
	if err := json.Unmarshal(data, &lit); err == nil {
		*a = ArgEntry{Literal: lit}
		return nil
	}

	var group struct {
		Rules []rawRule       `json:"rules"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &group); err != nil {
		return fmt.Errorf("manifest: unrecognized argument entry: %w", err)
	}

	entry := ArgEntry{IsGroup: true}
	for _, r := range group.Rules {
		entry.Rules = append(entry.Rules, r.toRule())
	}

	var single string
	if err := json.Unmarshal(group.Value, &single); err == nil {
		entry.Values = []string{single}
		*a = entry
		return nil
	}
	var multi []string
	if err := json.Unmarshal(group.Value, &multi); err == nil {
		entry.Values = multi
		*a = entry
		return nil
	}
	return fmt.Errorf("manifest: argument group value is neither string nor []string")
}

// Arguments holds the templated JVM and game argument lists.
type Arguments struct {
	Game []ArgEntry `json:"game"`
	JVM  []ArgEntry `json:"jvm"`
}

// JavaVersion names the component/major version a descriptor was built
// against.
type JavaVersion struct {
	Component string `json:"component"`
	Major     int    `json:"majorVersion"`
}

// Descriptor is a single version's complete run descriptor.
type Descriptor struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	MainClass string `json:"mainClass"`

	AssetIndex struct {
		ID        string `json:"id"`
		URL       string `json:"url"`
		SHA1      string `json:"sha1"`
		Size      int64  `json:"size"`
		TotalSize int64  `json:"totalSize"`
	} `json:"assetIndex"`

	Downloads struct {
		Client         *rawArtifact `json:"client,omitempty"`
		ClientMappings *rawArtifact `json:"client_mappings,omitempty"`
		Server         *rawArtifact `json:"server,omitempty"`
	} `json:"downloads"`

	librariesRaw []rawLibrary

	Arguments          Arguments `json:"arguments"`
	MinecraftArguments string    `json:"minecraftArguments,omitempty"`

	JavaVersion JavaVersion `json:"javaVersion"`
	ReleaseTime string      `json:"releaseTime"`

	// InheritsFrom names a parent version profile to merge under this one
	// (common for mod-loader profiles layered on a vanilla base). Resolving
	// Forge/Fabric version numbers is out of scope; merging an existing
	// profile's already-resolved inheritsFrom pointer is not.
	InheritsFrom string `json:"inheritsFrom,omitempty"`
}

// Libraries returns the descriptor's library list in its original,
// deterministic descriptor order.
func (d Descriptor) Libraries() []Library {
	out := make([]Library, 0, len(d.librariesRaw))
	for _, rl := range d.librariesRaw {
		out = append(out, rl.toLibrary())
	}
	return out
}

// UnmarshalJSON validates that required fields are present and otherwise
// ignores unknown keys (spec §9: "ignore unknown JSON keys; do not fail on
// new fields. Do fail on missing required fields."). A descriptor that names
// an inheritsFrom parent only needs "id"; the rest may come from the parent
// when FetchDescriptor merges the two.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type alias Descriptor
	aux := struct {
		Libraries []rawLibrary `json:"libraries"`
		*alias
	}{alias: (*alias)(d)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.librariesRaw = aux.Libraries

	if d.ID == "" {
		return fmt.Errorf("manifest: descriptor missing required field \"id\"")
	}
	if d.InheritsFrom != "" {
		return nil
	}
	if d.MainClass == "" {
		return fmt.Errorf("manifest: descriptor %s missing required field \"mainClass\"", d.ID)
	}
	if d.AssetIndex.ID == "" || d.AssetIndex.URL == "" {
		return fmt.Errorf("manifest: descriptor %s missing required field \"assetIndex\"", d.ID)
	}
	if d.Downloads.Client == nil {
		return fmt.Errorf("manifest: descriptor %s missing required field \"downloads.client\"", d.ID)
	}
	return nil
}

// AssetObject is one entry of an asset index: a logical asset name mapped
// to its content hash and size.
type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// AssetIndex maps logical asset names to AssetObjects.
type AssetIndex struct {
	Objects map[string]AssetObject `json:"objects"`
}

// UniqueObjects deduplicates by hash, since many logical names commonly
// share one object.
func (a AssetIndex) UniqueObjects() map[string]int64 {
	out := make(map[string]int64)
	for _, obj := range a.Objects {
		out[obj.Hash] = obj.Size
	}
	return out
}

// HTTPDoer is the minimal transport dependency, satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver fetches and parses the manifest and version descriptors,
// caching descriptors on disk under R/versions/<id>/<id>.json and the
// manifest in memory for manifestCacheTTL.
type Resolver struct {
	http        HTTPDoer
	root        layout.Root
	manifestURL string
	log         *zap.Logger

	mu          sync.Mutex
	cached      *VersionManifest
	cachedAt    time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithManifestURL overrides the default Mojang manifest endpoint.
func WithManifestURL(url string) Option {
	return func(r *Resolver) { r.manifestURL = url }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// NewResolver constructs a Resolver rooted at root, using doer for HTTP.
func NewResolver(doer HTTPDoer, root layout.Root, opts ...Option) *Resolver {
	r := &Resolver{
		http:        doer,
		root:        root,
		manifestURL: defaultManifestURL,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchManifest downloads the version-list manifest, reusing an in-memory
// copy younger than manifestCacheTTL. Failure here is fatal to any
// operation requiring up-to-date version lists, but callers launching an
// already-installed version should not call it at all.
func (r *Resolver) FetchManifest(ctx context.Context) (VersionManifest, error) {
	r.mu.Lock()
	if r.cached != nil && time.Since(r.cachedAt) < manifestCacheTTL {
		m := *r.cached
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.manifestURL, nil)
	if err != nil {
		return VersionManifest{}, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return VersionManifest{}, fmt.Errorf("manifest: fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return VersionManifest{}, fmt.Errorf("manifest: manifest request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return VersionManifest{}, fmt.Errorf("manifest: read manifest body: %w", err)
	}

	var m VersionManifest
	if err := json.Unmarshal(body, &m); err != nil {
		return VersionManifest{}, fmt.Errorf("manifest: parse manifest: %w", err)
	}

	r.mu.Lock()
	r.cached = &m
	r.cachedAt = time.Now()
	r.mu.Unlock()

	r.log.Debug("fetched version manifest", zap.Int("versions", len(m.Versions)))
	return m, nil
}

// FetchDescriptor returns a version's descriptor, preferring an on-disk
// cache at R/versions/<id>/<id>.json. If absent, it resolves the
// descriptor URL from the manifest and downloads it; the descriptor JSON
// carries no declared hash of its own (integrity relies on transport
// security plus the hashes it references for downstream files).
func (r *Resolver) FetchDescriptor(ctx context.Context, versionID string) (Descriptor, error) {
	d, err := r.fetchDescriptorRaw(ctx, versionID)
	if err != nil {
		return Descriptor{}, err
	}
	if d.InheritsFrom == "" || d.InheritsFrom == versionID {
		return d, nil
	}

	r.log.Debug("version inherits from parent profile", zap.String("version", versionID), zap.String("parent", d.InheritsFrom))
	parent, err := r.FetchDescriptor(ctx, d.InheritsFrom)
	if err != nil {
		return Descriptor{}, fmt.Errorf("manifest: loading parent version %s for %s: %w", d.InheritsFrom, versionID, err)
	}
	return mergeDescriptor(d, parent), nil
}

// mergeDescriptor takes MainClass, MinecraftArguments, AssetIndex, the client
// download and JavaVersion from parent wherever child leaves them unset,
// takes parent's arguments when child has none (otherwise prepends parent's
// game and JVM arguments to child's), and prepends parent's libraries ahead
// of child's. Other fields keep child's values (spec §9 supplement: profile
// inheritance for mod-loader profiles already resolved elsewhere).
func mergeDescriptor(child, parent Descriptor) Descriptor {
	if child.MainClass == "" {
		child.MainClass = parent.MainClass
	}
	if child.MinecraftArguments == "" {
		child.MinecraftArguments = parent.MinecraftArguments
	}
	if len(child.Arguments.Game) == 0 && len(child.Arguments.JVM) == 0 {
		child.Arguments = parent.Arguments
	} else {
		child.Arguments.Game = append(append([]ArgEntry{}, parent.Arguments.Game...), child.Arguments.Game...)
		child.Arguments.JVM = append(append([]ArgEntry{}, parent.Arguments.JVM...), child.Arguments.JVM...)
	}
	if child.AssetIndex.ID == "" {
		child.AssetIndex = parent.AssetIndex
	}
	if child.Downloads.Client == nil {
		child.Downloads.Client = parent.Downloads.Client
	}
	if child.JavaVersion.Major == 0 {
		child.JavaVersion = parent.JavaVersion
	}
	child.librariesRaw = append(append([]rawLibrary{}, parent.librariesRaw...), child.librariesRaw...)
	return child
}

func (r *Resolver) fetchDescriptorRaw(ctx context.Context, versionID string) (Descriptor, error) {
	cachePath := r.root.VersionDescriptorPath(versionID)
	if data, err := os.ReadFile(cachePath); err == nil {
		var d Descriptor
		if err := json.Unmarshal(data, &d); err == nil {
			return d, nil
		}
		r.log.Warn("cached descriptor invalid, refetching", zap.String("version", versionID))
	}

	m, err := r.FetchManifest(ctx)
	if err != nil {
		return Descriptor{}, err
	}
	entry, ok := m.Find(versionID)
	if !ok {
		return Descriptor{}, fmt.Errorf("manifest: version %q not found in manifest", versionID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.DescriptorURL, nil)
	if err != nil {
		return Descriptor{}, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return Descriptor{}, fmt.Errorf("manifest: fetch descriptor %s: %w", versionID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Descriptor{}, fmt.Errorf("manifest: descriptor request for %s returned status %d", versionID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Descriptor{}, fmt.Errorf("manifest: read descriptor %s: %w", versionID, err)
	}

	var d Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return Descriptor{}, fmt.Errorf("manifest: parse descriptor %s: %w", versionID, err)
	}

	if err := os.MkdirAll(r.root.VersionDir(versionID), 0o755); err != nil {
		return Descriptor{}, fmt.Errorf("manifest: create version dir for %s: %w", versionID, err)
	}
	if err := os.WriteFile(cachePath, body, 0o644); err != nil {
		r.log.Warn("failed to cache descriptor to disk", zap.String("version", versionID), zap.Error(err))
	}

	return d, nil
}

// FetchAssetIndex reads and parses the asset index file at path; it does no
// network I/O. Callers are expected to have already downloaded and verified
// the on-disk copy via hashfetch before calling this to parse it; this
// helper exists for the in-memory parse step itself.
func FetchAssetIndex(path string) (AssetIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AssetIndex{}, fmt.Errorf("manifest: read asset index %s: %w", path, err)
	}
	var idx AssetIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return AssetIndex{}, fmt.Errorf("manifest: parse asset index %s: %w", path, err)
	}
	return idx, nil
}
