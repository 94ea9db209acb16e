// Package layout defines the on-disk path scheme for a Minecraft install
// root: where version descriptors, client jars, libraries, asset objects,
// and per-launch native directories live. Path construction here is pure;
// no package in this module performs I/O before consulting it.
package layout

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Root is the base directory of a Minecraft install (".minecraft" or
// equivalent). All paths returned by this package are rooted under it.
type Root struct {
	dir string
}

// New returns a Root anchored at dir. dir is not created or validated here.
func New(dir string) Root {
	return Root{dir: dir}
}

// Dir returns the root directory itself.
func (r Root) Dir() string {
	return r.dir
}

// VersionDir returns R/versions/<id>.
func (r Root) VersionDir(id string) string {
	return filepath.Join(r.dir, "versions", id)
}

// VersionDescriptorPath returns R/versions/<id>/<id>.json.
func (r Root) VersionDescriptorPath(id string) string {
	return filepath.Join(r.VersionDir(id), id+".json")
}

// VersionJarPath returns R/versions/<id>/<id>.jar.
func (r Root) VersionJarPath(id string) string {
	return filepath.Join(r.VersionDir(id), id+".jar")
}

// LibrariesDir returns R/libraries.
func (r Root) LibrariesDir() string {
	return filepath.Join(r.dir, "libraries")
}

// GroupPath converts a Maven group id ("com.mojang") into its path
// component ("com/mojang").
func GroupPath(group string) string {
	return strings.ReplaceAll(group, ".", "/")
}

// LibraryCoordinate is a parsed Maven-style library identifier
// "group:artifact:version[:classifier]".
type LibraryCoordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string
}

// ParseCoordinate parses "group:artifact:version" or
// "group:artifact:version:classifier".
func ParseCoordinate(name string) (LibraryCoordinate, error) {
	parts := strings.Split(name, ":")
	if len(parts) < 3 {
		return LibraryCoordinate{}, fmt.Errorf("layout: malformed library coordinate %q", name)
	}
	c := LibraryCoordinate{Group: parts[0], Artifact: parts[1], Version: parts[2]}
	if len(parts) >= 4 {
		c.Classifier = parts[3]
	}
	return c, nil
}

// LibraryPath returns R/libraries/<group_path>/<artifact>/<version>/<artifact>-<version>[-<classifier>].jar
func (r Root) LibraryPath(c LibraryCoordinate) string {
	filename := c.Artifact + "-" + c.Version
	if c.Classifier != "" {
		filename += "-" + c.Classifier
	}
	filename += ".jar"
	return filepath.Join(r.LibrariesDir(), GroupPath(c.Group), c.Artifact, c.Version, filename)
}

// AssetsDir returns R/assets.
func (r Root) AssetsDir() string {
	return filepath.Join(r.dir, "assets")
}

// AssetIndexPath returns R/assets/indexes/<asset_index_id>.json.
func (r Root) AssetIndexPath(assetIndexID string) string {
	return filepath.Join(r.AssetsDir(), "indexes", assetIndexID+".json")
}

// AssetObjectsDir returns R/assets/objects.
func (r Root) AssetObjectsDir() string {
	return filepath.Join(r.AssetsDir(), "objects")
}

// AssetObjectPath returns R/assets/objects/<h[0:2]>/<h> for a SHA-1 hash h.
func (r Root) AssetObjectPath(hash string) (string, error) {
	if len(hash) < 2 {
		return "", fmt.Errorf("layout: asset hash %q too short", hash)
	}
	return filepath.Join(r.AssetObjectsDir(), hash[:2], hash), nil
}

// NativesDir returns R/natives/<id>-<nonce>, the scratch directory used for
// one launch's extracted native libraries.
func (r Root) NativesDir(versionID, nonce string) string {
	return filepath.Join(r.dir, "natives", versionID+"-"+nonce)
}

// NativesGlobPrefix returns R/natives/<id>-, the path prefix used to find
// stale natives directories belonging to versionID, regardless of nonce.
func (r Root) NativesGlobPrefix(versionID string) string {
	return filepath.Join(r.dir, "natives", versionID+"-")
}

// LockPath returns the advisory single-instance lock file for a version.
func (r Root) LockPath(versionID string) string {
	return filepath.Join(r.VersionDir(versionID), ".lock")
}

// PartPath returns the transient partial-download sidecar for dest.
func PartPath(dest string) string {
	return dest + ".part"
}
