// Package planner expands a version descriptor into a concrete,
// deduplicated set of download tasks, per spec §4.5. Planning is split into
// two phases because the asset-object task set is unknown until the asset
// index itself is on disk.
package planner

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/outpost-dev/launchcore/src/hashfetch"
	"github.com/outpost-dev/launchcore/src/layout"
	"github.com/outpost-dev/launchcore/src/manifest"
	"github.com/outpost-dev/launchcore/src/rules"
)

// Task is one planned download: a source URL bound to a unique destination
// path, with whatever integrity metadata the descriptor declared.
type Task struct {
	SourceURL    string
	DestPath     string
	ExpectedSHA1 string
	ExpectedSize int64
	Kind         hashfetch.Kind
}

// ConflictError reports two tasks claiming the same dest_path with
// different declared hashes — a malformed descriptor, per spec §4.5 step 5.
type ConflictError struct {
	DestPath string
	First    string
	Second   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("planner: conflicting hashes for %s (%s vs %s)", e.DestPath, e.First, e.Second)
}

// HostContext returns the rules.Context for the running process's platform.
// Feature flags default false; callers may pass features, or set Features
// on the returned value before use.
func HostContext(osVersion string, features map[string]bool) rules.Context {
	var osName string
	switch runtime.GOOS {
	case "windows":
		osName = "windows"
	case "darwin":
		osName = "osx"
	default:
		osName = "linux"
	}
	arch := "x86_64"
	switch runtime.GOARCH {
	case "386":
		arch = "x86"
	case "arm64":
		arch = "arm64"
	}
	if features == nil {
		features = map[string]bool{}
	}
	return rules.Context{OSName: osName, OSVersion: osVersion, Arch: arch, Features: features}
}

// nativeKeyFor resolves the descriptor's os-name key used in a library's
// Natives map for the given context's platform.
func nativeKeyFor(ctx rules.Context) string {
	return ctx.OSName
}

// PlanPhase1 emits the client jar, included libraries (and their natives),
// and the asset index itself — everything plannable before the asset index
// has been downloaded and parsed.
func PlanPhase1(d manifest.Descriptor, root layout.Root, ctx rules.Context) ([]Task, error) {
	byPath := make(map[string]Task)
	add := func(t Task) error {
		if existing, ok := byPath[t.DestPath]; ok {
			if existing.ExpectedSHA1 != "" && t.ExpectedSHA1 != "" && existing.ExpectedSHA1 != t.ExpectedSHA1 {
				return &ConflictError{DestPath: t.DestPath, First: existing.ExpectedSHA1, Second: t.ExpectedSHA1}
			}
			return nil
		}
		byPath[t.DestPath] = t
		return nil
	}

	if d.Downloads.Client == nil {
		return nil, fmt.Errorf("planner: descriptor %s has no client download", d.ID)
	}
	if err := add(Task{
		SourceURL:    d.Downloads.Client.URL,
		DestPath:     root.VersionJarPath(d.ID),
		ExpectedSHA1: d.Downloads.Client.SHA1,
		ExpectedSize: d.Downloads.Client.Size,
		Kind:         hashfetch.KindClient,
	}); err != nil {
		return nil, err
	}

	for _, lib := range d.Libraries() {
		if !rules.Evaluate(lib.Rules, ctx) {
			continue
		}

		if lib.Artifact != nil && lib.Artifact.URL != "" {
			coord, err := layout.ParseCoordinate(lib.Name)
			if err != nil {
				return nil, err
			}
			dest := root.LibraryPath(coord)
			if lib.Artifact.Path != "" {
				dest = joinLibraryPath(root, lib.Artifact.Path)
			}
			if err := add(Task{
				SourceURL:    lib.Artifact.URL,
				DestPath:     dest,
				ExpectedSHA1: lib.Artifact.SHA1,
				ExpectedSize: lib.Artifact.Size,
				Kind:         hashfetch.KindLibrary,
			}); err != nil {
				return nil, err
			}
		}

		if classifier, ok := lib.Natives[nativeKeyFor(ctx)]; ok {
			if art, ok := lib.NativeArtifacts[classifier]; ok && art.URL != "" {
				coord, err := layout.ParseCoordinate(lib.Name)
				if err != nil {
					return nil, err
				}
				coord.Classifier = classifier
				dest := root.LibraryPath(coord)
				if art.Path != "" {
					dest = joinLibraryPath(root, art.Path)
				}
				if err := add(Task{
					SourceURL:    art.URL,
					DestPath:     dest,
					ExpectedSHA1: art.SHA1,
					ExpectedSize: art.Size,
					Kind:         hashfetch.KindNative,
				}); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := add(Task{
		SourceURL:    d.AssetIndex.URL,
		DestPath:     root.AssetIndexPath(d.AssetIndex.ID),
		ExpectedSHA1: d.AssetIndex.SHA1,
		ExpectedSize: d.AssetIndex.Size,
		Kind:         hashfetch.KindAssetIndex,
	}); err != nil {
		return nil, err
	}

	out := make([]Task, 0, len(byPath))
	for _, t := range byPath {
		out = append(out, t)
	}
	return out, nil
}

// NativeJar is one platform-native library jar slated for extraction,
// together with the path-prefix exclusions that library declared.
type NativeJar struct {
	Path    string
	Exclude []string
}

// ClasspathAndNatives walks the descriptor's libraries in their original
// order and splits them into the classpath entry list (rule-included
// libraries that carry a main artifact, client jar appended last) and the
// set of platform-native jars that need extraction for this launch.
func ClasspathAndNatives(d manifest.Descriptor, root layout.Root, ctx rules.Context) (classpath []string, nativeJars []NativeJar, err error) {
	for _, lib := range d.Libraries() {
		if !rules.Evaluate(lib.Rules, ctx) {
			continue
		}

		if lib.Artifact != nil && lib.Artifact.URL != "" {
			coord, cerr := layout.ParseCoordinate(lib.Name)
			if cerr != nil {
				return nil, nil, cerr
			}
			dest := root.LibraryPath(coord)
			if lib.Artifact.Path != "" {
				dest = joinLibraryPath(root, lib.Artifact.Path)
			}
			classpath = append(classpath, dest)
		}

		if classifier, ok := lib.Natives[nativeKeyFor(ctx)]; ok {
			if art, ok := lib.NativeArtifacts[classifier]; ok && art.URL != "" {
				coord, cerr := layout.ParseCoordinate(lib.Name)
				if cerr != nil {
					return nil, nil, cerr
				}
				coord.Classifier = classifier
				dest := root.LibraryPath(coord)
				if art.Path != "" {
					dest = joinLibraryPath(root, art.Path)
				}
				var exclude []string
				if lib.Extract != nil {
					exclude = lib.Extract.Exclude
				}
				nativeJars = append(nativeJars, NativeJar{Path: dest, Exclude: exclude})
			}
		}
	}

	classpath = append(classpath, root.VersionJarPath(d.ID))
	return classpath, nativeJars, nil
}

const assetBaseURL = "https://resources.download.minecraft.net/"

// PlanPhase2 emits one task per unique asset object referenced by idx,
// deduplicated by hash (spec §4.5 step 4). Must be called only after the
// asset index task from PlanPhase1 has completed and been parsed.
func PlanPhase2(idx manifest.AssetIndex, root layout.Root) ([]Task, error) {
	unique := idx.UniqueObjects()
	out := make([]Task, 0, len(unique))
	for hash, size := range unique {
		dest, err := root.AssetObjectPath(hash)
		if err != nil {
			return nil, fmt.Errorf("planner: asset object: %w", err)
		}
		out = append(out, Task{
			SourceURL:    assetBaseURL + hash[:2] + "/" + hash,
			DestPath:     dest,
			ExpectedSHA1: hash,
			ExpectedSize: size,
			Kind:         hashfetch.KindAssetObject,
		})
	}
	return out, nil
}

func joinLibraryPath(root layout.Root, relPath string) string {
	return filepath.Join(root.LibrariesDir(), filepath.FromSlash(relPath))
}
