package planner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-dev/launchcore/src/hashfetch"
	"github.com/outpost-dev/launchcore/src/layout"
	"github.com/outpost-dev/launchcore/src/manifest"
	"github.com/outpost-dev/launchcore/src/rules"
)

func descriptorFromJSON(t *testing.T, body string) manifest.Descriptor {
	t.Helper()
	var d manifest.Descriptor
	require.NoError(t, json.Unmarshal([]byte(body), &d))
	return d
}

const samplePhase1Descriptor = `{
  "id": "1.20.1",
  "mainClass": "net.minecraft.client.main.Main",
  "assetIndex": {"id": "8", "url": "https://example.test/assets/8.json", "sha1": "idx1", "size": 30},
  "downloads": {"client": {"url": "https://example.test/client.jar", "sha1": "client1", "size": 100}},
  "libraries": [
    {
      "name": "com.mojang:brigadier:1.0.18",
      "downloads": {"artifact": {"url": "https://example.test/brigadier.jar", "sha1": "b1", "size": 5}}
    },
    {
      "name": "org.lwjgl:lwjgl:3.3.1",
      "downloads": {
        "classifiers": {
          "natives-linux": {"url": "https://example.test/lwjgl-natives-linux.jar", "sha1": "n1", "size": 3}
        }
      },
      "natives": {"linux": "natives-linux"},
      "extract": {"exclude": ["META-INF/"]},
      "rules": [{"action": "allow", "os": {"name": "linux"}}]
    },
    {
      "name": "org.lwjgl:lwjgl:3.3.1:natives-windows-only",
      "downloads": {"artifact": {"url": "https://example.test/windows-only.jar", "sha1": "w1", "size": 4}},
      "rules": [{"action": "allow", "os": {"name": "windows"}}]
    }
  ]
}`

func linuxCtx() rules.Context {
	return rules.Context{OSName: "linux", Arch: "x86_64"}
}

func TestPlanPhase1IncludesClientLibrariesAndIndex(t *testing.T) {
	d := descriptorFromJSON(t, samplePhase1Descriptor)
	root := layout.New("/mc")

	tasks, err := PlanPhase1(d, root, linuxCtx())
	require.NoError(t, err)

	byDest := make(map[string]Task)
	for _, tk := range tasks {
		byDest[tk.DestPath] = tk
	}

	assert.Contains(t, byDest, root.VersionJarPath("1.20.1"))
	assert.Contains(t, byDest, root.AssetIndexPath("8"))

	// windows-only library must be excluded on a linux host context.
	for _, tk := range tasks {
		assert.NotContains(t, tk.SourceURL, "windows-only")
	}

	// native classifier jar for linux must be present.
	var sawNative bool
	for _, tk := range tasks {
		if tk.Kind == hashfetch.KindNative {
			sawNative = true
		}
	}
	assert.True(t, sawNative)
}

func TestPlanPhase1DetectsConflictingHashesForSameDestPath(t *testing.T) {
	d := descriptorFromJSON(t, `{
		"id": "1.20.1",
		"mainClass": "net.minecraft.client.main.Main",
		"assetIndex": {"id": "8", "url": "u", "sha1": "idx", "size": 1},
		"downloads": {"client": {"url": "u", "sha1": "client1", "size": 1}},
		"libraries": [
			{"name": "a:b:1", "downloads": {"artifact": {"url": "u1", "sha1": "hash1", "size": 1, "path": "a/b/1/b-1.jar"}}},
			{"name": "c:d:2", "downloads": {"artifact": {"url": "u2", "sha1": "hash2", "size": 1, "path": "a/b/1/b-1.jar"}}}
		]
	}`)
	root := layout.New("/mc")

	_, err := PlanPhase1(d, root, rules.Context{})
	require.Error(t, err)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
}

func TestPlanPhase2DedupesByHash(t *testing.T) {
	idx := manifest.AssetIndex{Objects: map[string]manifest.AssetObject{
		"icons/a.png": {Hash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Size: 10},
		"icons/b.png": {Hash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Size: 10},
		"sounds/c.ogg": {Hash: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Size: 20},
	}}
	root := layout.New("/mc")

	tasks, err := PlanPhase2(idx, root)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestHostContextMapsRuntimePlatform(t *testing.T) {
	ctx := HostContext("10.14", nil)
	assert.NotEmpty(t, ctx.OSName)
	assert.NotNil(t, ctx.Features)
}

func TestClasspathAndNativesOrdersClientJarLast(t *testing.T) {
	d := descriptorFromJSON(t, samplePhase1Descriptor)
	root := layout.New("/mc")

	classpath, nativeJars, err := ClasspathAndNatives(d, root, linuxCtx())
	require.NoError(t, err)

	require.NotEmpty(t, classpath)
	assert.Equal(t, root.VersionJarPath("1.20.1"), classpath[len(classpath)-1])

	require.Len(t, nativeJars, 1)
	assert.Equal(t, []string{"META-INF/"}, nativeJars[0].Exclude)
}
