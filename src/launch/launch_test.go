package launch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-dev/launchcore/src/layout"
	"github.com/outpost-dev/launchcore/src/manifest"
	"github.com/outpost-dev/launchcore/src/rules"
)

func TestOfflineUUIDIsDeterministic(t *testing.T) {
	a := OfflineUUID("Steve")
	b := OfflineUUID("Steve")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, OfflineUUID("Alex"))
	assert.Len(t, a, 36)
}

func TestResolveAccountFillsOfflineDefaults(t *testing.T) {
	cred := ResolveAccount(AccountCredential{PlayerName: "Steve", Offline: true})
	assert.Equal(t, OfflineUUID("Steve"), cred.UUID)
	assert.Equal(t, "legacy", cred.UserType)
	assert.Equal(t, "0", cred.AccessToken)
}

func TestResolveAccountLeavesOnlineCredentialAlone(t *testing.T) {
	cred := ResolveAccount(AccountCredential{PlayerName: "Steve", UUID: "already-set", AccessToken: "tok"})
	assert.Equal(t, "already-set", cred.UUID)
	assert.Equal(t, "msa", cred.UserType)
	assert.Equal(t, "tok", cred.AccessToken)
}

func TestSubstituteReplacesKnownTokens(t *testing.T) {
	out, err := substitute("--user ${auth_player_name}", map[string]string{"auth_player_name": "Steve"})
	require.NoError(t, err)
	assert.Equal(t, "--user Steve", out)
}

func TestSubstituteErrorsOnUnknownToken(t *testing.T) {
	_, err := substitute("${mystery_token}", map[string]string{})
	require.Error(t, err)
	var upe *UnresolvedPlaceholderError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "mystery_token", upe.Token)
}

func TestResolveArgListSkipsRuleGatedGroup(t *testing.T) {
	entries := []manifest.ArgEntry{
		{Literal: "--username"},
		{IsGroup: true, Values: []string{"--demo"}, Rules: []rules.Rule{{Action: rules.Allow, Features: map[string]bool{"is_demo_user": true}}}},
	}
	out, err := resolveArgList(entries, rules.Context{}, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"--username"}, out)

	out, err = resolveArgList(entries, rules.Context{Features: map[string]bool{"is_demo_user": true}}, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"--username", "--demo"}, out)
}

func TestResolveJavaBinaryPrefersExplicitSetting(t *testing.T) {
	path, warn := ResolveJavaBinary(Settings{JavaPath: "/opt/custom/java"})
	assert.Equal(t, "/opt/custom/java", path)
	assert.Nil(t, warn)
}

func TestResolveJavaBinaryFallsBackToJavaHome(t *testing.T) {
	home := t.TempDir()
	binDir := filepath.Join(home, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	javaBin := filepath.Join(binDir, javaExecutableName())
	require.NoError(t, os.WriteFile(javaBin, []byte("#!/bin/sh\n"), 0o755))

	t.Setenv("JAVA_HOME", home)
	path, warn := ResolveJavaBinary(Settings{})
	assert.Equal(t, javaBin, path)
	assert.Nil(t, warn)
}

const sampleLaunchDescriptor = `{
  "id": "1.20.1",
  "type": "release",
  "mainClass": "net.minecraft.client.main.Main",
  "assetIndex": {"id": "8", "url": "u", "sha1": "s", "size": 1},
  "downloads": {"client": {"url": "u", "sha1": "s", "size": 1}},
  "arguments": {
    "jvm": ["-Djava.library.path=${natives_directory}", "-cp", "${classpath}"],
    "game": ["--username", "${auth_player_name}", "--uuid", "${auth_uuid}", "--accessToken", "${auth_access_token}"]
  }
}`

func TestBuildAssemblesPlanWithStructuredArguments(t *testing.T) {
	var d manifest.Descriptor
	require.NoError(t, json.Unmarshal([]byte(sampleLaunchDescriptor), &d))

	root := layout.New(t.TempDir())
	cred := AccountCredential{PlayerName: "Steve", Offline: true}
	settings := Settings{JavaPath: "/usr/bin/java", MaxHeapMB: 2048}

	plan, err := Build(d, root, rules.Context{}, []string{"/mc/libraries/a.jar"}, "/mc/natives/1.20.1-abc", cred, settings)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/java", plan.JavaPath)
	assert.Equal(t, "net.minecraft.client.main.Main", plan.MainClass)
	assert.Contains(t, plan.Args, "Steve")
	assert.Contains(t, plan.Args, strings.ReplaceAll(OfflineUUID("Steve"), "-", ""))
	assert.NotContains(t, plan.Args, OfflineUUID("Steve"), "auth_uuid must be stripped of dashes")
	assert.Contains(t, plan.Args, "-Xmx2048M")

	accessTokenIdx := indexOf(plan.Args, "--accessToken")
	require.GreaterOrEqual(t, accessTokenIdx, 0)
	assert.Equal(t, "0", plan.Args[accessTokenIdx+1], "offline launches must pass accessToken 0")

	mainClassIdx := indexOf(plan.Args, "net.minecraft.client.main.Main")
	require.GreaterOrEqual(t, mainClassIdx, 0)
	usernameIdx := indexOf(plan.Args, "Steve")
	assert.Greater(t, usernameIdx, mainClassIdx, "game args must follow the main class")
}

func TestBuildFallsBackToLegacyMinecraftArguments(t *testing.T) {
	d := manifest.Descriptor{
		ID:        "1.7.10",
		Type:      "release",
		MainClass: "net.minecraft.client.Minecraft",
		MinecraftArguments: "--username ${auth_player_name} --version ${version_name}",
	}
	d.AssetIndex.ID = "legacy"
	d.AssetIndex.URL = "u"
	d.Downloads.Client = nil

	root := layout.New(t.TempDir())
	cred := AccountCredential{PlayerName: "Alex", Offline: true}
	settings := Settings{JavaPath: "/usr/bin/java"}

	plan, err := Build(d, root, rules.Context{}, nil, "/mc/natives", cred, settings)
	require.NoError(t, err)
	assert.Contains(t, plan.Args, "Alex")
	assert.Contains(t, plan.Args, "1.7.10")
}

func TestBuildAppliesDemoAndServerSettings(t *testing.T) {
	var d manifest.Descriptor
	require.NoError(t, json.Unmarshal([]byte(sampleLaunchDescriptor), &d))

	root := layout.New(t.TempDir())
	cred := AccountCredential{PlayerName: "Steve", Offline: true}
	settings := Settings{
		JavaPath: "/usr/bin/java",
		Demo:     true,
		Server:   &ServerJoin{Host: "play.example.test", Port: 25566},
	}

	plan, err := Build(d, root, rules.Context{}, nil, "/mc/natives", cred, settings)
	require.NoError(t, err)
	assert.Contains(t, plan.Args, "--demo")
	assert.Contains(t, plan.Args, "play.example.test")
	assert.Contains(t, plan.Args, "25566")
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
