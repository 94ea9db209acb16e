package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/yaml.v3"
)

func TestLoadAppliesDefaultsWithNoFilePresent(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Network.Workers)
	assert.Equal(t, 2048, cfg.Launch.MaxHeapMB)
	assert.NotEmpty(t, cfg.Network.ManifestURL)
}

func TestSaveWritesReadableYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "launchcore.yaml")

	cfg := &Config{
		Root:    RootConfig{Dir: "/mc"},
		Network: NetworkConfig{ManifestURL: "https://example.test/manifest.json", Workers: 4},
		Java:    JavaConfig{Path: "/usr/bin/java"},
		Launch:  LaunchConfig{MinHeapMB: 512, MaxHeapMB: 4096},
	}

	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var roundTripped Config
	require.NoError(t, yaml.Unmarshal(data, &roundTripped))
	assert.Equal(t, *cfg, roundTripped)
}

func TestProxyFuncUsesExplicitURL(t *testing.T) {
	nc := NetworkConfig{ProxyURL: "http://proxy.example.test:8080"}
	proxyFn := nc.ProxyFunc()
	req, err := http.NewRequest(http.MethodGet, "https://example.test/resource", nil)
	require.NoError(t, err)

	url, err := proxyFn(req)
	require.NoError(t, err)
	require.NotNil(t, url)
	assert.Equal(t, "proxy.example.test:8080", url.Host)
}
