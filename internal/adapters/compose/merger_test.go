package compose_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/compak/internal/adapters/compose"
	"go.trai.ch/compak/internal/adapters/fs"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const webFragment = `services:
  app:
    image: nginx
    depends_on: [db]
    networks: [front, external_net]
    volumes:
      - data:/var/lib/data
      - ./conf:/etc/conf:ro
    secrets:
      - source: token
  db:
    image: postgres
    extends:
      service: app
networks:
  front: {}
volumes:
  data: {}
secrets:
  token:
    file: ./token.txt
`

const cacheFragment = `services:
  redis:
    image: redis
    depends_on:
      app:
        condition: service_started
volumes:
  data: {}
`

func newMerger() *compose.Merger {
	return compose.NewMerger(fs.NewHasher())
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, yaml.Unmarshal(data, &out))
	return out
}

func section(t *testing.T, doc map[string]any, name string) map[string]any {
	t.Helper()
	sec, ok := doc[name].(map[string]any)
	require.True(t, ok, "section %s missing", name)
	return sec
}

func TestMerge_NamespacesAndRewritesReferences(t *testing.T) {
	out, hash, err := newMerger().Merge(nil, "web", []byte(webFragment))
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.Contains(t, string(out), "# >>> compak:web")

	doc := decode(t, out)
	services := section(t, doc, "services")
	require.Contains(t, services, "web-app")
	require.Contains(t, services, "web-db")

	app := services["web-app"].(map[string]any)
	assert.Equal(t, []any{"web-db"}, app["depends_on"])
	assert.Equal(t, []any{"web-front", "external_net"}, app["networks"])
	assert.Equal(t, []any{"web-data:/var/lib/data", "./conf:/etc/conf:ro"}, app["volumes"])
	assert.Equal(t, []any{map[string]any{"source": "web-token"}}, app["secrets"])

	db := services["web-db"].(map[string]any)
	assert.Equal(t, map[string]any{"service": "web-app"}, db["extends"])

	assert.Contains(t, section(t, doc, "networks"), "web-front")
	assert.Contains(t, section(t, doc, "volumes"), "web-data")
	assert.Contains(t, section(t, doc, "secrets"), "web-token")

	owned := section(t, doc, compose.ExtensionKey)["web"].(map[string]any)
	assert.Equal(t, []any{"web-app", "web-db"}, owned["services"])
	assert.Equal(t, []any{"web-data"}, owned["volumes"])
}

func TestRemove_KeepsOtherPackagesAndUserKeys(t *testing.T) {
	m := newMerger()
	user := []byte("services:\n  mine:\n    image: busybox\n")

	out, _, err := m.Merge(user, "web", []byte(webFragment))
	require.NoError(t, err)
	out, cacheHash, err := m.Merge(out, "cache", []byte(cacheFragment))
	require.NoError(t, err)

	out, err = m.Remove(out, "web")
	require.NoError(t, err)

	doc := decode(t, out)
	services := section(t, doc, "services")
	assert.Contains(t, services, "mine")
	assert.Contains(t, services, "cache-redis")
	assert.NotContains(t, services, "web-app")
	assert.NotContains(t, services, "web-db")
	assert.Contains(t, section(t, doc, "volumes"), "cache-data")
	assert.NotContains(t, doc, "networks")
	assert.NotContains(t, doc, "secrets")

	ext := section(t, doc, compose.ExtensionKey)
	assert.NotContains(t, ext, "web")
	assert.Contains(t, ext, "cache")

	hash, ok, err := m.RegionHash(out, "cache")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cacheHash, hash, "removing another package must not change this region")

	out, err = m.Remove(out, "cache")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"services": map[string]any{"mine": map[string]any{"image": "busybox"}}}, decode(t, out))
}

func TestMerge_ReplacesPreviousRegion(t *testing.T) {
	m := newMerger()
	out, first, err := m.Merge(nil, "web", []byte(webFragment))
	require.NoError(t, err)

	out, second, err := m.Merge(out, "web", []byte("services:\n  api:\n    image: caddy\n"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	doc := decode(t, out)
	assert.Equal(t, []string{"web-api"}, keysOf(section(t, doc, "services")))
	assert.NotContains(t, doc, "volumes")
}

func TestMerge_Conflicts(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		fragment string
		key      string
		packages string
	}{
		{
			name:     "reserved key held by user",
			current:  "name: myproject\n",
			fragment: "name: other\n",
			key:      "name",
			packages: "user,web",
		},
		{
			name:     "namespaced key held by user",
			current:  "services:\n  web-app:\n    image: x\n",
			fragment: "services:\n  app:\n    image: y\n",
			key:      "services.web-app",
			packages: "user,web",
		},
		{
			name:     "extension key in fragment",
			current:  "",
			fragment: "x-compak: {}\n",
			key:      "x-compak",
			packages: "user,web",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newMerger().Merge([]byte(tt.current), "web", []byte(tt.fragment))
			require.Error(t, err)
			require.ErrorIs(t, err, domain.ErrMergeConflict)

			var zErr *zerr.Error
			require.ErrorAs(t, err, &zErr)
			assert.Equal(t, tt.key, zErr.Metadata()["key"])
			assert.Equal(t, tt.packages, zErr.Metadata()["packages"])
		})
	}
}

func TestMerge_ReservedKeyHeldByPackage(t *testing.T) {
	m := newMerger()
	out, _, err := m.Merge(nil, "a", []byte("x-shared:\n  foo: bar\n"))
	require.NoError(t, err)

	_, _, err = m.Merge(out, "b", []byte("x-shared:\n  foo: baz\n"))
	require.ErrorIs(t, err, domain.ErrMergeConflict)
	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, "a,b", zErr.Metadata()["packages"])

	out, err = m.Remove(out, "a")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRegionHash_DetectsEdits(t *testing.T) {
	m := newMerger()
	out, hash, err := m.Merge(nil, "cache", []byte(cacheFragment))
	require.NoError(t, err)

	got, ok, err := m.RegionHash(out, "cache")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hash, got)

	doc := decode(t, out)
	section(t, doc, "services")["cache-redis"].(map[string]any)["image"] = "valkey"
	edited, err := yaml.Marshal(doc)
	require.NoError(t, err)

	got, ok, err = m.RegionHash(edited, "cache")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, hash, got)

	_, ok, err = m.RegionHash(out, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMerge_MalformedFragment(t *testing.T) {
	_, _, err := newMerger().Merge(nil, "web", []byte("services: [a, b]\n"))
	require.ErrorIs(t, err, domain.ErrMalformedManifest)
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
