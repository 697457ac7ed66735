package graph_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/compak/internal/adapters/registry"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports/mocks"
	"go.trai.ch/compak/internal/engine/graph"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

func release(t *testing.T, r *registry.Memory, ref string, deps ...string) {
	t.Helper()
	name, version, _ := strings.Cut(ref, "@")
	m := &domain.Manifest{ID: domain.PackageID(name), Version: domain.MustParseVersion(version)}
	for _, raw := range deps {
		d, err := domain.ParseDependency(raw)
		require.NoError(t, err)
		m.Dependencies = append(m.Dependencies, d)
	}
	_, err := r.Publish(context.Background(), m, bytes.NewReader([]byte(ref)))
	require.NoError(t, err)
}

func request(t *testing.T, raw ...string) []domain.Dependency {
	t.Helper()
	out := make([]domain.Dependency, len(raw))
	for i, r := range raw {
		d, err := domain.ParseDependency(r)
		require.NoError(t, err)
		out[i] = d
	}
	return out
}

func webRegistry(t *testing.T) *registry.Memory {
	t.Helper()
	r := registry.NewMemory()
	release(t, r, "web@1.0.0", "net@^2.0.0")
	release(t, r, "web@1.1.0", "net@^2.0.0", "cache@~1.2")
	release(t, r, "net@2.0.0")
	release(t, r, "net@2.5.0")
	release(t, r, "net@3.0.0")
	release(t, r, "cache@1.2.0")
	release(t, r, "cache@1.2.4")
	release(t, r, "cache@1.3.0")
	return r
}

func TestBuild_TransitiveClosure(t *testing.T) {
	g, err := graph.NewBuilder(webRegistry(t), 4).Build(context.Background(), request(t, "web@^1.0.0"))
	require.NoError(t, err)

	assert.Equal(t, []domain.PackageID{"cache", "net", "web"}, g.IDs())

	web, ok := g.Node("web")
	require.True(t, ok)
	require.Len(t, web.Incoming, 1)
	assert.True(t, web.Incoming[0].IsRequest())
	assert.True(t, web.HasManifest(domain.MustParseVersion("1.0.0")))
	assert.True(t, web.HasManifest(domain.MustParseVersion("1.1.0")))

	net, ok := g.Node("net")
	require.True(t, ok)
	sources := make([]string, len(net.Incoming))
	for i, e := range net.Incoming {
		sources[i] = e.Source()
	}
	assert.Equal(t, []string{"web@1.1.0", "web@1.0.0"}, sources)
	assert.True(t, net.HasManifest(domain.MustParseVersion("2.5.0")))
	assert.True(t, net.HasManifest(domain.MustParseVersion("2.0.0")))
	assert.False(t, net.HasManifest(domain.MustParseVersion("3.0.0")))
	assert.Equal(t, "3.0.0", net.Versions[0].String())

	cache, ok := g.Node("cache")
	require.True(t, ok)
	assert.False(t, cache.HasManifest(domain.MustParseVersion("1.3.0")))
}

func TestBuild_DeterministicAcrossWorkerCounts(t *testing.T) {
	reg := webRegistry(t)
	ctx := context.Background()

	serial, err := graph.NewBuilder(reg, 1).Build(ctx, request(t, "web@^1.0.0", "net@>=2.0.0"))
	require.NoError(t, err)
	parallel, err := graph.NewBuilder(reg, 16).Build(ctx, request(t, "web@^1.0.0", "net@>=2.0.0"))
	require.NoError(t, err)

	require.Equal(t, serial.IDs(), parallel.IDs())
	for _, id := range serial.IDs() {
		a, _ := serial.Node(id)
		b, _ := parallel.Node(id)
		assert.Equal(t, a.Incoming, b.Incoming, id)
		assert.Equal(t, a.Versions, b.Versions, id)
		assert.Equal(t, a.Candidates(), b.Candidates(), id)
	}
}

func TestBuild_Errors(t *testing.T) {
	reg := webRegistry(t)
	release(t, reg, "loop-a@1.0.0", "loop-b@*")
	release(t, reg, "loop-b@1.0.0", "loop-a@*")
	release(t, reg, "broken@1.0.0", "ghost@^1.0.0")

	tests := []struct {
		name     string
		requests []string
		want     error
	}{
		{name: "no requests", want: domain.ErrNoPackagesSpecified},
		{name: "unknown package", requests: []string{"nope"}, want: domain.ErrPackageNotFound},
		{name: "no matching version", requests: []string{"net@^9.0.0"}, want: domain.ErrPackageNotFound},
		{name: "unknown transitive package", requests: []string{"broken"}, want: domain.ErrPackageNotFound},
		{name: "cycle", requests: []string{"loop-a"}, want: domain.ErrCyclicDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reqs []domain.Dependency
			if len(tt.requests) > 0 {
				reqs = request(t, tt.requests...)
			}
			_, err := graph.NewBuilder(reg, 2).Build(context.Background(), reqs)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuild_RegistryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := mocks.NewMockRegistry(ctrl)
	reg.EXPECT().
		Versions(gomock.Any(), domain.PackageID("web")).
		Return(nil, domain.ErrRegistryUnavailable)

	_, err := graph.NewBuilder(reg, 1).Build(context.Background(), request(t, "web"))
	require.ErrorIs(t, err, domain.ErrRegistryError)
	require.ErrorIs(t, err, domain.ErrRegistryUnavailable)
}

func TestBuild_ReportsLowestFailingPackage(t *testing.T) {
	ctrl := gomock.NewController(t)
	reg := mocks.NewMockRegistry(ctrl)
	reg.EXPECT().
		Versions(gomock.Any(), domain.PackageID("api")).
		DoAndReturn(func(context.Context, domain.PackageID) ([]domain.Version, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, domain.ErrRegistryUnavailable
		}).
		AnyTimes()
	reg.EXPECT().
		Versions(gomock.Any(), domain.PackageID("db")).
		Return(nil, domain.ErrPackageNotFound).
		AnyTimes()

	for range 10 {
		_, err := graph.NewBuilder(reg, 2).Build(context.Background(), request(t, "db", "api"))
		require.ErrorIs(t, err, domain.ErrRegistryUnavailable)
		assert.NotErrorIs(t, err, domain.ErrPackageNotFound)

		var zErr *zerr.Error
		require.ErrorAs(t, err, &zErr)
		assert.Equal(t, "api", zErr.Metadata()["package"])
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := graph.NewBuilder(webRegistry(t), 1).Build(ctx, request(t, "web"))
	require.ErrorIs(t, err, context.Canceled)
}
