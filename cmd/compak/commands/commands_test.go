package commands_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/compak/cmd/compak/commands"
	"go.trai.ch/compak/internal/app"
	"go.trai.ch/compak/internal/build"
	"go.trai.ch/compak/internal/core/domain"
)

type mockApp struct {
	installFunc   func(ctx context.Context, opts app.Options, specs []string, values map[string]string) (*app.Report, error)
	upgradeFunc   func(ctx context.Context, opts app.Options, specs []string) (*app.Report, error)
	uninstallFunc func(ctx context.Context, opts app.Options, ids []string) (*app.Report, error)
	updateFunc    func(ctx context.Context, opts app.Options) (*app.Report, error)
	listFunc      func(ctx context.Context, opts app.Options) ([]domain.LockEntry, error)
	statusFunc    func(ctx context.Context, opts app.Options) (*app.Status, error)
	searchFunc    func(ctx context.Context, opts app.Options, query string, limit int) ([]domain.SearchResult, error)
	extractFunc   func(ctx context.Context, opts app.Options, spec, dest string) (*domain.Manifest, []string, error)
	publishFunc   func(ctx context.Context, opts app.Options, dir string) (*domain.Manifest, digest.Digest, error)
	serveFunc     func(ctx context.Context, opts app.Options, addr string, ready func(net.Addr)) error
}

func (m *mockApp) Install(ctx context.Context, opts app.Options, specs []string, values map[string]string) (*app.Report, error) {
	if m.installFunc != nil {
		return m.installFunc(ctx, opts, specs, values)
	}
	return &app.Report{}, nil
}

func (m *mockApp) Upgrade(ctx context.Context, opts app.Options, specs []string) (*app.Report, error) {
	if m.upgradeFunc != nil {
		return m.upgradeFunc(ctx, opts, specs)
	}
	return &app.Report{}, nil
}

func (m *mockApp) Uninstall(ctx context.Context, opts app.Options, ids []string) (*app.Report, error) {
	if m.uninstallFunc != nil {
		return m.uninstallFunc(ctx, opts, ids)
	}
	return &app.Report{}, nil
}

func (m *mockApp) Update(ctx context.Context, opts app.Options) (*app.Report, error) {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, opts)
	}
	return &app.Report{}, nil
}

func (m *mockApp) List(ctx context.Context, opts app.Options) ([]domain.LockEntry, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, opts)
	}
	return nil, nil
}

func (m *mockApp) Status(ctx context.Context, opts app.Options) (*app.Status, error) {
	if m.statusFunc != nil {
		return m.statusFunc(ctx, opts)
	}
	return &app.Status{}, nil
}

func (m *mockApp) Search(ctx context.Context, opts app.Options, query string, limit int) ([]domain.SearchResult, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, opts, query, limit)
	}
	return nil, nil
}

func (m *mockApp) Extract(ctx context.Context, opts app.Options, spec, dest string) (*domain.Manifest, []string, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, opts, spec, dest)
	}
	return &domain.Manifest{}, nil, nil
}

func (m *mockApp) Publish(ctx context.Context, opts app.Options, dir string) (*domain.Manifest, digest.Digest, error) {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, opts, dir)
	}
	return &domain.Manifest{}, "", nil
}

func (m *mockApp) Serve(ctx context.Context, opts app.Options, addr string, ready func(net.Addr)) error {
	if m.serveFunc != nil {
		return m.serveFunc(ctx, opts, addr, ready)
	}
	return nil
}

func execute(t *testing.T, a commands.Application, args ...string) (string, error) {
	t.Helper()
	cli := commands.New(a)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs(args)
	err := cli.Execute(context.Background())
	return buf.String(), err
}

func version(s string) *domain.Version {
	v := domain.MustParseVersion(s)
	return &v
}

func TestCommands_Install(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var captured app.Options
		var capturedSpecs []string
		var capturedValues map[string]string

		mock := &mockApp{
			installFunc: func(_ context.Context, opts app.Options, specs []string, values map[string]string) (*app.Report, error) {
				captured, capturedSpecs, capturedValues = opts, specs, values
				return &app.Report{Diff: domain.LockDiff{
					Install: []domain.Change{{ID: "net", After: version("2.5.0")}},
					Upgrade: []domain.Change{{ID: "web", Before: version("1.0.0"), After: version("1.1.0")}},
				}}, nil
			},
		}

		out, err := execute(t, mock, "-C", "proj", "--registry", "http://r", "install", "web@^1", "--set", "PORT=9000", "--set", "MODE=a=b")
		require.NoError(t, err)
		assert.Equal(t, app.Options{Project: "proj", Registry: "http://r"}, captured)
		assert.Equal(t, []string{"web@^1"}, capturedSpecs)
		assert.Equal(t, map[string]string{"PORT": "9000", "MODE": "a=b"}, capturedValues)
		assert.Contains(t, out, "+ net 2.5.0")
		assert.Contains(t, out, "~ web 1.0.0 -> 1.1.0 (upgraded)")
		assert.Contains(t, out, "1 installed, 1 changed, 0 removed")
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		mock := &mockApp{
			installFunc: func(context.Context, app.Options, []string, map[string]string) (*app.Report, error) {
				panic("should not be called")
			},
		}
		_, err := execute(t, mock, "install", "web", "--set", "PORT")
		require.ErrorIs(t, err, domain.ErrInvalidParameter)
	})

	t.Run("shows usage when no packages provided", func(t *testing.T) {
		out, err := execute(t, &mockApp{}, "install")
		require.NoError(t, err)
		assert.Contains(t, out, "Usage:")
	})

	t.Run("reports unchanged project", func(t *testing.T) {
		mock := &mockApp{
			installFunc: func(context.Context, app.Options, []string, map[string]string) (*app.Report, error) {
				return &app.Report{Unchanged: true}, nil
			},
		}
		out, err := execute(t, mock, "install", "web")
		require.NoError(t, err)
		assert.Equal(t, "Nothing to do.\n", out)
	})
}

func TestCommands_Uninstall(t *testing.T) {
	t.Run("passes ids and prints removals", func(t *testing.T) {
		var captured []string
		mock := &mockApp{
			uninstallFunc: func(_ context.Context, _ app.Options, ids []string) (*app.Report, error) {
				captured = ids
				return &app.Report{Diff: domain.LockDiff{Remove: []domain.Change{{ID: "cache", Before: version("1.0.0")}}}}, nil
			},
		}
		out, err := execute(t, mock, "rm", "cache")
		require.NoError(t, err)
		assert.Equal(t, []string{"cache"}, captured)
		assert.Contains(t, out, "- cache 1.0.0")
	})

	t.Run("returns error on failure", func(t *testing.T) {
		mock := &mockApp{
			uninstallFunc: func(context.Context, app.Options, []string) (*app.Report, error) {
				return nil, errors.New("simulated error")
			},
		}
		_, err := execute(t, mock, "uninstall", "cache")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})

	t.Run("requires a package", func(t *testing.T) {
		_, err := execute(t, &mockApp{}, "uninstall")
		require.Error(t, err)
	})
}

func TestCommands_UpgradeAndUpdate(t *testing.T) {
	upgraded, updated := false, false
	mock := &mockApp{
		upgradeFunc: func(_ context.Context, _ app.Options, specs []string) (*app.Report, error) {
			upgraded = true
			assert.Equal(t, []string{"web@^2"}, specs)
			return &app.Report{Diff: domain.LockDiff{
				Upgrade: []domain.Change{{ID: "web", Before: version("2.1.0"), After: version("2.0.0")}},
			}}, nil
		},
		updateFunc: func(context.Context, app.Options) (*app.Report, error) {
			updated = true
			return &app.Report{Unchanged: true}, nil
		},
	}

	out, err := execute(t, mock, "upgrade", "web@^2")
	require.NoError(t, err)
	assert.Contains(t, out, "(downgraded)")

	_, err = execute(t, mock, "update")
	require.NoError(t, err)
	assert.True(t, upgraded)
	assert.True(t, updated)
}

func TestCommands_List(t *testing.T) {
	mock := &mockApp{
		listFunc: func(context.Context, app.Options) ([]domain.LockEntry, error) {
			return []domain.LockEntry{
				{ID: "net", Version: domain.MustParseVersion("2.5.0"), Files: []domain.InstalledFile{{Path: "a"}}},
			}, nil
		},
	}
	out, err := execute(t, mock, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PACKAGE")
	assert.Regexp(t, `net\s+2\.5\.0\s+1`, out)

	out, err = execute(t, &mockApp{}, "ls")
	require.NoError(t, err)
	assert.Equal(t, "No packages installed.\n", out)
}

func TestCommands_Status(t *testing.T) {
	mock := &mockApp{
		statusFunc: func(context.Context, app.Options) (*app.Status, error) {
			return &app.Status{
				Packages: []app.PackageStatus{
					{ID: "web", Installed: domain.MustParseVersion("1.0.0"), Latest: version("1.2.0"), Requested: true},
					{ID: "net", Installed: domain.MustParseVersion("2.5.0")},
				},
				Drift: []domain.Drift{{Package: "web", Path: ".compak/packages/web/compose.yaml", Reason: domain.DriftModified}},
			}, nil
		},
	}
	out, err := execute(t, mock, "status")
	require.NoError(t, err)
	assert.Regexp(t, `web\s+1\.0\.0\s+1\.2\.0\s+outdated`, out)
	assert.Regexp(t, `net\s+2\.5\.0\s+\?\s+unknown, dependency`, out)
	assert.Contains(t, out, "modified: .compak/packages/web/compose.yaml (web)")
}

func TestCommands_Search(t *testing.T) {
	var capturedQuery string
	var capturedLimit int
	mock := &mockApp{
		searchFunc: func(_ context.Context, _ app.Options, query string, limit int) ([]domain.SearchResult, error) {
			capturedQuery, capturedLimit = query, limit
			return []domain.SearchResult{{ID: "web", Version: domain.MustParseVersion("1.0.0"), Description: "Web frontend"}}, nil
		},
	}
	out, err := execute(t, mock, "search", "we", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, "we", capturedQuery)
	assert.Equal(t, 5, capturedLimit)
	assert.Regexp(t, `web\s+1\.0\.0\s+Web frontend`, out)
}

func TestCommands_ExtractAndPublish(t *testing.T) {
	mock := &mockApp{
		extractFunc: func(_ context.Context, _ app.Options, spec, dest string) (*domain.Manifest, []string, error) {
			assert.Equal(t, "web@1", spec)
			assert.Equal(t, "out", dest)
			return &domain.Manifest{ID: "web", Version: domain.MustParseVersion("1.0.0")}, []string{"compose.yaml"}, nil
		},
		publishFunc: func(_ context.Context, _ app.Options, dir string) (*domain.Manifest, digest.Digest, error) {
			assert.Equal(t, ".", dir)
			return &domain.Manifest{ID: "web", Version: domain.MustParseVersion("1.0.0")}, digest.FromString("x"), nil
		},
	}

	out, err := execute(t, mock, "extract", "web@1", "out")
	require.NoError(t, err)
	assert.Equal(t, "Extracted web@1.0.0 (1 files) to out\n", out)

	out, err = execute(t, mock, "publish")
	require.NoError(t, err)
	assert.Contains(t, out, "Published web@1.0.0 (sha256:")
}

func TestCommands_Serve(t *testing.T) {
	var capturedAddr string
	mock := &mockApp{
		serveFunc: func(_ context.Context, _ app.Options, addr string, ready func(net.Addr)) error {
			capturedAddr = addr
			ready(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9999})
			return nil
		},
	}
	out, err := execute(t, mock, "serve", "--addr", ":9999")
	require.NoError(t, err)
	assert.Equal(t, ":9999", capturedAddr)
	assert.Equal(t, "Listening on http://127.0.0.1:9999\n", out)
}

func TestCommands_Quiet(t *testing.T) {
	var quiet bool
	cli := commands.New(&mockApp{}, commands.WithQuietHandler(func(q bool) { quiet = q }))
	cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))
	cli.SetArgs([]string{"-q", "list"})
	require.NoError(t, cli.Execute(context.Background()))
	assert.True(t, quiet)
}

func TestCommands_Version(t *testing.T) {
	out, err := execute(t, &mockApp{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, build.Version)
}
