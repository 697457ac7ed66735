package transaction_test

import (
	"bytes"
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/compak/internal/adapters/archive"
	"go.trai.ch/compak/internal/adapters/compose"
	"go.trai.ch/compak/internal/adapters/fs"
	"go.trai.ch/compak/internal/adapters/lockfile"
	"go.trai.ch/compak/internal/adapters/project"
	"go.trai.ch/compak/internal/adapters/registry"
	"go.trai.ch/compak/internal/adapters/telemetry"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports/mocks"
	"go.trai.ch/compak/internal/engine/graph"
	"go.trai.ch/compak/internal/engine/resolver"
	"go.trai.ch/compak/internal/engine/transaction"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
	"gopkg.in/yaml.v3"
)

type discardLogger struct{}

func (discardLogger) Info(string) {}
func (discardLogger) Warn(string) {}
func (discardLogger) Error(error) {}

const webCompose = `services:
  app:
    image: nginx:${PORT}
    depends_on: [db]
  db:
    image: postgres:16
`

const webComposeV2 = `services:
  app:
    image: nginx:1.27
`

const cacheCompose = `services:
  redis:
    image: redis:7
volumes:
  data: {}
`

type fixture struct {
	t        *testing.T
	root     string
	registry *registry.Memory
	archiver *archive.Archiver
	store    *lockfile.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		root:     t.TempDir(),
		registry: registry.NewMemory(),
		archiver: archive.New(fs.NewWalker()),
		store:    lockfile.NewStore(),
	}
	f.publish("web@1.0.0", map[string]string{"compose.yaml": webCompose, "README.md": "web v1\n", "conf/nginx.conf": "listen 80;\n"},
		map[string]domain.Parameter{"PORT": {Type: domain.ParamPort, Default: "8080"}})
	f.publish("web@1.1.0", map[string]string{"compose.yaml": webComposeV2, "README.md": "web v1.1\n"},
		map[string]domain.Parameter{"PORT": {Type: domain.ParamPort, Default: "8080"}})
	f.publish("cache@1.0.0", map[string]string{"compose.yaml": cacheCompose}, nil)
	f.publish("tools@1.0.0", map[string]string{"bin/run.sh": "#!/bin/sh\n"}, nil)
	return f
}

func (f *fixture) publish(ref string, files map[string]string, params map[string]domain.Parameter) {
	f.t.Helper()
	dir := f.t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(f.t, os.WriteFile(p, []byte(content), 0o644))
	}
	var buf bytes.Buffer
	require.NoError(f.t, f.archiver.Pack(dir, &buf))

	name, version, _ := strings.Cut(ref, "@")
	m := &domain.Manifest{ID: domain.PackageID(name), Version: domain.MustParseVersion(version), Parameters: params}
	_, err := f.registry.Publish(context.Background(), m, &buf)
	require.NoError(f.t, err)
}

func (f *fixture) engine() *transaction.Engine {
	return transaction.NewEngine(
		f.registry,
		f.store,
		project.NewLocker(),
		f.archiver,
		compose.NewMerger(fs.NewHasher()),
		fs.NewHasher(),
		telemetry.NewNoOpTracer(),
		discardLogger{},
	)
}

func (f *fixture) config() domain.ProjectConfig {
	cfg := domain.DefaultProjectConfig(f.root)
	cfg.Workers = 2
	return cfg
}

func (f *fixture) lock() *domain.Lockfile {
	f.t.Helper()
	l, err := f.store.Load(f.root)
	require.NoError(f.t, err)
	return l
}

// propose resolves requests against the fixture registry. No requests
// proposes an empty project.
func (f *fixture) propose(requests ...domain.Request) transaction.Proposal {
	f.t.Helper()
	if len(requests) == 0 {
		return transaction.Proposal{Versions: domain.ResolvedSet{}, Graph: domain.NewDependencyGraph()}
	}
	deps := make([]domain.Dependency, len(requests))
	for i, r := range requests {
		deps[i] = r.Dependency()
	}
	g, err := graph.NewBuilder(f.registry, 2).Build(context.Background(), deps)
	require.NoError(f.t, err)
	set, err := resolver.Resolve(g)
	require.NoError(f.t, err)
	return transaction.Proposal{Requested: requests, Versions: set, Graph: g}
}

func (f *fixture) plan(e *transaction.Engine, requests ...domain.Request) *domain.Transaction {
	f.t.Helper()
	tx, err := e.Plan(context.Background(), f.config(), f.lock(), f.propose(requests...))
	require.NoError(f.t, err)
	return tx
}

func (f *fixture) install(requests ...domain.Request) {
	f.t.Helper()
	e := f.engine()
	require.NoError(f.t, e.Apply(context.Background(), f.plan(e, requests...)))
}

func (f *fixture) read(rel string) string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(f.t, err)
	return string(data)
}

// snapshot captures every file below the project root.
func (f *fixture) snapshot() map[string]string {
	f.t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(f.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(f.t, err)
	return out
}

func req(raw string, values map[string]string) domain.Request {
	dep, err := domain.ParseDependency(raw)
	if err != nil {
		panic(err)
	}
	return domain.Request{ID: dep.ID, Constraint: dep.Constraint, Values: values}
}

func TestApply_InstallsPackages(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	tx := f.plan(e, req("web@1.0.0", map[string]string{"PORT": "9000"}), req("tools", nil))

	require.NoError(t, e.Apply(context.Background(), tx))
	assert.Equal(t, domain.TxCommitted, tx.State)

	assert.Equal(t, "web v1\n", f.read(".compak/packages/web/README.md"))
	assert.Equal(t, "listen 80;\n", f.read(".compak/packages/web/conf/nginx.conf"))
	assert.Equal(t, "PORT=9000\n", f.read(".compak/packages/web/.env"))
	assert.Equal(t, "#!/bin/sh\n", f.read(".compak/packages/tools/bin/run.sh"))

	override := f.read(domain.DefaultOverrideFile)
	assert.Contains(t, override, "web-app:")
	assert.Contains(t, override, "web-db:")
	assert.Contains(t, override, "# >>> compak:web")

	lock := f.lock()
	require.Len(t, lock.Entries, 2)
	web, ok := lock.Entry("web")
	require.True(t, ok)
	assert.Equal(t, "1.0.0", web.Version.String())
	assert.Equal(t, digest.Canonical, web.Digest.Algorithm())
	paths := make([]string, 0, len(web.Files))
	for _, file := range web.Files {
		paths = append(paths, file.Path)
	}
	assert.Equal(t, []string{
		".compak/packages/web/.env",
		".compak/packages/web/README.md",
		".compak/packages/web/compose.yaml",
		".compak/packages/web/conf/nginx.conf",
		domain.DefaultOverrideFile,
	}, paths)
	assert.Equal(t, map[string]string{"PORT": "9000"}, lock.Values("web"))

	_, err := os.Stat(tx.StagingDir)
	assert.ErrorIs(t, err, iofs.ErrNotExist)
}

func TestApply_UninstallKeepsOtherPackageKeys(t *testing.T) {
	f := newFixture(t)
	f.install(req("web@1.0.0", nil), req("cache", nil))

	e := f.engine()
	tx := f.plan(e, req("cache", nil))
	require.Len(t, tx.Diff.Remove, 1)
	require.NoError(t, e.Apply(context.Background(), tx))

	override := f.read(domain.DefaultOverrideFile)
	assert.NotContains(t, override, "web-app")
	assert.NotContains(t, override, "web-db")
	assert.Contains(t, override, "cache-redis:")
	assert.Contains(t, override, "cache-data:")

	_, err := os.Stat(filepath.Join(f.root, ".compak", "packages", "web"))
	assert.ErrorIs(t, err, iofs.ErrNotExist)

	lock := f.lock()
	_, ok := lock.Entry("web")
	assert.False(t, ok)
	_, ok = lock.Entry("cache")
	assert.True(t, ok)
}

func TestApply_UninstallLastPackageRemovesOverride(t *testing.T) {
	f := newFixture(t)
	f.install(req("cache", nil))

	e := f.engine()
	require.NoError(t, e.Apply(context.Background(), f.plan(e)))

	_, err := os.Stat(filepath.Join(f.root, domain.DefaultOverrideFile))
	assert.ErrorIs(t, err, iofs.ErrNotExist)
	assert.Empty(t, f.lock().Entries)
}

func TestApply_UpgradeDeletesObsoleteFiles(t *testing.T) {
	f := newFixture(t)
	f.install(req("web@1.0.0", nil))

	e := f.engine()
	tx := f.plan(e, req("web@^1.0.0", nil))
	require.Len(t, tx.Diff.Upgrade, 1)
	require.NoError(t, e.Apply(context.Background(), tx))

	assert.Equal(t, "web v1.1\n", f.read(".compak/packages/web/README.md"))
	_, err := os.Stat(filepath.Join(f.root, ".compak", "packages", "web", "conf"))
	assert.ErrorIs(t, err, iofs.ErrNotExist)
	assert.NotContains(t, f.read(domain.DefaultOverrideFile), "web-db")
}

func TestApply_KeepsUserEditsOutsideRegions(t *testing.T) {
	f := newFixture(t)
	user := "services:\n  mine:\n    image: busybox\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.root, domain.DefaultOverrideFile), []byte(user), 0o644))

	f.install(req("cache", nil))
	e := f.engine()
	require.NoError(t, e.Apply(context.Background(), f.plan(e)))

	var want, got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(user), &want))
	require.NoError(t, yaml.Unmarshal([]byte(f.read(domain.DefaultOverrideFile)), &got))
	assert.Equal(t, want, got)
}

func TestPlan_ReconfiguredPackageIsRestaged(t *testing.T) {
	f := newFixture(t)
	f.install(req("web@1.0.0", nil))

	e := f.engine()
	tx := f.plan(e, req("web@1.0.0", map[string]string{"PORT": "9090"}))
	require.Len(t, tx.Diff.Upgrade, 1)
	assert.Empty(t, tx.Diff.Unchanged)
	require.NoError(t, e.Apply(context.Background(), tx))
	assert.Equal(t, "PORT=9090\n", f.read(".compak/packages/web/.env"))

	tx = f.plan(e, req("web@1.0.0", map[string]string{"PORT": "9090"}))
	assert.True(t, tx.Diff.Empty())
}

func TestPlan_RejectsInvalidValues(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	_, err := e.Plan(context.Background(), f.config(), f.lock(), f.propose(req("web@1.0.0", map[string]string{"PORT": "99999"})))
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
	assert.Empty(t, f.snapshot())
}

func TestCommit_RefusesPathsOutsideProject(t *testing.T) {
	f := newFixture(t)
	victim := filepath.Join(filepath.Dir(f.root), "victim.txt")
	require.NoError(t, os.WriteFile(victim, []byte("keep"), 0o644))

	e := f.engine()
	tx := f.plan(e, req("cache", nil))
	require.NoError(t, e.Stage(context.Background(), tx))
	tx.Ops = append(tx.Ops, domain.FileOp{Kind: domain.OpDelete, Path: "../victim.txt", Package: "cache"})

	err := e.Commit(context.Background(), tx)
	require.ErrorIs(t, err, domain.ErrUnsafePath)
	require.ErrorIs(t, err, domain.ErrCommitFailed)

	data, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
	assert.Empty(t, f.lock().Entries)
	require.NoError(t, e.Rollback(tx))
}

func TestLocked_SweepsOrphanedStaging(t *testing.T) {
	f := newFixture(t)
	orphan := filepath.Join(domain.StagingRoot(f.root), "0b7d6c1e-crashed")
	require.NoError(t, os.MkdirAll(filepath.Join(orphan, "packages", "web"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(orphan, "packages", "web", "compose.yaml"), []byte("services: {}\n"), 0o644))

	e := f.engine()
	ran := false
	err := e.Locked(context.Background(), f.root, func(context.Context) error {
		ran = true
		assert.NoDirExists(t, orphan)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.NoFileExists(t, domain.ProjectLockPath(f.root))
}

func TestApply_RollbackLeavesProjectUntouched(t *testing.T) {
	f := newFixture(t)
	f.install(req("web@1.0.0", nil))
	before := f.snapshot()

	ctrl := gomock.NewController(t)
	broken := mocks.NewMockRegistry(ctrl)
	broken.EXPECT().Content(gomock.Any(), domain.PackageID("cache"), gomock.Any()).
		Return(nil, digest.Digest(""), zerr.With(zerr.Wrap(domain.ErrRegistryUnavailable, "connection reset"), "package", "cache")).
		AnyTimes()
	broken.EXPECT().Content(gomock.Any(), domain.PackageID("web"), gomock.Any()).
		DoAndReturn(f.registry.Content).
		AnyTimes()

	e := transaction.NewEngine(broken, f.store, project.NewLocker(), f.archiver,
		compose.NewMerger(fs.NewHasher()), fs.NewHasher(), telemetry.NewNoOpTracer(), discardLogger{})
	tx := f.plan(e, req("web@^1.0.0", nil), req("cache", nil))

	err := e.Apply(context.Background(), tx)
	require.ErrorIs(t, err, domain.ErrRegistryUnavailable)
	assert.Equal(t, domain.TxRolledBack, tx.State)
	assert.Equal(t, before, f.snapshot())
}

func TestApply_DigestMismatchRollsBack(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot()

	e := f.engine()
	proposal := f.propose(req("cache", nil))
	m, ok := proposal.Graph.Manifest("cache", proposal.Versions["cache"])
	require.True(t, ok)
	m.Digest = digest.FromString("something else")

	tx, err := e.Plan(context.Background(), f.config(), f.lock(), proposal)
	require.NoError(t, err)
	err = e.Apply(context.Background(), tx)
	require.ErrorIs(t, err, domain.ErrDigestMismatch)
	assert.Equal(t, domain.TxRolledBack, tx.State)
	assert.Equal(t, before, f.snapshot())
}

func TestApply_CancelledBeforeCommit(t *testing.T) {
	f := newFixture(t)
	f.install(req("cache", nil))
	before := f.snapshot()

	e := f.engine()
	tx := f.plan(e, req("cache", nil), req("web@1.0.0", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Apply(ctx, tx)
	require.ErrorIs(t, err, domain.ErrTransactionCancelled)
	assert.Equal(t, domain.TxRolledBack, tx.State)
	assert.Equal(t, before, f.snapshot())
}

func TestCommit_CrashLeavesEveryFileWhole(t *testing.T) {
	probe := newFixture(t)
	probe.install(req("web@1.0.0", nil), req("cache", nil))
	probeEngine := probe.engine()
	probeTx := probe.plan(probeEngine, req("web@^1.0.0", nil))
	require.NoError(t, probeEngine.Stage(context.Background(), probeTx))
	steps := len(probeTx.Ops)
	require.Greater(t, steps, 2)
	require.NoError(t, probeEngine.Rollback(probeTx))

	for crashAt := range steps {
		f := newFixture(t)
		f.install(req("web@1.0.0", nil), req("cache", nil))
		before := f.snapshot()

		e := f.engine()
		tx := f.plan(e, req("web@^1.0.0", nil))
		require.NoError(t, e.Stage(context.Background(), tx))

		after := make(map[string]string)
		for _, op := range tx.Ops {
			if op.Kind == domain.OpDelete {
				continue
			}
			data, err := os.ReadFile(op.Staged)
			require.NoError(t, err)
			after[op.Path] = string(data)
		}

		step := 0
		crash := errors.New("simulated crash")
		e.SetBeforeSwap(func(domain.FileOp) error {
			if step == crashAt {
				return crash
			}
			step++
			return nil
		})

		err := e.Commit(context.Background(), tx)
		require.ErrorIs(t, err, domain.ErrCommitFailed)
		require.ErrorIs(t, err, crash)

		var zErr *zerr.Error
		require.ErrorAs(t, err, &zErr)
		assert.Len(t, zErr.Metadata()["swapped"], crashAt)

		now := f.snapshot()
		for _, op := range tx.Ops {
			got, exists := now[op.Path]
			old, existed := before[op.Path]
			switch op.Kind {
			case domain.OpDelete:
				if exists {
					assert.Equal(t, old, got, "step %d: %s", crashAt, op.Path)
				}
			default:
				require.True(t, exists || !existed, "step %d: %s vanished", crashAt, op.Path)
				if exists {
					assert.Contains(t, []string{old, after[op.Path]}, got, "step %d: %s", crashAt, op.Path)
				}
			}
		}
		assert.Equal(t, before[domain.LockFileName], now[domain.LockFileName], "lockfile is saved only after every swap")
	}
}

func TestEngine_RejectsInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	e := f.engine()
	tx := f.plan(e, req("cache", nil))

	require.ErrorIs(t, e.Commit(context.Background(), tx), domain.ErrInvalidTransition)
	require.NoError(t, e.Rollback(tx))
	require.ErrorIs(t, e.Stage(context.Background(), tx), domain.ErrInvalidTransition)
	require.ErrorIs(t, e.Rollback(tx), domain.ErrInvalidTransition)
}

func TestEngine_LockedSerializesProject(t *testing.T) {
	f := newFixture(t)
	e := f.engine()

	err := e.Locked(context.Background(), f.root, func(ctx context.Context) error {
		_, statErr := os.Stat(domain.ProjectLockPath(f.root))
		return statErr
	})
	require.NoError(t, err)
	_, err = os.Stat(domain.ProjectLockPath(f.root))
	assert.ErrorIs(t, err, iofs.ErrNotExist)
}

func TestRenderEnv_SortsKeys(t *testing.T) {
	out := transaction.RenderEnv(map[string]string{"b": "2", "a": "1", "c": ""})
	assert.Equal(t, "a=1\nb=2\nc=\n", string(out))
}
