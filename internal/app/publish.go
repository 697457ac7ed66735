package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.trai.ch/compak/internal/adapters/manifest"
	"go.trai.ch/compak/internal/adapters/registry"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
)

// Extract unpacks the newest version of a package matching spec into dest
// without touching the project or its lockfile.
func (a *App) Extract(ctx context.Context, opts Options, spec, dest string) (*domain.Manifest, []string, error) {
	dep, err := domain.ParseDependency(spec)
	if err != nil {
		return nil, nil, err
	}
	_, reg, err := a.project(opts)
	if err != nil {
		return nil, nil, err
	}

	ctx, span := a.tracer.Start(ctx, "extract", ports.WithAttribute("package", dep.String()))
	defer span.End()

	versions, err := reg.Versions(ctx, dep.ID)
	if err != nil {
		return nil, nil, err
	}
	domain.SortVersionsDesc(versions)
	var chosen *domain.Version
	for i := range versions {
		if dep.Constraint.Matches(versions[i]) {
			chosen = &versions[i]
			break
		}
	}
	if chosen == nil {
		err := zerr.With(zerr.Wrap(domain.ErrPackageNotFound, "no version matches"), "package", dep.ID.String())
		return nil, nil, zerr.With(err, "constraint", dep.Constraint.String())
	}

	m, err := reg.Manifest(ctx, dep.ID, *chosen)
	if err != nil {
		return nil, nil, err
	}
	rc, d, err := reg.Content(ctx, dep.ID, *chosen)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close() //nolint:errcheck // Best effort close in defer

	if m.Digest != "" && m.Digest != d {
		return nil, nil, zerr.With(zerr.Wrap(domain.ErrDigestMismatch, "content does not match the manifest digest"), "package", m.Ref())
	}
	verifier := d.Verifier()
	stream := io.TeeReader(rc, verifier)
	files, err := a.archiver.Extract(stream, dest)
	if err != nil {
		return nil, nil, zerr.With(errors.Join(domain.ErrFilesystem, err), "package", m.Ref())
	}
	if _, err := io.Copy(io.Discard, stream); err != nil {
		return nil, nil, zerr.With(errors.Join(domain.ErrFilesystem, err), "package", m.Ref())
	}
	if !verifier.Verified() {
		return nil, nil, zerr.With(zerr.Wrap(domain.ErrDigestMismatch, "content does not match its digest"), "package", m.Ref())
	}
	return m, files, nil
}

// Publish reads manifest.yaml from dir, packs the directory and pushes both
// to the registry.
func (a *App) Publish(ctx context.Context, opts Options, dir string) (*domain.Manifest, digest.Digest, error) {
	path := filepath.Join(dir, domain.ManifestFileName)
	//nolint:gosec // Path is chosen by the user
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", zerr.With(zerr.Wrap(err, "failed to read manifest"), "path", path)
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return nil, "", err
	}

	_, reg, err := a.project(opts)
	if err != nil {
		return nil, "", err
	}

	ctx, span := a.tracer.Start(ctx, "publish", ports.WithAttribute("package", m.Ref()))
	defer span.End()

	var buf bytes.Buffer
	if err := a.archiver.Pack(dir, &buf); err != nil {
		return nil, "", zerr.With(zerr.Wrap(err, "failed to pack package"), "path", dir)
	}
	d, err := reg.Publish(ctx, m, &buf)
	if err != nil {
		span.RecordError(err)
		return nil, "", err
	}
	return m, d, nil
}

const shutdownTimeout = 5 * time.Second

// Serve exposes the configured registry over HTTP until ctx ends. ready, if
// non-nil, receives the bound address once the listener is open.
func (a *App) Serve(ctx context.Context, opts Options, addr string, ready func(net.Addr)) error {
	_, reg, err := a.project(opts)
	if err != nil {
		return err
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to listen"), "addr", addr)
	}
	srv := &http.Server{
		Handler:           registry.NewServer(reg, a.logger, metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if ready != nil {
		ready(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return zerr.Wrap(err, "registry server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return zerr.Wrap(err, "failed to stop registry server")
		}
		return nil
	}
}
