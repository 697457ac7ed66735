package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opencontainers/go-digest"
	"go.trai.ch/compak/internal/adapters/manifest"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

var _ ports.RegistryClient = (*HTTP)(nil)

// HTTPOptions tunes the HTTP registry client.
type HTTPOptions struct {
	// Timeout bounds each request attempt.
	Timeout time.Duration
	// Retries is the number of retries after a transient failure.
	Retries int
	// Rate limits requests per second. Zero means unlimited.
	Rate float64
	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration
}

// HTTP talks to a registry served by Server.
type HTTP struct {
	base       string
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       HTTPOptions
}

// NewHTTP creates a client for the registry at base.
func NewHTTP(base string, opts HTTPOptions) (*HTTP, error) {
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidConfig, "registry url must be http or https"), "registry", base)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = backoff.DefaultInitialInterval
	}

	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &HTTP{
		base:       strings.TrimSuffix(u.String(), "/"),
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, 1),
		opts:       opts,
	}, nil
}

type response struct {
	header http.Header
	body   []byte
}

type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("registry responded %d", e.code)
	}
	return fmt.Sprintf("registry responded %d: %s", e.code, e.message)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

// do sends one logical request, retrying transient failures with exponential
// backoff. A 404 is never retried.
func (c *HTTP) do(ctx context.Context, method, path string, body []byte) (*response, error) {
	var out *response
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(attemptCtx, method, c.base+path, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close() //nolint:errcheck // Best effort close in defer

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &statusError{code: resp.StatusCode}
			var apiErr errorResponse
			if json.Unmarshal(data, &apiErr) == nil {
				serr.message = apiErr.Error
			}
			if serr.retryable() {
				return serr
			}
			return backoff.Permanent(serr)
		}

		out = &response{header: resp.Header, body: data}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialBackoff
	retries := uint64(max(c.opts.Retries, 0)) //nolint:gosec // Bounded by max
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)); err != nil {
		return nil, err
	}
	return out, nil
}

// classify maps a failed request to the registry error taxonomy.
func classify(err error, id domain.PackageID, version string) error {
	var serr *statusError
	switch {
	case errors.As(err, &serr) && serr.code == http.StatusNotFound:
		return notFound(id, version)
	case errors.As(err, &serr) && !serr.retryable():
		wrapped := zerr.With(errors.Join(domain.ErrRegistryError, err), "status_code", serr.code)
		return zerr.With(wrapped, "package", id.String())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return unavailable(err, id)
	}
}

// Versions fetches the published versions of id.
func (c *HTTP) Versions(ctx context.Context, id domain.PackageID) ([]domain.Version, error) {
	resp, err := c.do(ctx, http.MethodGet, versionsPath(id), nil)
	if err != nil {
		return nil, classify(err, id, "")
	}
	var body versionsResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, zerr.With(errors.Join(domain.ErrRegistryError, err), "package", id.String())
	}
	out := make([]domain.Version, 0, len(body.Versions))
	for _, raw := range body.Versions {
		v, err := domain.ParseVersion(raw)
		if err != nil {
			return nil, zerr.With(errors.Join(domain.ErrRegistryError, err), "package", id.String())
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, notFound(id, "")
	}
	slices.SortFunc(out, domain.Version.Compare)
	return slices.CompactFunc(out, domain.Version.Equal), nil
}

// Manifest fetches the manifest of id@v.
func (c *HTTP) Manifest(ctx context.Context, id domain.PackageID, v domain.Version) (*domain.Manifest, error) {
	resp, err := c.do(ctx, http.MethodGet, versionPath(id, v)+"/manifest", nil)
	if err != nil {
		return nil, classify(err, id, v.String())
	}
	m, err := manifest.Parse(resp.body)
	if err != nil {
		return nil, err
	}
	if m.ID != id || !m.Version.Equal(v) {
		mismatch := zerr.With(zerr.Wrap(domain.ErrRegistryError, "manifest does not match the request"), "package", id.String())
		return nil, zerr.With(mismatch, "version", v.String())
	}
	return m, nil
}

// Content downloads the archive of id@v and checks it against the digest
// header when the registry sends one.
func (c *HTTP) Content(ctx context.Context, id domain.PackageID, v domain.Version) (io.ReadCloser, digest.Digest, error) {
	resp, err := c.do(ctx, http.MethodGet, versionPath(id, v)+"/content", nil)
	if err != nil {
		return nil, "", classify(err, id, v.String())
	}

	actual := digest.FromBytes(resp.body)
	if advertised := resp.header.Get(DigestHeader); advertised != "" && advertised != actual.String() {
		var mismatch error = zerr.With(zerr.Wrap(domain.ErrDigestMismatch, "download does not match advertised digest"), "package", id.String())
		mismatch = zerr.With(mismatch, "version", v.String())
		return nil, "", zerr.With(mismatch, "digest", advertised)
	}
	return io.NopCloser(bytes.NewReader(resp.body)), actual, nil
}

// Search queries the registry index.
func (c *HTTP) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	resp, err := c.do(ctx, http.MethodGet, "/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, classify(err, "", "")
	}
	var body searchResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, errors.Join(domain.ErrRegistryError, err)
	}
	out := make([]domain.SearchResult, 0, len(body.Results))
	for _, r := range body.Results {
		v, err := domain.ParseVersion(r.Version)
		if err != nil {
			continue
		}
		out = append(out, domain.SearchResult{
			ID:          domain.PackageID(r.Name),
			Version:     v,
			Description: r.Description,
			Author:      r.Author,
		})
	}
	return out, nil
}

// Publish uploads a manifest and its content archive.
func (c *HTTP) Publish(ctx context.Context, m *domain.Manifest, content io.Reader) (digest.Digest, error) {
	raw, err := manifest.Marshal(m)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", zerr.Wrap(err, "failed to read package content")
	}
	payload, err := json.Marshal(publishRequest{Manifest: string(raw), Content: data})
	if err != nil {
		return "", zerr.Wrap(err, "failed to encode publish request")
	}

	resp, err := c.do(ctx, http.MethodPut, versionPath(m.ID, m.Version), payload)
	if err != nil {
		return "", classify(err, m.ID, m.Version.String())
	}
	var body publishResponse
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return "", errors.Join(domain.ErrRegistryError, err)
	}
	d, err := digest.Parse(body.Digest)
	if err != nil {
		return "", errors.Join(domain.ErrRegistryError, err)
	}
	return d, nil
}
