package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/compak/internal/core/domain"
)

func TestPackageID_Validate(t *testing.T) {
	for _, id := range []string{"web", "my-app_2", "org.redis"} {
		require.NoError(t, domain.PackageID(id).Validate(), id)
	}
	for _, id := range []string{"", "a/b", `a\b`, "..", "a..b", "has space", "at@sign", strings.Repeat("x", 101)} {
		require.ErrorIs(t, domain.PackageID(id).Validate(), domain.ErrInvalidPackageID, id)
	}
}

func TestParameter_Check(t *testing.T) {
	tests := []struct {
		typ    domain.ParameterType
		valid  []string
		reject []string
	}{
		{typ: domain.ParamString, valid: []string{"", "hello world"}, reject: []string{"two\nlines", strings.Repeat("x", 1001)}},
		{typ: domain.ParamNumber, valid: []string{"0", "-12", "3.14"}, reject: []string{"1e3", "abc", "1."}},
		{typ: domain.ParamBoolean, valid: []string{"true", "FALSE", "yes", "0"}, reject: []string{"maybe", "2"}},
		{typ: domain.ParamPort, valid: []string{"1", "80", "8080", "65535"}, reject: []string{"0", "65536", "080", "-1", "http"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			p := domain.Parameter{Type: tt.typ}
			for _, v := range tt.valid {
				assert.NoError(t, p.Check("P", v), v)
			}
			for _, v := range tt.reject {
				assert.ErrorIs(t, p.Check("P", v), domain.ErrInvalidParameter, v)
			}
		})
	}
}

func webManifest() *domain.Manifest {
	return &domain.Manifest{
		ID:      "web",
		Version: domain.MustParseVersion("1.0.0"),
		Parameters: map[string]domain.Parameter{
			"PORT":  {Type: domain.ParamPort, Default: "8080"},
			"DEBUG": {Type: domain.ParamBoolean},
			"TOKEN": {Required: true},
		},
		Values: map[string]string{"DEBUG": "false"},
	}
}

func TestManifest_ResolveValues(t *testing.T) {
	m := webManifest()

	values, err := m.ResolveValues(map[string]string{"TOKEN": "s3cret", "PORT": "9000"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PORT": "9000", "DEBUG": "false", "TOKEN": "s3cret"}, values)

	_, err = m.ResolveValues(nil)
	require.ErrorIs(t, err, domain.ErrMissingParameter)

	_, err = m.ResolveValues(map[string]string{"TOKEN": "x", "PORT": "http"})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestManifest_Validate(t *testing.T) {
	require.NoError(t, webManifest().Validate())
	assert.Equal(t, "web@1.0.0", webManifest().Ref())
	assert.Equal(t, domain.DefaultComposeFile, webManifest().ComposeFile())

	tests := []struct {
		name   string
		mutate func(m *domain.Manifest)
	}{
		{name: "bad id", mutate: func(m *domain.Manifest) { m.ID = "a/b" }},
		{name: "self dependency", mutate: func(m *domain.Manifest) {
			m.Dependencies = []domain.Dependency{{ID: "web"}}
		}},
		{name: "duplicate dependency", mutate: func(m *domain.Manifest) {
			m.Dependencies = []domain.Dependency{{ID: "net"}, {ID: "net"}}
		}},
		{name: "unknown type", mutate: func(m *domain.Manifest) {
			m.Parameters["X"] = domain.Parameter{Type: "list"}
		}},
		{name: "bad default", mutate: func(m *domain.Manifest) {
			m.Parameters["PORT"] = domain.Parameter{Type: domain.ParamPort, Default: "99999"}
		}},
		{name: "bad digest", mutate: func(m *domain.Manifest) { m.Digest = "md5:abc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := webManifest()
			tt.mutate(m)
			require.ErrorIs(t, m.Validate(), domain.ErrMalformedManifest)
		})
	}
}
