package registry

import (
	"net/url"

	"go.trai.ch/compak/internal/core/domain"
)

// DigestHeader carries the content digest of an archive response.
const DigestHeader = "Docker-Content-Digest"

type versionsResponse struct {
	Versions []string `json:"versions"`
}

type searchResult struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type publishRequest struct {
	Manifest string `json:"manifest"`
	Content  []byte `json:"content"`
}

type publishResponse struct {
	Digest string `json:"digest"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func versionsPath(id domain.PackageID) string {
	return "/v1/packages/" + url.PathEscape(id.String()) + "/versions"
}

func versionPath(id domain.PackageID, v domain.Version) string {
	return "/v1/packages/" + url.PathEscape(id.String()) + "/" + url.PathEscape(v.String())
}
