// Package archive packs package content into gzip compressed tarballs and
// unpacks them into a project.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/compak/internal/adapters/fs"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Archiver = (*Archiver)(nil)

// epoch is the modification time written for every entry so that packing the
// same tree twice yields identical bytes.
var epoch = time.Unix(0, 0).UTC()

// Archiver implements ports.Archiver with tar and gzip.
type Archiver struct {
	walker *fs.Walker
}

// New creates a new Archiver.
func New(walker *fs.Walker) *Archiver {
	return &Archiver{walker: walker}
}

// Pack writes every regular file below dir to w in lexical order. The
// manifest file is left out since registries store it separately.
func (a *Archiver) Pack(dir string, w io.Writer) error {
	gz := gzip.NewWriter(w)
	gz.ModTime = epoch
	tw := tar.NewWriter(gz)

	for rel := range a.walker.WalkFiles(dir, nil) {
		if rel == domain.ManifestFileName {
			continue
		}
		if err := addFile(tw, dir, rel); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return zerr.Wrap(err, "failed to finish tar stream")
	}
	if err := gz.Close(); err != nil {
		return zerr.Wrap(err, "failed to finish gzip stream")
	}
	return nil
}

func addFile(tw *tar.Writer, dir, rel string) error {
	full := filepath.Join(dir, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat file"), "path", rel)
	}

	mode := int64(domain.FilePerm)
	if info.Mode().Perm()&0o111 != 0 {
		mode = 0o755
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     rel,
		Mode:     mode,
		Size:     info.Size(),
		ModTime:  epoch,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write tar header"), "path", rel)
	}

	f, err := os.Open(full) //nolint:gosec // Path comes from walking dir
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open file"), "path", rel)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	if _, err := io.CopyN(tw, f, info.Size()); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to copy file into archive"), "path", rel)
	}
	return nil
}

// Extract unpacks r below dest. Entries that would land outside dest, links
// and device files are rejected with domain.ErrUnsafePath.
func (a *Archiver) Extract(r io.Reader, dest string) ([]string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open gzip stream")
	}
	defer gz.Close() //nolint:errcheck // Best effort close in defer

	if err := os.MkdirAll(dest, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create destination"), "path", dest)
	}

	var files []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, zerr.Wrap(err, "failed to read tar stream")
		}

		name, err := safeName(hdr.Name)
		if err != nil {
			return nil, err
		}

		target := filepath.Join(dest, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, domain.DirPerm); err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to create directory"), "path", name)
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr); err != nil {
				return nil, zerr.With(err, "path", name)
			}
			files = append(files, name)
		default:
			return nil, zerr.With(zerr.Wrap(domain.ErrUnsafePath, "unsupported entry type"), "path", name)
		}
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}

func safeName(raw string) (string, error) {
	name := path.Clean(strings.TrimPrefix(raw, "./"))
	if !filepath.IsLocal(filepath.FromSlash(name)) || strings.HasPrefix(raw, "/") {
		return "", zerr.With(zerr.Wrap(domain.ErrUnsafePath, "entry escapes destination"), "path", raw)
	}
	return name, nil
}

func writeEntry(r io.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create directory")
	}
	perm := os.FileMode(domain.FilePerm)
	if hdr.Mode&0o111 != 0 {
		perm = 0o755
	}
	//nolint:gosec // Target is checked to stay below the destination
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return zerr.Wrap(err, "failed to create file")
	}
	if _, err := io.CopyN(f, r, hdr.Size); err != nil {
		_ = f.Close()
		return zerr.Wrap(err, "failed to extract file")
	}
	if err := f.Close(); err != nil {
		return zerr.Wrap(err, "failed to close file")
	}
	return nil
}
