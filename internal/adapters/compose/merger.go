// Package compose merges package Compose fragments into the project's managed
// override file. Every key a package contributes is namespaced with the
// package ID and recorded in the top-level x-compak extension so it can be
// replaced or removed without touching anything else.
package compose

import (
	"errors"
	"slices"
	"strings"

	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	// ExtensionKey is the top-level key holding package ownership.
	ExtensionKey = "x-compak"

	// TopLevelSection lists reserved top-level keys copied verbatim from a fragment.
	TopLevelSection = "toplevel"

	userOwner = "user"
)

// Sections are the top-level Compose sections whose keys get namespaced.
var Sections = []string{"services", "networks", "volumes", "configs", "secrets"}

var _ ports.ComposeMerger = (*Merger)(nil)

// Merger implements ports.ComposeMerger on the yaml.v3 node tree.
type Merger struct {
	hasher ports.Hasher
}

// NewMerger creates a new Merger.
func NewMerger(hasher ports.Hasher) *Merger {
	return &Merger{hasher: hasher}
}

// Namespace returns the key a package's fragment key is written as.
func Namespace(id domain.PackageID, key string) string {
	return id.String() + "-" + key
}

// Merge replaces the region of id in current with fragment.
func (m *Merger) Merge(current []byte, id domain.PackageID, fragment []byte) ([]byte, string, error) {
	root, err := parseMapping(current)
	if err != nil {
		return nil, "", err
	}
	removeRegion(root, id)

	frag, err := parseMapping(fragment)
	if err != nil {
		return nil, "", zerr.With(errors.Join(domain.ErrMalformedManifest, err), "package", id.String())
	}

	owners := ownerIndex(root)
	owned := make(map[string][]string)
	local := localKeys(frag)

	for i := 0; i+1 < len(frag.Content); i += 2 {
		keyNode, value := frag.Content[i], frag.Content[i+1]
		key := keyNode.Value

		if !slices.Contains(Sections, key) {
			if _, existing := lookup(root, key); existing != nil || key == ExtensionKey {
				return nil, "", conflict(key, owners.owner(TopLevelSection, key), id)
			}
			set(root, clone(keyNode, false), clone(value, false))
			owned[TopLevelSection] = append(owned[TopLevelSection], key)
			continue
		}

		if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
			continue
		}
		if value.Kind != yaml.MappingNode {
			return nil, "", zerr.With(zerr.With(zerr.Wrap(domain.ErrMalformedManifest, "compose section must be a mapping"), "section", key), "package", id.String())
		}

		_, section := lookup(root, key)
		if section == nil {
			section = newMap()
			set(root, newStr(key), section)
		} else if section.Kind != yaml.MappingNode {
			if section.Tag != "!!null" {
				return nil, "", conflict(key, userOwner, id)
			}
			*section = *newMap()
		}

		for j := 0; j+1 < len(value.Content); j += 2 {
			name := Namespace(id, value.Content[j].Value)
			if _, existing := lookup(section, name); existing != nil {
				return nil, "", conflict(key+"."+name, owners.owner(key, name), id)
			}
			entry := clone(value.Content[j+1], false)
			if key == "services" {
				rewriteService(entry, id, local)
			}
			nameNode := clone(value.Content[j], false)
			nameNode.Value = name
			set(section, nameNode, entry)
			owned[key] = append(owned[key], name)
		}
	}

	writeRegion(root, id, owned)
	markRegions(root)

	out, err := render(root)
	if err != nil {
		return nil, "", err
	}
	hash, err := m.hash(root, id)
	if err != nil {
		return nil, "", err
	}
	return out, hash, nil
}

// Remove deletes the region of id and every key it owns.
func (m *Merger) Remove(current []byte, id domain.PackageID) ([]byte, error) {
	root, err := parseMapping(current)
	if err != nil {
		return nil, err
	}
	removeRegion(root, id)
	markRegions(root)
	return render(root)
}

// RegionHash returns the hash of the canonical rendering of id's region.
func (m *Merger) RegionHash(current []byte, id domain.PackageID) (string, bool, error) {
	root, err := parseMapping(current)
	if err != nil {
		return "", false, err
	}
	if _, entry := lookup(extension(root), id.String()); entry == nil {
		return "", false, nil
	}
	hash, err := m.hash(root, id)
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// hash renders the keys owned by id, without comments, in ownership order.
func (m *Merger) hash(root *yaml.Node, id domain.PackageID) (string, error) {
	region := newMap()
	set(region, newStr(ExtensionKey), newStr(id.String()))

	_, entry := lookup(extension(root), id.String())
	for _, section := range keys(entry) {
		_, list := lookup(entry, section)
		if list == nil {
			continue
		}
		body := newMap()
		for _, item := range list.Content {
			var value *yaml.Node
			if section == TopLevelSection {
				_, value = lookup(root, item.Value)
			} else {
				_, sec := lookup(root, section)
				_, value = lookup(sec, item.Value)
			}
			if value == nil {
				value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
			}
			set(body, newStr(item.Value), clone(value, true))
		}
		set(region, newStr(section), body)
	}

	data, err := render(region)
	if err != nil {
		return "", err
	}
	return m.hasher.HashBytes(data), nil
}

func extension(root *yaml.Node) *yaml.Node {
	_, ext := lookup(root, ExtensionKey)
	return ext
}

// writeRegion records the keys owned by id between the region markers.
func writeRegion(root *yaml.Node, id domain.PackageID, owned map[string][]string) {
	ext := extension(root)
	if ext == nil || ext.Kind != yaml.MappingNode {
		remove(root, ExtensionKey)
		ext = newMap()
		set(root, newStr(ExtensionKey), ext)
	}

	entry := newMap()
	for _, section := range append(slices.Clone(Sections), TopLevelSection) {
		if list := owned[section]; len(list) > 0 {
			set(entry, newStr(section), newFlowSeq(list))
		}
	}

	set(ext, newStr(id.String()), entry)
}

// markRegions rebuilds the region markers of every package before rendering.
func markRegions(root *yaml.Node) {
	extKey, ext := lookup(root, ExtensionKey)
	if ext == nil || ext.Kind != yaml.MappingNode {
		return
	}
	// Keep the extension last so no marker ends up above a user key.
	remove(root, ExtensionKey)
	set(root, extKey, ext)
	extKey.FootComment = ""
	ext.HeadComment, ext.FootComment = "", ""
	for i := 0; i+1 < len(ext.Content); i += 2 {
		key, entry := ext.Content[i], ext.Content[i+1]
		key.HeadComment = "# >>> compak:" + key.Value
		key.LineComment = ""
		key.FootComment = "# <<< compak:" + key.Value
		*entry = *clone(entry, true)
	}
}

// removeRegion deletes everything id owns. Sections emptied by the removal
// are dropped, sections that were already empty are kept.
func removeRegion(root *yaml.Node, id domain.PackageID) {
	ext := extension(root)
	_, entry := lookup(ext, id.String())
	if entry == nil {
		return
	}

	for _, section := range keys(entry) {
		_, list := lookup(entry, section)
		if list == nil {
			continue
		}
		for _, item := range list.Content {
			if section == TopLevelSection {
				remove(root, item.Value)
				continue
			}
			_, sec := lookup(root, section)
			if sec == nil {
				continue
			}
			if remove(sec, item.Value) && len(sec.Content) == 0 {
				remove(root, section)
			}
		}
	}

	remove(ext, id.String())
	if len(ext.Content) == 0 {
		remove(root, ExtensionKey)
	}
}

type owners map[string]map[string]string

func ownerIndex(root *yaml.Node) owners {
	idx := make(owners)
	ext := extension(root)
	for _, pkg := range keys(ext) {
		_, entry := lookup(ext, pkg)
		for _, section := range keys(entry) {
			_, list := lookup(entry, section)
			if list == nil {
				continue
			}
			if idx[section] == nil {
				idx[section] = make(map[string]string)
			}
			for _, item := range list.Content {
				idx[section][item.Value] = pkg
			}
		}
	}
	return idx
}

func (o owners) owner(section, key string) string {
	if pkg, ok := o[section][key]; ok {
		return pkg
	}
	return userOwner
}

func conflict(key, holder string, id domain.PackageID) error {
	packages := []string{holder, id.String()}
	var err error = zerr.Wrap(domain.ErrMergeConflict, "key is already defined")
	err = zerr.With(err, "key", key)
	return zerr.With(err, "packages", strings.Join(packages, ","))
}
