package compose

import (
	"strings"

	"go.trai.ch/compak/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// localKeys collects the keys a fragment defines per section.
func localKeys(frag *yaml.Node) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(Sections))
	for _, section := range Sections {
		_, value := lookup(frag, section)
		names := make(map[string]bool)
		for _, k := range keys(value) {
			names[k] = true
		}
		out[section] = names
	}
	return out
}

// rewriteService points references inside a service definition at the
// namespaced keys of its own package. References to keys the fragment does
// not define are left alone.
func rewriteService(svc *yaml.Node, id domain.PackageID, local map[string]map[string]bool) {
	if svc.Kind != yaml.MappingNode {
		return
	}
	rename := func(section string) func(string) (string, bool) {
		return func(name string) (string, bool) {
			if local[section][name] {
				return Namespace(id, name), true
			}
			return name, false
		}
	}

	for i := 0; i+1 < len(svc.Content); i += 2 {
		value := svc.Content[i+1]
		switch svc.Content[i].Value {
		case "depends_on":
			renameList(value, rename("services"))
		case "networks":
			renameList(value, rename("networks"))
		case "configs":
			renameSources(value, rename("configs"))
		case "secrets":
			renameSources(value, rename("secrets"))
		case "volumes":
			renameVolumes(value, rename("volumes"))
		case "links":
			renameLinks(value, rename("services"))
		case "extends":
			if _, file := lookup(value, "file"); file == nil {
				if _, service := lookup(value, "service"); service != nil {
					if name, ok := rename("services")(service.Value); ok {
						service.Value = name
					}
				}
			}
		case "network_mode":
			if target, ok := strings.CutPrefix(value.Value, "service:"); ok {
				if name, ok := rename("services")(target); ok {
					value.Value = "service:" + name
				}
			}
		}
	}
}

// renameList handles the short list form and the long mapping form.
func renameList(n *yaml.Node, rename func(string) (string, bool)) {
	switch n.Kind {
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if name, ok := rename(item.Value); ok && item.Kind == yaml.ScalarNode {
				item.Value = name
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if name, ok := rename(n.Content[i].Value); ok {
				n.Content[i].Value = name
			}
		}
	}
}

// renameSources handles configs and secrets: names or {source: name}.
func renameSources(n *yaml.Node, rename func(string) (string, bool)) {
	if n.Kind != yaml.SequenceNode {
		return
	}
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			if name, ok := rename(item.Value); ok {
				item.Value = name
			}
		case yaml.MappingNode:
			if _, source := lookup(item, "source"); source != nil {
				if name, ok := rename(source.Value); ok {
					source.Value = name
				}
			}
		}
	}
}

// renameVolumes rewrites named volumes in "name:/path[:mode]" and in the long
// syntax. Bind mounts never match a volume key since they contain a slash.
func renameVolumes(n *yaml.Node, rename func(string) (string, bool)) {
	if n.Kind != yaml.SequenceNode {
		return
	}
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			source, rest, found := strings.Cut(item.Value, ":")
			if !found {
				continue
			}
			if name, ok := rename(source); ok {
				item.Value = name + ":" + rest
			}
		case yaml.MappingNode:
			if _, typ := lookup(item, "type"); typ != nil && typ.Value != "volume" {
				continue
			}
			if _, source := lookup(item, "source"); source != nil {
				if name, ok := rename(source.Value); ok {
					source.Value = name
				}
			}
		}
	}
}

// renameLinks rewrites "service" and "service:alias" entries.
func renameLinks(n *yaml.Node, rename func(string) (string, bool)) {
	if n.Kind != yaml.SequenceNode {
		return
	}
	for _, item := range n.Content {
		service, alias, hasAlias := strings.Cut(item.Value, ":")
		name, ok := rename(service)
		if !ok {
			continue
		}
		if hasAlias {
			item.Value = name + ":" + alias
		} else {
			item.Value = name + ":" + service
		}
	}
}
