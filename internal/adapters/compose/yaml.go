package compose

import (
	"bytes"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	mapTag = "!!map"
	seqTag = "!!seq"
	strTag = "!!str"
)

func newMap() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: mapTag}
}

func newStr(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: strTag, Value: s}
}

func newFlowSeq(items []string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: seqTag, Style: yaml.FlowStyle}
	for _, item := range items {
		seq.Content = append(seq.Content, newStr(item))
	}
	return seq
}

// parseMapping decodes a YAML document whose root must be a mapping. Empty
// input yields an empty mapping.
func parseMapping(data []byte) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return newMap(), nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, zerr.Wrap(err, "failed to parse compose document")
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return newMap(), nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return newMap(), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, zerr.New("compose document must be a mapping")
	}
	// Comments above the first key live on the document node.
	if doc.HeadComment != "" && root.HeadComment == "" {
		root.HeadComment = doc.HeadComment
	}
	return root, nil
}

// render encodes a mapping. An empty mapping renders as no bytes at all.
func render(root *yaml.Node) ([]byte, error) {
	if len(root.Content) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, zerr.Wrap(err, "failed to render compose document")
	}
	if err := enc.Close(); err != nil {
		return nil, zerr.Wrap(err, "failed to render compose document")
	}
	return buf.Bytes(), nil
}

// lookup returns the key and value nodes of key in mapping m.
func lookup(m *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil, nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i], m.Content[i+1]
		}
	}
	return nil, nil
}

func set(m *yaml.Node, key, value *yaml.Node) {
	m.Content = append(m.Content, key, value)
}

func remove(m *yaml.Node, key string) bool {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return true
		}
	}
	return false
}

// keys returns the keys of mapping m in document order.
func keys(m *yaml.Node) []string {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]string, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		out = append(out, m.Content[i].Value)
	}
	return out
}

// clone deep copies a node. Comments are dropped when bare is set.
func clone(n *yaml.Node, bare bool) *yaml.Node {
	if n == nil {
		return nil
	}
	out := *n
	if bare {
		out.HeadComment, out.LineComment, out.FootComment = "", "", ""
		out.Line, out.Column = 0, 0
	}
	if n.Alias != nil {
		out.Alias = clone(n.Alias, bare)
	}
	out.Content = make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		out.Content[i] = clone(c, bare)
	}
	return &out
}
