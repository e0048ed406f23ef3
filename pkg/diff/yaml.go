package diff

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v3"
)

// Hex renders an integer the way every number in the output files is
// written, e.g. 0x0A.
func Hex[T constraints.Integer](v T) string {
	if v < 0 {
		return fmt.Sprintf("-0x%02X", -int64(v))
	}
	return fmt.Sprintf("0x%02X", int64(v))
}

func hexNode[T constraints.Integer](v T) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: Hex(v)}
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func mapNode(style yaml.Style) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: style}
}

func seqNode(style yaml.Style) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: style}
}

func bytesNode(data []byte) *yaml.Node {
	n := seqNode(yaml.FlowStyle)
	for _, b := range data {
		n.Content = append(n.Content, hexNode(b))
	}
	return n
}

// Encode renders a document with two-space indentation.
func Encode(node *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, errors.Wrap(err, "failed to encode yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to encode yaml")
	}
	return buf.Bytes(), nil
}
