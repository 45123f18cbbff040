package enginetest

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/xqts-suite/runnercore/types"
)

// NodeValue is a minimal parsed-XML element, used only by the fake
// engine to give count()/child-step path expressions and assert-xml
// serialization something concrete to operate on.
type NodeValue struct {
	Name     string
	Attrs    []xml.Attr
	Text     string
	Children []NodeValue
}

func (NodeValue) Kind() types.ItemKind { return types.ItemKindOther }
func (NodeValue) TypeName() string     { return "element()" }

// ChildrenNamed returns the direct children matching a local element name.
func (n NodeValue) ChildrenNamed(name string) []types.Item {
	var out []types.Item
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Serialize renders the node back to XML text, matching the
// method="xml" indent="no" omit-xml-declaration="yes" default
// serialization the runner requests (spec §6).
func (n NodeValue) Serialize() string {
	var sb strings.Builder
	n.writeTo(&sb)
	return sb.String()
}

func (n NodeValue) writeTo(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(n.Name)
	for _, a := range n.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Name.Local)
		sb.WriteString(`="`)
		sb.WriteString(a.Value)
		sb.WriteByte('"')
	}
	if len(n.Children) == 0 && n.Text == "" {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	sb.WriteString(n.Text)
	for _, c := range n.Children {
		c.writeTo(sb)
	}
	sb.WriteString("</")
	sb.WriteString(n.Name)
	sb.WriteByte('>')
}

// parseMinimalXML decodes raw bytes into a single-item Sequence
// wrapping the document element. It is not a validating parser: it
// exists to give the fake engine's count()/path-step subset and
// assert-xml serialization something real to walk, using stdlib
// encoding/xml exactly as jacoelho-xsd's stream-oriented reader does
// (no third-party XML library is warranted for this scope — see
// DESIGN.md).
func parseMinimalXML(data []byte) (types.Sequence, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	root, err := decodeElement(dec)
	if err != nil {
		return nil, err
	}
	return types.NewSequence(root), nil
}

func decodeElement(dec *xml.Decoder) (NodeValue, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return NodeValue{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return buildNode(dec, start)
		}
	}
}

func buildNode(dec *xml.Decoder, start xml.StartElement) (NodeValue, error) {
	node := NodeValue{Name: start.Name.Local, Attrs: start.Attr}
	for {
		tok, err := dec.Token()
		if err != nil {
			return node, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := buildNode(dec, t)
			if err != nil {
				return node, err
			}
			node.Children = append(node.Children, child)
		case xml.CharData:
			node.Text += string(t)
		case xml.EndElement:
			return node, nil
		}
	}
}

// WrapInElement builds the ignorable-wrapper element the runner uses
// to canonicalize expected/actual XML before diffing (spec §6).
func WrapInElement(name string, children ...NodeValue) NodeValue {
	return NodeValue{Name: name, Children: children}
}
