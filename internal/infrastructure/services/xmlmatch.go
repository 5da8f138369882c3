package services

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// xmlBodyPredicate compiles an expected XML document. Two documents are equal
// when their element trees have the same names, the same attribute sets and
// the same trimmed text, ignoring comments and whitespace-only text.
func xmlBodyPredicate(doc string) (func([]byte) bool, error) {
	expected, err := xmlquery.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("invalid xml: %w", err)
	}
	want := canonicalChildren(expected)
	return func(body []byte) bool {
		actual, err := xmlquery.Parse(bytes.NewReader(body))
		if err != nil {
			return false
		}
		return nodesEqual(want, canonicalChildren(actual))
	}, nil
}

// canonicalChildren returns the significant children of n: elements and
// non-blank text/CDATA.
func canonicalChildren(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.ElementNode:
			out = append(out, c)
		case xmlquery.TextNode, xmlquery.CharDataNode:
			if strings.TrimSpace(c.Data) != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

func nodesEqual(a, b []*xmlquery.Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !nodeEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func nodeEqual(a, b *xmlquery.Node) bool {
	aText := a.Type == xmlquery.TextNode || a.Type == xmlquery.CharDataNode
	bText := b.Type == xmlquery.TextNode || b.Type == xmlquery.CharDataNode
	if aText || bText {
		return aText && bText && strings.TrimSpace(a.Data) == strings.TrimSpace(b.Data)
	}
	if a.Data != b.Data || a.NamespaceURI != b.NamespaceURI {
		return false
	}
	if !attributesEqual(a.Attr, b.Attr) {
		return false
	}
	return nodesEqual(canonicalChildren(a), canonicalChildren(b))
}

func attributesEqual(a, b []xmlquery.Attr) bool {
	as, bs := attributeSet(a), attributeSet(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// attributeSet renders attributes as sorted name=value pairs, skipping
// namespace declarations.
func attributeSet(attrs []xmlquery.Attr) []string {
	out := make([]string, 0, len(attrs))
	for _, at := range attrs {
		if at.Name.Space == "xmlns" || (at.Name.Space == "" && at.Name.Local == "xmlns") {
			continue
		}
		out = append(out, at.NamespaceURI+"|"+at.Name.Local+"="+at.Value)
	}
	sort.Strings(out)
	return out
}

// xpathBodyPredicate compiles an XPath expression. The body matches when the
// expression selects at least one node or evaluates to true, a non-zero number
// or a non-empty string.
func xpathBodyPredicate(expr string) (func([]byte) bool, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return func(body []byte) bool {
		doc, err := xmlquery.Parse(bytes.NewReader(body))
		if err != nil {
			return false
		}
		switch v := compiled.Evaluate(xmlquery.CreateXPathNavigator(doc)).(type) {
		case bool:
			return v
		case float64:
			return v != 0
		case string:
			return v != ""
		case *xpath.NodeIterator:
			return v.MoveNext()
		default:
			return false
		}
	}, nil
}
