package fetcher

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// XMLNode is one element of a parsed document. Attributes are ignored.
type XMLNode struct {
	Name     string
	Text     string
	Children []*XMLNode
}

// ChildrenNamed returns every direct child whose local name is one of names,
// in document order.
func (n *XMLNode) ChildrenNamed(names ...string) []*XMLNode {
	var out []*XMLNode
	for _, c := range n.Children {
		for _, name := range names {
			if c.Name == name {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ParseXMLTree reads a whole document into a tree of elements keyed by local
// name. Text is whitespace-trimmed. A leading UTF-8 BOM is skipped and
// non-UTF-8 charsets declared in the prolog are decoded.
func ParseXMLTree(r io.Reader) (*XMLNode, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "xml: read input")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var (
		root  *XMLNode
		stack []*XMLNode
		texts []*strings.Builder
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "xml: read token")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &XMLNode{Name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, eris.New("xml: multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
			texts = append(texts, &strings.Builder{})
		case xml.CharData:
			if len(texts) > 0 {
				texts[len(texts)-1].Write(t)
			}
		case xml.EndElement:
			node := stack[len(stack)-1]
			node.Text = strings.TrimSpace(texts[len(texts)-1].String())
			stack = stack[:len(stack)-1]
			texts = texts[:len(texts)-1]
		}
	}

	if root == nil {
		return nil, eris.New("xml: no root element")
	}
	return root, nil
}
