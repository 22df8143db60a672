// Package stanza provides a minimal, mutable XML element tree used to
// represent the top-level children (message, presence, iq) of an XMPP
// stream, along with typed wrappers over that tree.
package stanza

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Attr is a single XML attribute.
type Attr struct {
	Name  string
	Value string
}

// Element is a node in a parsed or hand-built XML element tree. It is the
// element-tree counterpart to encoding/xml's token stream: parser.Parser
// assembles a subtree of Elements from the tokens for each top-level
// stanza, and Stanza construction builds one directly.
type Element struct {
	Name      string
	Namespace string
	Attrs     []Attr
	Children  []*Element
	CharData  string
}

// NewElement creates a bare element with the given local name.
func NewElement(name string) *Element {
	return &Element{Name: name}
}

// NewElementNS creates a bare element with the given namespace and local
// name.
func NewElementNS(namespace, name string) *Element {
	return &Element{Name: name, Namespace: namespace}
}

// Attr returns the value of the named attribute and whether it was present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets the named attribute, replacing any existing value.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.Attrs {
		if a.Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// AddChild appends c as the last child of e.
func (e *Element) AddChild(c *Element) {
	e.Children = append(e.Children, c)
}

// Child returns the first direct child with the given local name, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildText returns the character data of the first direct child with the
// given local name, or "" if there is no such child.
func (e *Element) ChildText(name string) string {
	if c := e.Child(name); c != nil {
		return c.CharData
	}
	return ""
}

// SetChildText adds (or replaces) a direct child with the given name whose
// only content is the supplied text.
func (e *Element) SetChildText(name, text string) {
	for _, c := range e.Children {
		if c.Name == name {
			c.CharData = text
			c.Children = nil
			return
		}
	}
	e.AddChild(&Element{Name: name, CharData: text})
}

// String serializes the element subtree to UTF-8 XML text with no extra
// indentation, matching the contract that Stanza.String() builds on.
func (e *Element) String() string {
	var b strings.Builder
	_ = e.WriteXML(&b, "")
	return b.String()
}

// WriteXML writes e and its descendants as XML text to w. parentNS is the
// namespace already in scope from an enclosing element; an xmlns attribute
// is only emitted when e's namespace differs from it, so nested elements
// that share their parent's namespace don't repeat it.
func (e *Element) WriteXML(w io.Writer, parentNS string) error {
	if _, err := fmt.Fprintf(w, "<%s", e.Name); err != nil {
		return err
	}
	if e.Namespace != "" && e.Namespace != parentNS {
		if _, err := fmt.Fprintf(w, " xmlns=%s", quoteAttr(e.Namespace)); err != nil {
			return err
		}
	}
	for _, a := range e.Attrs {
		if _, err := fmt.Fprintf(w, " %s=%s", a.Name, quoteAttr(a.Value)); err != nil {
			return err
		}
	}
	if len(e.Children) == 0 && e.CharData == "" {
		_, err := fmt.Fprint(w, "/>")
		return err
	}
	if _, err := fmt.Fprint(w, ">"); err != nil {
		return err
	}
	if e.CharData != "" {
		if err := xml.EscapeText(w, []byte(e.CharData)); err != nil {
			return err
		}
	}
	childNS := e.Namespace
	if childNS == "" {
		childNS = parentNS
	}
	for _, c := range e.Children {
		if err := c.WriteXML(w, childNS); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "</%s>", e.Name)
	return err
}

func quoteAttr(v string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range v {
		switch r {
		case '\'':
			b.WriteString("&apos;")
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
