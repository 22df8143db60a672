// Package parser implements the incremental XML stream parser that sits
// beneath a Session: it consumes byte chunks of arbitrary size and
// alignment from a never-closing outer <stream:stream> element and emits
// a one-shot stream-open event followed by one event per completed
// top-level child (stanza).
//
// It is a small hand-rolled push parser rather than a wrapper around
// encoding/xml.Decoder: the standard decoder latches its first read error
// permanently (see encoding/xml's Decoder.getc), which makes it unusable
// for a parser that must tolerate "not enough bytes yet" as a routine,
// recoverable condition rather than a terminal one.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/elpescado/kfxmpp/stanza"
)

// Callbacks holds the two events a Parser emits. Both are optional; a nil
// callback simply means that event is ignored.
type Callbacks struct {
	// OnStreamOpen fires exactly once, when the opening root element is
	// first seen. version is the integer part of the stream's version
	// attribute (0 if absent); id is the stream id attribute, or "".
	OnStreamOpen func(version int, id string)

	// OnStanza fires once per top-level child of the root, in document
	// order, as soon as its closing tag arrives.
	OnStanza func(e *stanza.Element)
}

// Parser is an incremental XML stream parser. The zero value is not
// usable; construct one with New. A Parser is not safe for concurrent
// use: Feed must be called from a single goroutine at a time, matching
// the single-threaded reactor that owns a Session.
type Parser struct {
	cb Callbacks

	buf []byte // unconsumed bytes left over from the previous Feed
	pos int    // read cursor into buf

	depth      int
	stack      []*stanza.Element
	nsStack    []map[string]string // namespace scopes, one per open element plus the implicit root scope
	rootClosed bool
	opened     bool

	pending []*stanza.Element
}

// New constructs a Parser that invokes cb as the stream progresses.
func New(cb Callbacks) *Parser {
	return &Parser{
		cb:      cb,
		nsStack: []map[string]string{{}},
	}
}

// Feed consumes a chunk of bytes, emitting OnStreamOpen/OnStanza as
// elements complete. Incomplete fragments (a partial tag, a partial
// multi-byte entity, a stanza still missing its closing tag) are
// buffered internally and completed by a later Feed call.
func (p *Parser) Feed(data []byte) error {
	if p.rootClosed {
		return nil
	}
	p.buf = append(p.buf, data...)
	if err := p.parseBuffered(); err != nil {
		return err
	}
	p.drainPending()
	return nil
}

// drainPending delivers completed top-level stanzas to OnStanza after the
// chunk that completed them has been fully consumed, matching the
// contract that unlinked elements are handed off once, in order, rather
// than from inside the tokenizer's own call stack.
func (p *Parser) drainPending() {
	for _, el := range p.pending {
		if p.cb.OnStanza != nil {
			p.cb.OnStanza(el)
		}
	}
	p.pending = p.pending[:0]
}

// parseBuffered extracts as many complete tokens as are available,
// compacting the buffer as it goes so unbounded input doesn't grow it
// unboundedly once stanzas are consumed.
func (p *Parser) parseBuffered() error {
	for {
		if p.rootClosed {
			break
		}
		advanced, err := p.step()
		if err != nil {
			return err
		}
		if !advanced {
			break
		}
	}
	// Compact: drop everything already consumed.
	if p.pos > 0 {
		p.buf = append(p.buf[:0], p.buf[p.pos:]...)
		p.pos = 0
	}
	return nil
}

// step attempts to consume exactly one token (a run of character data, or
// one markup construct) from the buffer starting at p.pos. It reports
// advanced == false when the buffer doesn't yet contain a complete token.
func (p *Parser) step() (advanced bool, err error) {
	buf := p.buf
	if p.pos >= len(buf) {
		return false, nil
	}
	if buf[p.pos] != '<' {
		// Character data: find the start of the next tag.
		rel := indexByte(buf[p.pos:], '<')
		if rel < 0 {
			// All pending bytes are text; keep them buffered in case the
			// chunk boundary fell in the middle of an entity reference.
			return false, nil
		}
		text := buf[p.pos : p.pos+rel]
		p.pos += rel
		if len(p.stack) > 0 && len(text) > 0 {
			p.stack[len(p.stack)-1].CharData += unescapeXML(string(text))
		}
		return true, nil
	}

	switch {
	case hasPrefixAt(buf, p.pos, "<?"):
		end := indexFrom(buf, p.pos, "?>")
		if end < 0 {
			return false, nil
		}
		p.pos = end + len("?>")
		return true, nil
	case hasPrefixAt(buf, p.pos, "<!--"):
		end := indexFrom(buf, p.pos, "-->")
		if end < 0 {
			return false, nil
		}
		p.pos = end + len("-->")
		return true, nil
	case hasPrefixAt(buf, p.pos, "<![CDATA["):
		end := indexFrom(buf, p.pos, "]]>")
		if end < 0 {
			return false, nil
		}
		content := buf[p.pos+len("<![CDATA[") : end]
		if len(p.stack) > 0 {
			p.stack[len(p.stack)-1].CharData += string(content)
		}
		p.pos = end + len("]]>")
		return true, nil
	default:
		tagEnd := findTagEnd(buf, p.pos)
		if tagEnd < 0 {
			return false, nil
		}
		tag := buf[p.pos+1 : tagEnd] // between '<' and '>'
		p.pos = tagEnd + 1
		return true, p.handleTag(tag)
	}
}

func (p *Parser) handleTag(tag []byte) error {
	if len(tag) == 0 {
		return fmt.Errorf("parser: empty tag")
	}
	if tag[0] == '/' {
		return p.handleEndTag(strings.TrimSpace(string(tag[1:])))
	}
	selfClose := tag[len(tag)-1] == '/'
	if selfClose {
		tag = tag[:len(tag)-1]
	}
	name, attrs, err := parseStartTag(tag)
	if err != nil {
		return err
	}
	if err := p.handleStartTag(name, attrs); err != nil {
		return err
	}
	if selfClose {
		return p.handleEndTag(name)
	}
	return nil
}

func (p *Parser) handleStartTag(qname string, raw []rawAttr) error {
	scope := map[string]string{}
	for k, v := range p.nsStack[len(p.nsStack)-1] {
		scope[k] = v
	}
	var attrs []stanza.Attr
	for _, a := range raw {
		switch {
		case a.name == "xmlns":
			scope[""] = a.value
		case strings.HasPrefix(a.name, "xmlns:"):
			scope[a.name[len("xmlns:"):]] = a.value
		default:
			attrs = append(attrs, stanza.Attr{Name: a.name, Value: a.value})
		}
	}
	p.nsStack = append(p.nsStack, scope)

	prefix, local := splitPrefix(qname)
	ns := scope[prefix]

	el := &stanza.Element{Name: local, Namespace: ns, Attrs: attrs}

	p.depth++
	switch {
	case p.depth == 1:
		p.opened = true
		version := 0
		if v, ok := el.Attr("version"); ok {
			major, _, _ := strings.Cut(v, ".")
			version, _ = strconv.Atoi(major)
		}
		id, _ := el.Attr("id")
		if p.cb.OnStreamOpen != nil {
			p.cb.OnStreamOpen(version, id)
		}
	default:
		if len(p.stack) > 0 {
			p.stack[len(p.stack)-1].AddChild(el)
		}
		p.stack = append(p.stack, el)
	}
	return nil
}

func (p *Parser) handleEndTag(qname string) error {
	_, local := splitPrefix(qname)
	if p.depth == 0 {
		return fmt.Errorf("parser: end tag %q with no matching start tag", local)
	}
	if len(p.nsStack) > 1 {
		p.nsStack = p.nsStack[:len(p.nsStack)-1]
	}
	if p.depth == 1 {
		p.depth = 0
		p.rootClosed = true
		return nil
	}
	p.depth--
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	if p.depth == 1 {
		p.pending = append(p.pending, top)
	}
	return nil
}

type rawAttr struct{ name, value string }

// findTagEnd returns the index of the '>' that closes the tag starting at
// buf[start] (which must be '<'), respecting quoted attribute values, or
// -1 if the tag is not yet complete.
func findTagEnd(buf []byte, start int) int {
	var quote byte
	for i := start + 1; i < len(buf); i++ {
		c := buf[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '>':
			return i
		}
	}
	return -1
}

func parseStartTag(tag []byte) (name string, attrs []rawAttr, err error) {
	s := string(tag)
	i := 0
	for i < len(s) && !isSpace(s[i]) {
		i++
	}
	name = s[:i]
	if name == "" {
		return "", nil, fmt.Errorf("parser: tag with no name")
	}
	for i < len(s) {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		for i < len(s) && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		attrName := s[start:i]
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			return "", nil, fmt.Errorf("parser: malformed attribute near %q", attrName)
		}
		i++ // skip '='
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) || (s[i] != '\'' && s[i] != '"') {
			return "", nil, fmt.Errorf("parser: attribute %q value not quoted", attrName)
		}
		quote := s[i]
		i++
		valStart := i
		for i < len(s) && s[i] != quote {
			i++
		}
		if i >= len(s) {
			return "", nil, fmt.Errorf("parser: unterminated attribute value for %q", attrName)
		}
		value := unescapeXML(s[valStart:i])
		i++ // skip closing quote
		attrs = append(attrs, rawAttr{name: attrName, value: value})
	}
	return name, attrs, nil
}

func splitPrefix(qname string) (prefix, local string) {
	if idx := strings.IndexByte(qname, ':'); idx >= 0 {
		return qname[:idx], qname[idx+1:]
	}
	return "", qname
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func hasPrefixAt(buf []byte, pos int, prefix string) bool {
	if pos+len(prefix) > len(buf) {
		return false
	}
	return string(buf[pos:pos+len(prefix)]) == prefix
}

// indexFrom returns the index at which sep begins, searching buf starting
// at pos, or -1 if sep does not (yet) appear.
func indexFrom(buf []byte, pos int, sep string) int {
	for i := pos; i+len(sep) <= len(buf); i++ {
		if string(buf[i:i+len(sep)]) == sep {
			return i
		}
	}
	return -1
}

func unescapeXML(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			b.WriteByte(s[i])
			continue
		}
		entity := s[i+1 : i+end]
		switch entity {
		case "lt":
			b.WriteByte('<')
		case "gt":
			b.WriteByte('>')
		case "amp":
			b.WriteByte('&')
		case "apos":
			b.WriteByte('\'')
		case "quot":
			b.WriteByte('"')
		default:
			if strings.HasPrefix(entity, "#x") || strings.HasPrefix(entity, "#X") {
				if n, err := strconv.ParseInt(entity[2:], 16, 32); err == nil {
					b.WriteRune(rune(n))
					i += end
					continue
				}
			} else if strings.HasPrefix(entity, "#") {
				if n, err := strconv.ParseInt(entity[1:], 10, 32); err == nil {
					b.WriteRune(rune(n))
					i += end
					continue
				}
			}
			// Unknown entity: pass through literally rather than drop data.
			b.WriteByte('&')
			b.WriteString(entity)
			b.WriteByte(';')
		}
		i += end
	}
	return b.String()
}
