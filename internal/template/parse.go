package template

import (
	"regexp"
	"strings"

	"github.com/conneroisu/kiln/internal/expr"
)

var loopPattern = regexp.MustCompile(`^\s*(?:let\s+|const\s+)?([A-Za-z_$][A-Za-z0-9_$]*)\s+of\s+(.+?)\s*$`)

// handlerArgs matches a trailing argument list such as "($event)".
var handlerArgs = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

type parser struct {
	src      string
	pos      int
	root     *elementNode
	stack    []*elementNode
	bindings []Binding
	seen     map[Binding]bool
	errs     []error
}

// parse builds the node tree of src and collects its event bindings in
// document order, without duplicates.
func parse(src string) *parser {
	p := &parser{
		src:  src,
		root: &elementNode{},
		seen: make(map[Binding]bool),
	}
	p.stack = []*elementNode{p.root}
	p.run()
	return p
}

func (p *parser) top() *elementNode { return p.stack[len(p.stack)-1] }

func (p *parser) add(n node) {
	top := p.top()
	top.children = append(top.children, n)
}

func (p *parser) run() {
	for p.pos < len(p.src) {
		rest := p.src[p.pos:]
		switch {
		case strings.HasPrefix(rest, "<!--"):
			end := strings.Index(rest[4:], "-->")
			if end < 0 {
				p.add(&literalNode{text: rest})
				p.pos = len(p.src)
				continue
			}
			length := 4 + end + 3
			p.add(&literalNode{text: rest[:length]})
			p.pos += length

		case strings.HasPrefix(rest, "</") && len(rest) > 2 && isTagStart(rest[2]):
			p.parseEndTag()

		case rest[0] == '<' && len(rest) > 1 && isTagStart(rest[1]):
			if !p.parseStartTag() {
				p.add(p.text(rest))
				p.pos = len(p.src)
			}

		case strings.HasPrefix(rest, "<!"):
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				end = len(rest) - 1
			}
			p.add(&literalNode{text: rest[:end+1]})
			p.pos += end + 1

		default:
			end := p.textEnd()
			p.add(p.text(p.src[p.pos:end]))
			p.pos = end
		}
	}
}

// textEnd finds where the text run starting at p.pos stops: at the next
// tag-like construct that is not inside an interpolation.
func (p *parser) textEnd() int {
	i := p.pos
	for i < len(p.src) {
		if strings.HasPrefix(p.src[i:], "{{") {
			if end := strings.Index(p.src[i+2:], "}}"); end >= 0 {
				i += 2 + end + 2
				continue
			}
		}
		if p.src[i] == '<' && i+1 < len(p.src) && i > p.pos {
			next := p.src[i+1]
			if isTagStart(next) || next == '/' || next == '!' {
				return i
			}
		}
		i++
	}
	return i
}

func (p *parser) text(s string) *textNode {
	return &textNode{segments: p.segments(s)}
}

// segments splits s into literal text and {{ }} interpolations. An
// unterminated "{{" is kept as literal text.
func (p *parser) segments(s string) []segment {
	var out []segment
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(s[start+2:], "}}")
		if end < 0 {
			break
		}
		if start > 0 {
			out = append(out, segment{literal: s[:start]})
		}
		source := strings.TrimSpace(s[start+2 : start+2+end])
		seg := segment{source: source, interp: true}
		if e, err := expr.Parse(source); err == nil {
			seg.expr = e
		} else {
			p.errs = append(p.errs, err)
		}
		out = append(out, seg)
		s = s[start+2+end+2:]
	}
	if s != "" {
		out = append(out, segment{literal: s})
	}
	return out
}

func (p *parser) parseEndTag() {
	rest := p.src[p.pos:]
	end := strings.IndexByte(rest, '>')
	if end < 0 {
		p.add(p.text(rest))
		p.pos = len(p.src)
		return
	}
	name := strings.TrimSpace(rest[2:end])
	p.pos += end + 1

	for i := len(p.stack) - 1; i > 0; i-- {
		if strings.EqualFold(p.stack[i].tag, name) {
			p.stack = p.stack[:i]
			return
		}
	}
	// A stray end tag closes nothing and is dropped.
}

// parseStartTag parses the tag at p.pos. It returns false when the tag is
// never terminated, leaving p.pos untouched.
func (p *parser) parseStartTag() bool {
	src := p.src
	j := p.pos + 1
	for j < len(src) && isTagChar(src[j]) {
		j++
	}
	el := &elementNode{tag: src[p.pos+1 : j]}
	lower := strings.ToLower(el.tag)
	el.void = voidElements[lower]

	for {
		for j < len(src) && isSpace(src[j]) {
			j++
		}
		if j >= len(src) {
			return false
		}
		if src[j] == '>' {
			j++
			break
		}
		if strings.HasPrefix(src[j:], "/>") {
			el.selfClosing = true
			j += 2
			break
		}

		nameStart := j
		for j < len(src) && !isSpace(src[j]) && src[j] != '=' && src[j] != '>' && !strings.HasPrefix(src[j:], "/>") {
			j++
		}
		name := src[nameStart:j]
		if name == "" {
			j++
			continue
		}

		attr := attribute{name: name}
		k := j
		for k < len(src) && isSpace(src[k]) {
			k++
		}
		if k < len(src) && src[k] == '=' {
			k++
			for k < len(src) && isSpace(src[k]) {
				k++
			}
			if k >= len(src) {
				return false
			}
			var value string
			if q := src[k]; q == '"' || q == '\'' {
				end := strings.IndexByte(src[k+1:], q)
				if end < 0 {
					return false
				}
				value = src[k+1 : k+1+end]
				attr.quote = q
				j = k + 1 + end + 1
			} else {
				end := k
				for end < len(src) && !isSpace(src[end]) && src[end] != '>' {
					end++
				}
				value = src[k:end]
				j = end
			}
			attr.hasValue = true
			p.attribute(el, attr, value)
			continue
		}
		p.attribute(el, attr, "")
	}

	p.pos = j
	p.add(el)

	if el.void || el.selfClosing {
		return true
	}

	if rawTextElements[lower] {
		p.rawText(el, lower)
		return true
	}

	p.stack = append(p.stack, el)
	return true
}

// attribute routes one attribute to a directive, a binding or the element's
// emitted attributes.
func (p *parser) attribute(el *elementNode, attr attribute, value string) {
	switch {
	case attr.name == "*if":
		cond := &conditionDirective{source: strings.TrimSpace(value)}
		if e, err := expr.Parse(value); err == nil {
			cond.expr = e
		} else {
			p.errs = append(p.errs, err)
		}
		el.condition = cond

	case attr.name == "*for":
		loop := &loopDirective{source: strings.TrimSpace(value)}
		if m := loopPattern.FindStringSubmatch(value); m != nil {
			loop.item = m[1]
			if e, err := expr.Parse(m[2]); err == nil {
				loop.collection = e
			} else {
				p.errs = append(p.errs, err)
			}
		}
		el.loop = loop

	case len(attr.name) > 2 && attr.name[0] == '(' && attr.name[len(attr.name)-1] == ')':
		handler := strings.TrimSpace(handlerArgs.ReplaceAllString(value, ""))
		b := Binding{EventName: attr.name[1 : len(attr.name)-1], HandlerName: handler}
		if b.HandlerName != "" && !p.seen[b] {
			p.seen[b] = true
			p.bindings = append(p.bindings, b)
		}

	default:
		if attr.hasValue {
			attr.value = p.segments(value)
		}
		el.attrs = append(el.attrs, attr)
	}
}

func (p *parser) rawText(el *elementNode, lower string) {
	rest := p.src[p.pos:]
	end := strings.Index(strings.ToLower(rest), "</"+lower)
	if end < 0 {
		end = len(rest)
	}
	if end > 0 {
		content := p.text(rest[:end])
		content.raw = lower == "script" || lower == "style"
		el.children = append(el.children, content)
	}
	p.pos += end
	if p.pos < len(p.src) {
		if gt := strings.IndexByte(p.src[p.pos:], '>'); gt >= 0 {
			p.pos += gt + 1
		} else {
			p.pos = len(p.src)
		}
	}
	el.raw = true
}

func isTagStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isTagChar(c byte) bool {
	return isTagStart(c) || (c >= '0' && c <= '9') || c == '-' || c == ':' || c == '_' || c == '.'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
