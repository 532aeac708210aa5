package match

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Haystack builds the searchable text for a recipe: name and instructions,
// markup stripped, whitespace collapsed, lowercased.
func Haystack(name, instructions string) string {
	text := name
	if instructions != "" {
		text += " " + stripHTML(instructions)
	}
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// stripHTML drops recognised markup and keeps everything else as text.
// Anything that only looks like a tag, such as "a<b turkey" or
// "<optional gravy>", is written back verbatim.
func stripHTML(s string) string {
	if !strings.ContainsRune(s, '<') && !strings.ContainsRune(s, '&') {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var (
		buf      strings.Builder
		consumed int
		skip     int // depth inside script or style
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// an unterminated tag at the end of input is text too
			if consumed < len(s) && skip == 0 {
				buf.WriteString(html.UnescapeString(s[consumed:]))
			}
			return buf.String()
		}
		raw := string(z.Raw())
		consumed += len(raw)

		switch tt {
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			a, ok := markup(z)
			switch {
			case !ok:
				if skip == 0 {
					buf.WriteString(html.UnescapeString(raw))
				}
			case a == atom.Script || a == atom.Style:
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case blockElements[a]:
				buf.WriteByte(' ')
			}
		}
	}
}

// markup reports whether the current tag token is a known element carrying
// only known attributes.
func markup(z *html.Tokenizer) (atom.Atom, bool) {
	name, more := z.TagName()
	a := atom.Lookup(name)
	if a == 0 {
		return 0, false
	}
	for more {
		var key []byte
		key, _, more = z.TagAttr()
		if atom.Lookup(key) == 0 && !bytes.HasPrefix(key, []byte("data-")) && !bytes.HasPrefix(key, []byte("aria-")) {
			return 0, false
		}
	}
	return a, true
}

// elements whose boundaries separate words in rendered text
var blockElements = map[atom.Atom]bool{
	atom.Br: true, atom.P: true, atom.Div: true, atom.Li: true, atom.Ol: true, atom.Ul: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.Td: true, atom.Tr: true,
}
