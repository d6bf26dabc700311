package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// skipped subtrees carry no layout signal: script bodies change every
// deploy and seat-map SVG paths change per venue.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"template": true,
}

// void elements never get an end tag.
var void = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// FingerprintDOM fingerprints the element structure of a document: tag
// names plus their first class, in order, as 3-token shingles. Text and
// other attributes are ignored.
func FingerprintDOM(markup string) uint64 {
	tags := structureTokens(markup)
	if len(tags) == 0 {
		return 0
	}
	if shingles := makeShingles(tags, 3); len(shingles) > 0 {
		return FingerprintTokens(shingles)
	}
	return FingerprintTokens(tags)
}

func structureTokens(markup string) []string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var tokens []string
	depthSkipped := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tokens
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			if depthSkipped > 0 {
				if !void[tag] {
					depthSkipped++
				}
				continue
			}
			if skipped[tag] {
				depthSkipped = 1
				tokens = append(tokens, tag)
				continue
			}
			tokens = append(tokens, withClass(z, tag, hasAttr))
		case html.SelfClosingTagToken:
			if depthSkipped > 0 {
				continue
			}
			name, hasAttr := z.TagName()
			tokens = append(tokens, withClass(z, string(name), hasAttr))
		case html.EndTagToken:
			if depthSkipped > 0 {
				depthSkipped--
			}
		}
	}
}

func withClass(z *html.Tokenizer, tag string, hasAttr bool) string {
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) == "class" {
			if fields := strings.Fields(string(val)); len(fields) > 0 {
				return tag + "." + fields[0]
			}
		}
	}
	return tag
}

func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], "_"))
	}
	return shingles
}
