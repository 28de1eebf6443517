package httpapi

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var removedTags = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true, "embed": true,
	"link": true, "meta": true, "base": true, "form": true, "foreignobject": true,
}

// SanitizeChart strips active content from chart markup before it is sent
// to a browser: scripts, frames, event handler attributes and any URL that
// is not an inline image.
func SanitizeChart(fragment string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, n := range nodes {
		if !cleanNode(n) {
			continue
		}
		if err := html.Render(&sb, n); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// cleanNode filters n in place and reports whether it should be kept.
func cleanNode(n *html.Node) bool {
	switch n.Type {
	case html.CommentNode:
		return false
	case html.ElementNode:
		if removedTags[strings.ToLower(n.Data)] {
			return false
		}
		n.Attr = filterAttributes(n.Attr)
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if !cleanNode(c) {
			n.RemoveChild(c)
		}
		c = next
	}
	return true
}

func filterAttributes(attrs []html.Attribute) []html.Attribute {
	var kept []html.Attribute
	for _, attr := range attrs {
		key := strings.ToLower(attr.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if isURLAttr(key) && !isInlineImage(attr.Val) {
			continue
		}
		kept = append(kept, attr)
	}
	return kept
}

func isURLAttr(key string) bool {
	return key == "src" || key == "href" || key == "xlink:href" || key == "action" || key == "formaction"
}

func isInlineImage(url string) bool {
	u := strings.ToLower(strings.TrimSpace(url))
	return strings.HasPrefix(u, "data:image/png;") ||
		strings.HasPrefix(u, "data:image/svg+xml;") ||
		strings.HasPrefix(u, "#")
}
