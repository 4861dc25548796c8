package extract

import (
	"bytes"
	"encoding/base64"
	"strings"

	"golang.org/x/net/html"
)

// Block-level elements that imply a paragraph break in the extracted text.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "blockquote": true, "pre": true, "br": true,
}

func (e *Extractor) extractHTML(data []byte) (*Content, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		// Malformed HTML degrades to plain-text handling
		return e.extractPlainText(data)
	}

	var sb strings.Builder
	var images []ImageCandidate

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			case "img":
				if img, ok := inlineImage(n); ok {
					images = append(images, img)
				}
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteString("\n\n")
		}
	}
	walk(doc)

	text := sanitize(collapseBlankLines(sb.String()))
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}
	return &Content{Text: text, Images: images}, nil
}

// inlineImage extracts an image embedded as a data: URI, with its alt or
// title text as caption. External image references are skipped.
func inlineImage(n *html.Node) (ImageCandidate, bool) {
	var src, caption string
	for _, attr := range n.Attr {
		switch attr.Key {
		case "src":
			src = attr.Val
		case "alt":
			if caption == "" {
				caption = strings.TrimSpace(attr.Val)
			}
		case "title":
			if caption == "" {
				caption = strings.TrimSpace(attr.Val)
			}
		}
	}

	const prefix = "data:"
	if !strings.HasPrefix(src, prefix) {
		return ImageCandidate{}, false
	}
	idx := strings.Index(src, "base64,")
	if idx < 0 {
		return ImageCandidate{}, false
	}
	payload, err := base64.StdEncoding.DecodeString(src[idx+len("base64,"):])
	if err != nil || len(payload) == 0 {
		return ImageCandidate{}, false
	}
	return ImageCandidate{Data: payload, Caption: caption}, true
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
