package extract

import (
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
)

// articleContent is the outcome of the boilerplate-removal pass.
type articleContent struct {
	title      string
	paragraphs []string
	markdown   string
}

// readabilityPass runs go-readability over the full document and collects the
// article title and its paragraph texts. Paragraphs shorter than the minimum
// are dropped; at most maxRawParagraphs survive. A failed pass returns an
// empty result and the caller falls back to a plain DOM walk.
func readabilityPass(rawHTML string, base *url.URL) articleContent {
	article, err := readability.FromReader(strings.NewReader(rawHTML), base)
	if err != nil || article.Node == nil {
		return articleContent{}
	}

	content := articleContent{
		title:      article.Title(),
		paragraphs: articleParagraphs(article.Node),
	}

	// Markdown keeps headings, code blocks, and lists for full-mode output.
	if md, mdErr := htmltomarkdown.ConvertNode(article.Node); mdErr == nil {
		content.markdown = strings.TrimSpace(string(md))
	}

	return content
}

func articleParagraphs(node *html.Node) []string {
	var paragraphs []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if len(paragraphs) >= maxRawParagraphs {
			return
		}
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == "p" {
			if text := normalizeWhitespace(nodeText(n)); len(text) > minParagraphLen {
				paragraphs = append(paragraphs, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(node)
	return paragraphs
}
