package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Input is the full description of one extraction request.
type Input struct {
	URL    string
	HTML   string
	Mode   Mode
	Source Source
}

const (
	fetchedAtLayout     = "2006-01-02T15:04:05Z"
	maxLinkTextLen      = 160
	maxRawParagraphs    = 20
	minParagraphLen     = 40
	maxActionCandidates = 150
	maxActionsPerPage   = 80
	compactHeadingsCap  = 12
	fullHeadingsCap     = 40
	compactLinksCap     = 25
	fullLinksCap        = 80
	compactParagraphs   = 10
	fullParagraphs      = 35
)

var whitespaceRuns = regexp.MustCompile(`\s+`)

// nowFunc is swapped in tests to pin page ids.
var nowFunc = time.Now

// PageFromHTML parses HTML into a structured Page. It is a pure function of
// its input apart from the fetchedAt timestamp.
func PageFromHTML(input Input) (*Page, error) {
	if strings.TrimSpace(input.URL) == "" {
		return nil, errors.New("url is required")
	}
	mode := input.Mode
	if mode == "" {
		mode = ModeCompact
	}
	source := input.Source
	if source == "" {
		source = SourceStatic
	}

	base, err := url.Parse(input.URL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(input.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	headingsCap, linksCap, paragraphsCap := compactHeadingsCap, compactLinksCap, compactParagraphs
	if mode == ModeFull {
		headingsCap, linksCap, paragraphsCap = fullHeadingsCap, fullLinksCap, fullParagraphs
	}

	walk := walkDocument(doc, base)

	article := readabilityPass(input.HTML, base)
	paragraphs := article.paragraphs
	if len(paragraphs) == 0 {
		paragraphs = collectParagraphs(doc)
	}
	if len(paragraphs) > paragraphsCap {
		paragraphs = paragraphs[:paragraphsCap]
	}

	title := article.title
	if title == "" {
		title = walk.docTitle
	}
	title = normalizeWhitespace(title)

	headings := walk.headings
	if len(headings) > headingsCap {
		headings = headings[:headingsCap]
	}
	links := walk.links
	if len(links) > linksCap {
		links = links[:linksCap]
	}

	contentHash := hash16(title + "\n" + strings.Join(paragraphs, "\n"))
	fetchedAt := nowFunc().UTC().Format(fetchedAtLayout)

	page := &Page{
		ID:               hash16(input.URL + ":" + contentHash + ":" + fetchedAt),
		URL:              input.URL,
		CanonicalURL:     walk.canonicalURL,
		Title:            title,
		FetchedAt:        fetchedAt,
		ContentHash:      contentHash,
		ExtractorVersion: Version,
		Mode:             mode,
		Source:           source,
		Headings:         headings,
		KeyParagraphs:    paragraphs,
		Links:            links,
		Forms:            walk.forms,
		Actions:          synthesizeActions(walk.candidates, base),
	}
	if mode == ModeFull {
		page.Markdown = article.markdown
	}

	if page.Headings == nil {
		page.Headings = []string{}
	}
	if page.KeyParagraphs == nil {
		page.KeyParagraphs = []string{}
	}
	if page.Links == nil {
		page.Links = []Link{}
	}
	if page.Forms == nil {
		page.Forms = []Form{}
	}

	return page, nil
}

// documentWalk carries everything gathered in one pass over the DOM.
type documentWalk struct {
	canonicalURL string
	docTitle     string
	headings     []string
	links        []Link
	forms        []Form
	candidates   []actionCandidate
}

func walkDocument(doc *html.Node, base *url.URL) *documentWalk {
	walk := &documentWalk{}
	tagOrdinals := make(map[string]int)
	formIndex := 0

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			tagOrdinals[tag]++
			ordinal := tagOrdinals[tag]

			switch tag {
			case "link":
				if walk.canonicalURL == "" && strings.EqualFold(attrValue(n, "rel"), "canonical") {
					if resolved, ok := resolveHref(base, attrValue(n, "href")); ok {
						walk.canonicalURL = resolved
					}
				}
			case "title":
				if walk.docTitle == "" {
					walk.docTitle = normalizeWhitespace(nodeText(n))
				}
			case "h1", "h2", "h3":
				if text := normalizeWhitespace(nodeText(n)); text != "" {
					walk.headings = append(walk.headings, text)
				}
			case "a":
				if link, ok := buildLink(n, base); ok {
					walk.links = append(walk.links, link)
				}
			case "form":
				formIndex++
				walk.forms = append(walk.forms, buildForm(n, base, formIndex))
			}

			if isActionCandidate(tag, n) && len(walk.candidates) < maxActionCandidates {
				walk.candidates = append(walk.candidates, actionCandidate{
					tag:     tag,
					node:    n,
					ordinal: ordinal,
				})
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(doc)

	return walk
}

func buildLink(n *html.Node, base *url.URL) (Link, bool) {
	href := attrValue(n, "href")
	if href == "" {
		return Link{}, false
	}
	resolved, ok := resolveHref(base, href)
	if !ok {
		return Link{}, false
	}
	text := normalizeWhitespace(nodeText(n))
	if text == "" {
		return Link{}, false
	}
	text = truncateOnRune(text, maxLinkTextLen)
	resolvedURL, err := url.Parse(resolved)
	if err != nil {
		return Link{}, false
	}
	return Link{
		URL:        resolved,
		Text:       text,
		Rel:        attrValue(n, "rel"),
		IsInternal: strings.EqualFold(resolvedURL.Host, base.Host),
	}, true
}

// truncateOnRune caps s at max bytes without splitting a multi-byte rune.
func truncateOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func buildForm(n *html.Node, base *url.URL, index int) Form {
	form := Form{
		ID:     attrValue(n, "id"),
		Method: strings.ToLower(attrValue(n, "method")),
		Fields: []FormField{},
	}
	if form.ID == "" {
		form.ID = fmt.Sprintf("form_%d", index)
	}
	if form.Method == "" {
		form.Method = "get"
	}
	if action := attrValue(n, "action"); action != "" {
		if resolved, ok := resolveHref(base, action); ok {
			form.Action = resolved
		}
	}

	labels := collectLabels(n)

	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch strings.ToLower(node.Data) {
			case "input", "textarea", "select":
				form.Fields = append(form.Fields, buildFormField(node, labels))
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		visit(child)
	}
	return form
}

func buildFormField(n *html.Node, labels map[string]string) FormField {
	tag := strings.ToLower(n.Data)
	fieldType := tag
	if tag == "input" {
		fieldType = strings.ToLower(attrValue(n, "type"))
		if fieldType == "" {
			fieldType = "text"
		}
	}

	label := attrValue(n, "aria-label")
	if label == "" {
		if id := attrValue(n, "id"); id != "" {
			label = labels[id]
		}
	}

	return FormField{
		Name:        attrValue(n, "name"),
		Type:        fieldType,
		Required:    hasAttr(n, "required"),
		Placeholder: attrValue(n, "placeholder"),
		Label:       label,
	}
}

// collectLabels maps label[for] targets to their text within a form subtree.
func collectLabels(form *html.Node) map[string]string {
	labels := make(map[string]string)
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == "label" {
			if target := attrValue(n, "for"); target != "" {
				if text := normalizeWhitespace(nodeText(n)); text != "" {
					labels[target] = text
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(form)
	return labels
}

func collectParagraphs(doc *html.Node) []string {
	var paragraphs []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if len(paragraphs) >= maxRawParagraphs {
			return
		}
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "script", "style", "noscript", "template":
				return
			case "p":
				if text := normalizeWhitespace(nodeText(n)); len(text) > minParagraphLen {
					paragraphs = append(paragraphs, text)
				}
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(doc)
	return paragraphs
}

func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return "", false
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(resolved.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(n)
	return b.String()
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return true
		}
	}
	return false
}

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRuns.ReplaceAllString(s, " "))
}
