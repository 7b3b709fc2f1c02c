package extract

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// actionCandidate is an interactive element found during the document walk.
// ordinal is the element's 1-based position among same-tag elements and feeds
// the nth-of-type selector fallback.
type actionCandidate struct {
	tag     string
	node    *html.Node
	ordinal int
}

func isActionCandidate(tag string, n *html.Node) bool {
	switch tag {
	case "a":
		return attrValue(n, "href") != ""
	case "button", "form", "input", "textarea", "select":
		return true
	}
	return false
}

// synthesizeActions turns candidates into executable actions with
// deterministic ids. Two extractions of identical HTML produce identical
// action id sets and order.
func synthesizeActions(candidates []actionCandidate, base *url.URL) []Action {
	actions := make([]Action, 0, len(candidates))
	seen := make(map[string]bool)

	for _, candidate := range candidates {
		if len(actions) >= maxActionsPerPage {
			break
		}
		selector := computeSelector(candidate)
		if selector == "" {
			continue
		}
		action, ok := buildAction(candidate, selector, base)
		if !ok || seen[action.ID] {
			continue
		}
		seen[action.ID] = true
		actions = append(actions, action)
	}
	return actions
}

func buildAction(candidate actionCandidate, selector string, base *url.URL) (Action, bool) {
	n := candidate.node
	switch candidate.tag {
	case "a":
		href, ok := resolveHref(base, attrValue(n, "href"))
		if !ok {
			return Action{}, false
		}
		label := normalizeWhitespace(nodeText(n))
		if label == "" {
			label = href
		}
		return Action{
			ID:       hash16("nav:" + selector + ":" + href),
			Type:     ActionNavigate,
			Label:    label,
			Selector: selector,
			Params:   emptyParams(),
		}, true

	case "form", "button":
		label := normalizeWhitespace(nodeText(n))
		if label == "" {
			label = "Submit"
		}
		return Action{
			ID:       hash16("submit:" + selector),
			Type:     ActionSubmit,
			Label:    label,
			Selector: selector,
			Params:   emptyParams(),
		}, true

	case "select":
		return Action{
			ID:       hash16("select:" + selector),
			Type:     ActionSelect,
			Label:    fieldLabel(n),
			Selector: selector,
			Params:   valueParams(hasAttr(n, "required")),
		}, true

	case "input":
		if strings.EqualFold(attrValue(n, "type"), "submit") {
			label := normalizeWhitespace(attrValue(n, "value"))
			if label == "" {
				label = "Submit"
			}
			return Action{
				ID:       hash16("submit:" + selector),
				Type:     ActionSubmit,
				Label:    label,
				Selector: selector,
				Params:   emptyParams(),
			}, true
		}
		fallthrough

	case "textarea":
		return Action{
			ID:       hash16("fill:" + selector),
			Type:     ActionFill,
			Label:    fieldLabel(n),
			Selector: selector,
			Params:   valueParams(hasAttr(n, "required")),
		}, true
	}
	return Action{}, false
}

// fieldLabel picks a human label for fill/select targets.
func fieldLabel(n *html.Node) string {
	for _, key := range []string{"aria-label", "name", "placeholder"} {
		if value := normalizeWhitespace(attrValue(n, key)); value != "" {
			return value
		}
	}
	return strings.ToLower(n.Data)
}

// computeSelector derives a strict CSS selector for a node. Priority: id,
// name attribute, aria-label, first two classes, nth-of-type fallback.
func computeSelector(candidate actionCandidate) string {
	n := candidate.node
	tag := candidate.tag

	if id := attrValue(n, "id"); id != "" {
		return "#" + escapeIdentifier(id)
	}
	if name := attrValue(n, "name"); name != "" {
		return fmt.Sprintf(`%s[name="%s"]`, tag, escapeAttrValue(name))
	}
	if ariaLabel := attrValue(n, "aria-label"); ariaLabel != "" {
		return fmt.Sprintf(`%s[aria-label="%s"]`, tag, escapeAttrValue(ariaLabel))
	}
	if classes := strings.Fields(attrValue(n, "class")); len(classes) > 0 {
		if len(classes) > 2 {
			classes = classes[:2]
		}
		var b strings.Builder
		b.WriteString(tag)
		for _, class := range classes {
			b.WriteByte('.')
			b.WriteString(escapeIdentifier(class))
		}
		return b.String()
	}

	ordinal := candidate.ordinal
	if ordinal < 1 {
		ordinal = 1
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, ordinal)
}

// escapeIdentifier backslash-escapes characters outside [A-Za-z0-9_-] so the
// selector stays parseable by a CSS engine.
func escapeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeAttrValue(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
