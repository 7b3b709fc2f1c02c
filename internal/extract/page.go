// Package extract turns raw HTML into structured, stable-identified pages
// that downstream agents can consume without re-parsing markup.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
)

// Version identifies the extraction algorithm; bump when output shape or
// identifier derivation changes.
const Version = "v1"

// Mode selects extraction caps. Compact minimizes downstream token cost.
type Mode string

const (
	ModeCompact Mode = "compact"
	ModeFull    Mode = "full"
)

// Source records how the HTML was obtained.
type Source string

const (
	SourceStatic     Source = "static"
	SourcePlaywright Source = "playwright"
)

// Page is a structured snapshot of a URL at a point in time.
type Page struct {
	ID               string   `json:"id"`
	URL              string   `json:"url"`
	CanonicalURL     string   `json:"canonicalUrl,omitempty"`
	Title            string   `json:"title"`
	FetchedAt        string   `json:"fetchedAt"`
	ContentHash      string   `json:"contentHash,omitempty"`
	ExtractorVersion string   `json:"extractorVersion"`
	Mode             Mode     `json:"mode"`
	Source           Source   `json:"source"`
	Headings         []string `json:"headings"`
	KeyParagraphs    []string `json:"keyParagraphs"`
	Links            []Link   `json:"links"`
	Forms            []Form   `json:"forms"`
	Actions          []Action `json:"actions"`
	Markdown         string   `json:"markdown,omitempty"`
}

// Link is an anchor discovered on a page, unique per (page, url).
type Link struct {
	URL        string `json:"url"`
	Text       string `json:"text"`
	Rel        string `json:"rel,omitempty"`
	IsInternal bool   `json:"isInternal"`
}

// Form describes a <form> element and its inputs.
type Form struct {
	ID     string      `json:"id"`
	Action string      `json:"action,omitempty"`
	Method string      `json:"method"`
	Fields []FormField `json:"fields"`
}

// FormField describes one input, textarea, or select inside a form.
type FormField struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder,omitempty"`
	Label       string `json:"label,omitempty"`
}

// Action is a machine-executable handle synthesized from the page's HTML.
// IDs are deterministic: re-extracting identical HTML yields identical ids.
type Action struct {
	ID       string       `json:"id"`
	Type     ActionType   `json:"type"`
	Label    string       `json:"label"`
	Selector string       `json:"selector"`
	Params   ParamsSchema `json:"params"`
}

// ActionType enumerates the executable action kinds.
type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionFill     ActionType = "fill"
	ActionSelect   ActionType = "select"
	ActionSubmit   ActionType = "submit"
	ActionNavigate ActionType = "navigate"
)

// ParamsSchema is the JSON-schema-shaped parameter description of an action.
// It is always an object schema, possibly with no properties.
type ParamsSchema struct {
	Type       string               `json:"type"`
	Properties map[string]ParamSpec `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// ParamSpec describes a single action parameter.
type ParamSpec struct {
	Type string `json:"type"`
}

func emptyParams() ParamsSchema {
	return ParamsSchema{Type: "object", Properties: map[string]ParamSpec{}}
}

func valueParams(required bool) ParamsSchema {
	schema := ParamsSchema{
		Type:       "object",
		Properties: map[string]ParamSpec{"value": {Type: "string"}},
	}
	if required {
		schema.Required = []string{"value"}
	}
	return schema
}

// hash16 returns the first 16 hex chars of the sha-256 of s. It is the shared
// derivation for page ids, content hashes, and action ids.
func hash16(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
