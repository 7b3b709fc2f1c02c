// Package session manages named, persistent browser sessions. Each session
// owns a tab in a shared headless Chromium instance plus a cookie file on
// disk, so logins survive process restarts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"webx/internal/extract"
	"webx/internal/store"
	"webx/pkg/logging"
)

const (
	navigateTimeout = 30 * time.Second
	actionTimeout   = 10 * time.Second
	stableDuration  = 500 * time.Millisecond
)

var (
	ErrNoActivePage = errors.New("session has no open page")
	ErrActionGone   = errors.New("action not present on current page")
)

// ExecuteResult reports the outcome of one browser action.
type ExecuteResult struct {
	OK       bool   `json:"ok"`
	ActionID string `json:"actionId"`
	URL      string `json:"url"`
}

// Manager owns the browser process and the per-session tabs. The browser is
// launched lazily on first use so the service runs fine on hosts without
// Chromium until a session operation arrives.
type Manager struct {
	store   *store.Store
	logger  logging.Logger
	dir     string
	headed  bool
	binPath string

	mu      sync.Mutex
	browser *rod.Browser
	pages   map[string]*rod.Page
}

func NewManager(s *store.Store, dir string, headed bool, binPath string, logger logging.Logger) *Manager {
	return &Manager{
		store:   s,
		logger:  logger,
		dir:     dir,
		headed:  headed,
		binPath: binPath,
		pages:   make(map[string]*rod.Page),
	}
}

// Close shuts down all tabs and the browser process.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, page := range m.pages {
		_ = page.Close()
		delete(m.pages, name)
	}
	if m.browser != nil {
		_ = m.browser.Close()
		m.browser = nil
	}
}

// CreateSession registers a named session and its storage-state location.
// Creating an existing session refreshes it.
func (m *Manager) CreateSession(ctx context.Context, name, notes string) (*store.SessionInfo, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}

	session := &store.SessionInfo{
		Name:             name,
		StorageStatePath: filepath.Join(m.dir, name+".json"),
		Notes:            notes,
		Headed:           m.headed,
	}
	if err := m.store.UpsertSession(ctx, session); err != nil {
		return nil, err
	}
	return m.store.GetSession(ctx, name)
}

// OpenInSession navigates the session's tab to a URL and extracts the
// rendered DOM.
func (m *Manager) OpenInSession(ctx context.Context, name, rawURL string, mode extract.Mode) (*extract.Page, error) {
	session, err := m.store.GetSession(ctx, name)
	if err != nil {
		return nil, err
	}

	page, err := m.pageFor(session)
	if err != nil {
		return nil, err
	}
	if err := page.Context(ctx).Timeout(navigateTimeout).Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	_ = page.WaitStable(stableDuration)

	return m.extractCurrent(page, mode)
}

// ListActions re-extracts the session's current page and returns its
// executable actions.
func (m *Manager) ListActions(ctx context.Context, name string) ([]extract.Action, error) {
	if _, err := m.store.GetSession(ctx, name); err != nil {
		return nil, err
	}
	page, ok := m.currentPage(name)
	if !ok {
		return nil, ErrNoActivePage
	}
	extracted, err := m.extractCurrent(page, extract.ModeCompact)
	if err != nil {
		return nil, err
	}
	return extracted.Actions, nil
}

// ExecuteAction runs one action by id on the session's current page and
// appends the outcome to the action log.
func (m *Manager) ExecuteAction(ctx context.Context, name, actionID string, params map[string]string) (*ExecuteResult, error) {
	if _, err := m.store.GetSession(ctx, name); err != nil {
		return nil, err
	}
	page, ok := m.currentPage(name)
	if !ok {
		return nil, ErrNoActivePage
	}

	extracted, err := m.extractCurrent(page, extract.ModeCompact)
	if err != nil {
		return nil, err
	}
	action, found := findAction(extracted.Actions, actionID)
	if !found {
		return nil, ErrActionGone
	}

	if err := m.dispatch(page, action, params); err != nil {
		m.logAction(ctx, name, extracted.URL, action, &ExecuteResult{OK: false, ActionID: actionID})
		return nil, fmt.Errorf("execute %s action: %w", action.Type, err)
	}
	_ = page.WaitStable(stableDuration)

	result := &ExecuteResult{OK: true, ActionID: actionID, URL: pageURL(page)}
	m.logAction(ctx, name, extracted.URL, action, result)
	return result, nil
}

// SaveSession persists the browser's cookies to the session's storage-state
// file.
func (m *Manager) SaveSession(ctx context.Context, name string) (*store.SessionInfo, error) {
	session, err := m.store.GetSession(ctx, name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()
	if browser != nil {
		cookies, err := browser.GetCookies()
		if err != nil {
			return nil, fmt.Errorf("read cookies: %w", err)
		}
		data, err := json.MarshalIndent(cookies, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal cookies: %w", err)
		}
		if err := os.WriteFile(session.StorageStatePath, data, 0o600); err != nil {
			return nil, fmt.Errorf("write storage state: %w", err)
		}
	}

	if err := m.store.TouchSession(ctx, name); err != nil {
		return nil, err
	}
	return m.store.GetSession(ctx, name)
}

func (m *Manager) dispatch(page *rod.Page, action extract.Action, params map[string]string) error {
	element, err := page.Timeout(actionTimeout).Element(action.Selector)
	if err != nil {
		return fmt.Errorf("locate %q: %w", action.Selector, err)
	}

	switch action.Type {
	case extract.ActionFill:
		if err := element.SelectAllText(); err != nil {
			return err
		}
		return element.Input(params["value"])
	case extract.ActionSelect:
		return element.Select([]string{params["value"]}, true, rod.SelectorTypeText)
	case extract.ActionSubmit:
		// Forms submit directly; buttons and submit inputs click.
		_, err := element.Eval(`() => {
			const f = this.tagName === 'FORM' ? this : this.closest('form');
			if (this.tagName === 'FORM' && f) { f.submit(); } else { this.click(); }
		}`)
		return err
	case extract.ActionClick, extract.ActionNavigate:
		return element.Click(proto.InputMouseButtonLeft, 1)
	}
	return fmt.Errorf("unsupported action type %q", action.Type)
}

// pageFor returns the session's tab, creating it and restoring saved cookies
// on first use.
func (m *Manager) pageFor(session *store.SessionInfo) (*rod.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if page, ok := m.pages[session.Name]; ok {
		return page, nil
	}

	browser, err := m.ensureBrowserLocked()
	if err != nil {
		return nil, err
	}
	if err := m.restoreCookiesLocked(browser, session.StorageStatePath); err != nil {
		m.logger.WithError(err).WithField("session", session.Name).Warn("Cookie restore failed")
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	m.pages[session.Name] = page
	return page, nil
}

func (m *Manager) currentPage(name string) (*rod.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.pages[name]
	return page, ok
}

func (m *Manager) ensureBrowserLocked() (*rod.Browser, error) {
	if m.browser != nil {
		return m.browser, nil
	}

	l := launcher.New().
		Headless(!m.headed).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	if m.binPath != "" {
		l = l.Bin(m.binPath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	m.browser = browser
	m.logger.WithField("headed", m.headed).Info("Browser launched")
	return browser, nil
}

func (m *Manager) restoreCookiesLocked(browser *rod.Browser, statePath string) error {
	data, err := os.ReadFile(statePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read storage state: %w", err)
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("unmarshal storage state: %w", err)
	}
	if len(cookies) == 0 {
		return nil
	}
	return browser.SetCookies(proto.CookiesToParams(cookies))
}

func (m *Manager) extractCurrent(page *rod.Page, mode extract.Mode) (*extract.Page, error) {
	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read dom: %w", err)
	}
	return extract.PageFromHTML(extract.Input{
		URL:    pageURL(page),
		HTML:   html,
		Mode:   mode,
		Source: extract.SourcePlaywright,
	})
}

func (m *Manager) logAction(ctx context.Context, name, url string, action extract.Action, result *ExecuteResult) {
	actionJSON, err := json.Marshal(action)
	if err != nil {
		return
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return
	}
	if _, err := m.store.AppendActionLog(ctx, name, url, string(actionJSON), string(resultJSON)); err != nil {
		m.logger.WithError(err).Warn("Failed to append action log")
	}
}

func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func findAction(actions []extract.Action, id string) (extract.Action, bool) {
	for _, action := range actions {
		if action.ID == id {
			return action, true
		}
	}
	return extract.Action{}, false
}

func validateName(name string) error {
	if name == "" {
		return errors.New("session name is required")
	}
	if strings.ContainsAny(name, "/\\. ") {
		return fmt.Errorf("invalid session name %q", name)
	}
	return nil
}
