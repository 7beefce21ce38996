// Package browser exposes a shared persistent browser session to agents as
// tools: screenshots, element discovery and page interaction. The live
// browser is a session resource of kind "browser"; one instance is created
// lazily per run and every browser tool declares the matching resource side
// effect so calls against it are never dispatched concurrently.
package browser

import (
	"context"
	"fmt"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/resource"
)

// Kind is the resource kind under which the browser session is registered.
const Kind = "browser"

// Element describes one interactive element discovered on a page, with the
// candidate selectors a test could target it by.
type Element struct {
	Tag       string
	Text      string
	Selectors map[string]string
}

// Action is one step of a page interaction sequence.
type Action struct {
	Type     string // click, fill, scroll, hover, press_key, select_option
	Selector string // CSS selector, or XPath when By is "xpath"
	By       string // css (default), xpath, id, name, text
	Text     string // Text to fill (fill) or match (text selectors)
	Key      string // Key to press (press_key)
	Value    string // Option value (select_option)
}

// Browser is the backend driving a real browser session. Implementations
// wrap a WebDriver or DevTools connection; the session persists cookies and
// storage across calls within a run. Close tears the session down and is
// invoked by the resource manager at run end.
type Browser interface {
	// Navigate loads the given URL, waiting for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Screenshot captures the current page as PNG bytes.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	// DiscoverElements inspects the current page and returns interactive
	// elements of the requested types (empty means a default set).
	DiscoverElements(ctx context.Context, elementTypes []string) ([]Element, error)

	// Interact executes actions in order and returns one outcome line per
	// action. It stops at the first failing action.
	Interact(ctx context.Context, actions []Action) ([]string, error)

	Close() error
}

// Factory adapts a browser opener into a resource factory for Kind.
func Factory(open func(ctx context.Context) (Browser, error)) resource.Factory {
	return func(ctx context.Context) (core.Handle, error) {
		return open(ctx)
	}
}

// acquire fetches the run's browser session from the resource manager.
func acquire(tc *core.ToolContext) (Browser, error) {
	h, err := tc.AcquireResource(Kind)
	if err != nil {
		return nil, err
	}
	b, ok := h.(Browser)
	if !ok {
		return nil, fmt.Errorf("resource %q is %T, not a browser backend", Kind, h)
	}
	return b, nil
}
