package assistants

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/mcp"
	"github.com/effective-security/mcpchat/pkg/llmutils"
	"github.com/effective-security/mcpchat/registry"
	"github.com/effective-security/xlog"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListCachedResourceURIs returns the sorted URIs of the cached resources.
func (e *Engine) ListCachedResourceURIs() []string {
	e.lock.RLock()
	defer e.lock.RUnlock()
	uris := make([]string, 0, len(e.resources))
	for uri := range e.resources {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// ListCachedPromptNames returns the sorted names of the cached prompts.
func (e *Engine) ListCachedPromptNames() []string {
	e.lock.RLock()
	defer e.lock.RUnlock()
	names := make([]string, 0, len(e.prompts))
	for name := range e.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RefreshResources lists the resources again and replaces the cache.
func (e *Engine) RefreshResources(ctx context.Context) ([]string, error) {
	e.lock.RLock()
	session := e.session
	e.lock.RUnlock()
	if session == nil {
		return nil, errors.WithStack(chatmodel.ErrNotConnected)
	}

	list, err := registry.DiscoverResources(ctx, session)
	if err != nil {
		return nil, err
	}

	e.lock.Lock()
	if e.session == session {
		catalog := *e.catalog
		catalog.Resources = list
		e.catalog = &catalog
		e.resources = resourceSessions(session, &catalog)
	}
	e.lock.Unlock()

	return e.ListCachedResourceURIs(), nil
}

// RefreshPrompts lists the prompts again and replaces the cache.
func (e *Engine) RefreshPrompts(ctx context.Context) ([]string, error) {
	e.lock.RLock()
	session := e.session
	e.lock.RUnlock()
	if session == nil {
		return nil, errors.WithStack(chatmodel.ErrNotConnected)
	}

	list, err := registry.DiscoverPrompts(ctx, session)
	if err != nil {
		return nil, err
	}

	e.lock.Lock()
	if e.session == session {
		catalog := *e.catalog
		catalog.Prompts = list
		e.catalog = &catalog
		e.prompts = promptMap(&catalog)
	}
	e.lock.Unlock()

	return e.ListCachedPromptNames(), nil
}

// GetResource reads a resource by URI. Unknown URIs, read failures and
// empty results are returned as descriptive text, not as errors.
func (e *Engine) GetResource(ctx context.Context, uri string) (string, error) {
	e.lock.RLock()
	connected := e.session != nil
	var session mcp.Session
	var found bool
	if connected {
		var desc chatmodel.ResourceDescriptor
		desc, found = e.catalog.FindResource(uri)
		if found {
			session = e.resources[desc.URI]
		}
	}
	e.lock.RUnlock()

	if !connected {
		return "", errors.WithStack(chatmodel.ErrNotConnected)
	}
	if !found || session == nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "resource_not_found",
			"uri", uri,
			"err", chatmodel.ErrResourceNotFound.Error(),
		)
		return fmt.Sprintf("Resource %s not found.", uri), nil
	}

	res, err := session.ReadResource(ctx, uri)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "resource_read_failed",
			"uri", uri,
			"err", err.Error(),
		)
		return fmt.Sprintf("Failed to read resource %s: %s", uri, err.Error()), nil
	}

	text := ResourceText(res)
	if strings.TrimSpace(text) == "" {
		return fmt.Sprintf("No content available for resource %s.", uri), nil
	}
	return text, nil
}

// ResourceText joins the text contents of a resource.
// Binary contents are summarized.
func ResourceText(res *gomcp.ReadResourceResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Contents {
		if c == nil {
			continue
		}
		if c.Text != "" {
			parts = append(parts, c.Text)
		} else if len(c.Blob) > 0 {
			parts = append(parts, fmt.Sprintf("[binary %s, %d bytes]", c.MIMEType, len(c.Blob)))
		}
	}
	return strings.Join(parts, "\n")
}

// ExecutePrompt renders a prompt on the provider and submits its text
// as a query. Lookup and rendering failures are returned as descriptive text.
func (e *Engine) ExecutePrompt(ctx context.Context, name string, args map[string]any) (string, error) {
	e.turn.Lock()
	defer e.turn.Unlock()

	e.lock.RLock()
	session := e.session
	_, found := e.prompts[name]
	e.lock.RUnlock()

	if session == nil {
		return "", errors.WithStack(chatmodel.ErrNotConnected)
	}
	if !found {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "prompt_not_found",
			"prompt", name,
			"err", chatmodel.ErrPromptNotFound.Error(),
		)
		return fmt.Sprintf("Prompt `%s` not found.", name), nil
	}

	res, err := session.GetPrompt(ctx, name, PromptArguments(args))
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "prompt_failed",
			"prompt", name,
			"err", err.Error(),
		)
		return fmt.Sprintf("Failed to get prompt `%s`: %s", name, err.Error()), nil
	}

	text := PromptText(res)
	if strings.TrimSpace(text) == "" {
		return fmt.Sprintf("Prompt `%s` returned no content.", name), nil
	}
	return e.submitQuery(ctx, text)
}

// PromptText joins the text contents of the prompt messages.
func PromptText(res *gomcp.GetPromptResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, m := range res.Messages {
		if m == nil {
			continue
		}
		if tc, ok := m.Content.(*gomcp.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// PromptArguments coerces the argument values to text.
// Maps, slices and structs are rendered as compact JSON.
func PromptArguments(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = argumentText(v)
	}
	return out
}

func argumentText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return llmutils.ToJSON(v)
	}
	return fmt.Sprint(v)
}
