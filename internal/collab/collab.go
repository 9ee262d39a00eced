// Package collab defines the answering-service capability consumed by the
// turn dispatcher and the adapters that bring differently shaped backends
// to it. An adapter is chosen once when the session starts; nothing here
// probes shapes per call.
package collab

import (
	"context"
	"fmt"

	"github.com/kalambet/secureguard/internal/similarity"
)

// Result is a typed answer. Diagnostics are the retrieval records the
// answer was grounded on, if the backend reports them.
type Result struct {
	Text        string              `json:"answer"`
	Diagnostics []similarity.Record `json:"diagnostics,omitempty"`
}

// Collaborator answers one query.
type Collaborator interface {
	Answer(ctx context.Context, query string) (Result, error)
}

// QueryKey is the input key used by mapping-style backends.
const QueryKey = "query"

// Func adapts a directly callable backend returning an arbitrary value.
type Func func(ctx context.Context, query string) (any, error)

func (f Func) Answer(ctx context.Context, query string) (Result, error) {
	v, err := f(ctx, query)
	if err != nil {
		return Result{}, err
	}
	if r, ok := v.(Result); ok {
		return r, nil
	}
	return Result{Text: Normalize(v)}, nil
}

// Invoker is a backend with an invoke-style entry point taking {query}.
type Invoker interface {
	Invoke(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Invoke adapts an Invoker.
func Invoke(inv Invoker) Collaborator {
	return invokeAdapter{inv: inv}
}

type invokeAdapter struct {
	inv Invoker
}

func (a invokeAdapter) Answer(ctx context.Context, query string) (Result, error) {
	out, err := a.inv.Invoke(ctx, map[string]any{QueryKey: query})
	if err != nil {
		return Result{}, err
	}
	return Result{Text: Normalize(out)}, nil
}

// Mapping adapts a plain call taking {query} and returning a mapping.
type Mapping func(ctx context.Context, input map[string]any) (map[string]any, error)

func (m Mapping) Answer(ctx context.Context, query string) (Result, error) {
	out, err := m(ctx, map[string]any{QueryKey: query})
	if err != nil {
		return Result{}, err
	}
	return Result{Text: Normalize(out)}, nil
}

// Normalize turns a backend value into answer text. Mappings yield their
// "result" entry, else their "answer" entry, else their formatted self.
// Everything else is formatted with fmt.Sprint.
func Normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case Result:
		return t.Text
	case map[string]any:
		if r, ok := t["result"]; ok {
			return Normalize(r)
		}
		if a, ok := t["answer"]; ok {
			return Normalize(a)
		}
		return fmt.Sprint(t)
	case map[string]string:
		if r, ok := t["result"]; ok {
			return r
		}
		if a, ok := t["answer"]; ok {
			return a
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(v)
	}
}
