package loop

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/reachforge/lead-engine/internal/domain"
)

// Renderer renders cadence templates with lead variables using Liquid.
// Parsed templates are cached; the engine is safe for concurrent use.
type Renderer struct {
	engine     *liquid.Engine
	senderName string
	cache      sync.Map // body string -> *liquid.Template
}

// NewRenderer creates a renderer. senderName fills {{ sender_name }}.
func NewRenderer(senderName string) *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &Renderer{engine: engine, senderName: senderName}
}

// Render renders one template for the given state.
func (r *Renderer) Render(tmpl Template, state *domain.EscalationState) (string, error) {
	var parsed *liquid.Template
	if cached, ok := r.cache.Load(tmpl.Body); ok {
		parsed = cached.(*liquid.Template)
	} else {
		var err error
		parsed, err = r.engine.ParseString(tmpl.Body)
		if err != nil {
			return "", fmt.Errorf("parse template %q: %w", tmpl.Name, err)
		}
		r.cache.Store(tmpl.Body, parsed)
	}

	bindings := map[string]interface{}{
		"first_name":  firstName(state.OwnerName),
		"owner_name":  state.OwnerName,
		"address":     state.Address,
		"sender_name": r.senderName,
		"step":        state.CurrentStep + 1,
	}

	out, err := parsed.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("render template %q: %w", tmpl.Name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
