package richtext

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Personalizer substitutes Liquid variables ({{ first_name }}, {{ email }})
// into subjects and rendered HTML. Missing variables render empty, so a
// sparse subscriber record never blocks a send.
type Personalizer struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

// NewPersonalizer creates a Personalizer with the standard filters.
func NewPersonalizer() *Personalizer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "Friend" }}
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

	// {{ name | capitalize }}
	engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	return &Personalizer{engine: engine}
}

// Apply renders the Liquid template source against vars. Templates
// without Liquid syntax pass through untouched without parsing.
func (p *Personalizer) Apply(source string, vars map[string]interface{}) (string, error) {
	if !strings.Contains(source, "{{") && !strings.Contains(source, "{%") {
		return source, nil
	}

	var tpl *liquid.Template
	if cached, ok := p.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := p.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parsing template: %w", err)
		}
		p.cache.Store(source, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out, nil
}
