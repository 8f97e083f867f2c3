package component

// StyleMode controls whether global styles are combined with a
// component's own style.
type StyleMode string

const (
	StyleGlobal StyleMode = "global"
	StyleScoped StyleMode = "scoped"
)

// Config describes a component type.
type Config struct {
	Selector  string    `yaml:"selector" json:"selector"`
	Template  string    `yaml:"template" json:"template"`
	Style     string    `yaml:"style" json:"style"`
	StyleMode StyleMode `yaml:"styleMode" json:"styleMode"`
	// Inputs are property names settable through kebab-case attributes.
	Inputs []string `yaml:"inputs" json:"inputs"`
	// Outputs are event names the component emits.
	Outputs []string `yaml:"outputs" json:"outputs"`
	// State holds initial property values.
	State map[string]any `yaml:"state" json:"state"`
}

// ObservedAttributes returns the attribute names of the declared inputs.
func (c Config) ObservedAttributes() []string {
	out := make([]string, len(c.Inputs))
	for i, in := range c.Inputs {
		out[i] = ToKebabCase(in)
	}
	return out
}

func (c Config) hasInput(name string) bool {
	for _, in := range c.Inputs {
		if in == name {
			return true
		}
	}
	return false
}
