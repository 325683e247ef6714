package presenter

import "github.com/charmbracelet/lipgloss"

// Known event categories with a fixed color.
const (
	CategoryFlowStarted        = "flowStarted"
	CategoryStepStarted        = "stepStarted"
	CategoryStepCompleted      = "stepCompleted"
	CategoryFlowCompleted      = "flowCompleted"
	CategoryPermissionRequired = "permissionRequired"
	CategoryError              = "error"
)

// DefaultColor is used for any category not in the palette.
var DefaultColor = lipgloss.Color("245") // gray

// Palette maps event categories to display colors.
type Palette struct {
	colors   map[string]lipgloss.Color
	fallback lipgloss.Color
}

// DefaultPalette returns the built-in category colors.
func DefaultPalette() Palette {
	return Palette{
		colors: map[string]lipgloss.Color{
			CategoryFlowStarted:        lipgloss.Color("33"),  // blue
			CategoryStepStarted:        lipgloss.Color("63"),  // indigo
			CategoryStepCompleted:      lipgloss.Color("42"),  // green
			CategoryFlowCompleted:      lipgloss.Color("37"),  // teal
			CategoryPermissionRequired: lipgloss.Color("214"), // orange
			CategoryError:              lipgloss.Color("196"), // red
		},
		fallback: DefaultColor,
	}
}

// With returns a copy of p with the given overrides applied.
func (p Palette) With(overrides map[string]string) Palette {
	colors := make(map[string]lipgloss.Color, len(p.colors)+len(overrides))
	for k, v := range p.colors {
		colors[k] = v
	}
	for k, v := range overrides {
		colors[k] = lipgloss.Color(v)
	}
	return Palette{colors: colors, fallback: p.fallback}
}

// Color returns the color for category.
func (p Palette) Color(category string) lipgloss.Color {
	if c, ok := p.colors[category]; ok {
		return c
	}
	return p.fallback
}
