package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/solatis/envboot/internal/types"
)

var componentName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Selector resolves a visibility target to a CSS selector. Explicit
// entries win; otherwise "settings.<component>" and "menu.<action>" map to
// the host's data attributes.
func Selector(target types.VisibilityTarget, explicit map[string]string) (string, error) {
	name := strings.TrimSpace(string(target))
	if sel, ok := explicit[name]; ok && sel != "" {
		return sel, nil
	}

	group, item, ok := strings.Cut(name, ".")
	if !ok || !componentName.MatchString(item) {
		return "", fmt.Errorf("%w: %q", types.ErrUnknownTarget, target)
	}
	switch group {
	case "settings":
		return fmt.Sprintf(`div[data-component="%s"]`, item), nil
	case "menu":
		return fmt.Sprintf(`[data-action="%s"]`, item), nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrUnknownTarget, target)
	}
}
