// internal/rules/action.go
package rules

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/solatis/envboot/internal/types"
)

/*
 * Action descriptors.
 *
 * An Action is a pure value describing one effect; the dispatcher performs
 * it against host capabilities. Every action is idempotent with respect to
 * the host: writing the same preference, hiding the same target, or
 * installing a plugin whose URL is already listed has no further effect.
 *
 * Load actions are the exception the dispatcher guards with appliesOnce:
 * executing a script twice is not idempotent on the host side.
 */

// ActionKind enumerates supported actions.
type ActionKind int

const (
	ActionUnspecified ActionKind = iota
	ActionSetPreference
	ActionLoadResource
	ActionToggleVisibility
	ActionEnableFlag
	ActionInstallPlugin
)

func (k ActionKind) String() string {
	switch k {
	case ActionSetPreference:
		return "set_preference"
	case ActionLoadResource:
		return "load_resource"
	case ActionToggleVisibility:
		return "toggle_visibility"
	case ActionEnableFlag:
		return "enable_flag"
	case ActionInstallPlugin:
		return "install_plugin"
	default:
		return "unspecified"
	}
}

// Action is an effect descriptor. Only the fields of Kind are meaningful.
type Action struct {
	Kind ActionKind

	Key   string // set_preference
	Value string // set_preference

	URLs      []string       // load_resource
	Ordering  types.Ordering // load_resource
	CacheBust bool           // load_resource

	Target  types.VisibilityTarget // toggle_visibility
	Visible bool                   // toggle_visibility

	Flag string // enable_flag

	Plugin types.Plugin // install_plugin
}

// SetPreference writes key=value to the persistence store.
func SetPreference(key, value string) Action {
	return Action{Kind: ActionSetPreference, Key: key, Value: value}
}

// LoadResource loads urls through the host loader.
func LoadResource(ordering types.Ordering, urls ...string) Action {
	return Action{Kind: ActionLoadResource, URLs: urls, Ordering: ordering}
}

// ToggleVisibility shows or hides a host element group.
func ToggleVisibility(target types.VisibilityTarget, visible bool) Action {
	return Action{Kind: ActionToggleVisibility, Target: target, Visible: visible}
}

// EnableFlag adds flag to the session flag set seen by later predicates.
func EnableFlag(flag string) Action {
	return Action{Kind: ActionEnableFlag, Flag: flag}
}

// InstallPlugin adds p to the host plugin list unless its URL is present, then loads it.
func InstallPlugin(p types.Plugin) Action {
	return Action{Kind: ActionInstallPlugin, Plugin: p}
}

// Validate checks the fields required by Kind.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionSetPreference:
		if strings.TrimSpace(a.Key) == "" {
			return fmt.Errorf("set_preference: empty key")
		}
	case ActionLoadResource:
		if len(a.URLs) == 0 {
			return fmt.Errorf("load_resource: no urls")
		}
		if len(a.URLs) > types.MaxURLsPerAction {
			return fmt.Errorf("load_resource: %d urls exceeds maximum of %d", len(a.URLs), types.MaxURLsPerAction)
		}
		for _, u := range a.URLs {
			if err := validateURLTemplate(u); err != nil {
				return fmt.Errorf("load_resource: %w", err)
			}
		}
		switch a.Ordering {
		case types.OrderingParallel, types.OrderingSequential:
		default:
			return fmt.Errorf("load_resource: unknown ordering %q", a.Ordering)
		}
	case ActionToggleVisibility:
		if strings.TrimSpace(string(a.Target)) == "" {
			return fmt.Errorf("toggle_visibility: empty target")
		}
	case ActionEnableFlag:
		if strings.TrimSpace(a.Flag) == "" {
			return fmt.Errorf("enable_flag: empty flag")
		}
	case ActionInstallPlugin:
		if err := validateURLTemplate(a.Plugin.URL); err != nil {
			return fmt.Errorf("install_plugin: %w", err)
		}
	default:
		return fmt.Errorf("unspecified action")
	}
	return nil
}

// String renders a short description for logs.
func (a Action) String() string {
	switch a.Kind {
	case ActionSetPreference:
		return fmt.Sprintf("set_preference(%s=%s)", a.Key, a.Value)
	case ActionLoadResource:
		return fmt.Sprintf("load_resource(%s, %d urls)", a.Ordering, len(a.URLs))
	case ActionToggleVisibility:
		return fmt.Sprintf("toggle_visibility(%s, %t)", a.Target, a.Visible)
	case ActionEnableFlag:
		return fmt.Sprintf("enable_flag(%s)", a.Flag)
	case ActionInstallPlugin:
		return fmt.Sprintf("install_plugin(%s)", a.Plugin.URL)
	default:
		return a.Kind.String()
	}
}

// validateURLTemplate accepts absolute URLs and root-relative paths.
// Placeholders ({base}, {uid}, ...) are substituted before parsing.
func validateURLTemplate(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("empty url")
	}
	probe := strings.NewReplacer("{base}", "http://base", "{uid}", "uid", "{email}", "email", "{session}", "session").Replace(raw)
	u, err := url.Parse(probe)
	if err != nil {
		return fmt.Errorf("url %q: %w", raw, err)
	}
	if u.Scheme == "" && !strings.HasPrefix(u.Path, "/") {
		return fmt.Errorf("url %q must be absolute or start with /", raw)
	}
	return nil
}

func actionFromSpec(spec types.ActionSpec) (Action, error) {
	var actions []Action
	if s := spec.SetPreference; s != nil {
		actions = append(actions, SetPreference(s.Key, s.Value))
	}
	if s := spec.LoadResource; s != nil {
		ordering := s.Ordering
		if ordering == "" {
			ordering = types.OrderingParallel
		}
		a := LoadResource(ordering, s.URLs...)
		a.CacheBust = s.CacheBust
		actions = append(actions, a)
	}
	if s := spec.ToggleVisibility; s != nil {
		actions = append(actions, ToggleVisibility(s.Target, s.Visible))
	}
	if s := spec.EnableFlag; s != nil {
		actions = append(actions, EnableFlag(s.Flag))
	}
	if s := spec.InstallPlugin; s != nil {
		actions = append(actions, InstallPlugin(*s))
	}
	if len(actions) != 1 {
		return Action{}, fmt.Errorf("exactly one action required, got %d", len(actions))
	}
	if err := actions[0].Validate(); err != nil {
		return Action{}, err
	}
	return actions[0], nil
}
