package roles

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devforge/devforge/pkg/engine"
	"github.com/devforge/devforge/pkg/tasks"
)

// BaseVars configures the base host-configuration role.
type BaseVars struct {
	// DevUser is the developer account to create.
	DevUser string `yaml:"dev_user" validate:"required"`

	// DevUserHome overrides the account's home directory.
	DevUserHome string `yaml:"dev_user_home"`

	// InstallStrategy selects how the platform lands on the host. Only
	// "packages" and "source" are valid; anything else is a hard error,
	// never a silent default.
	InstallStrategy string `yaml:"install_strategy" validate:"required,oneof=packages source"`

	// SubscriptionOrg and ActivationKey register the host with the
	// vendor's subscription service. Both empty skips registration.
	SubscriptionOrg string `yaml:"subscription_org"`
	ActivationKey   string `yaml:"activation_key"`

	// Repositories are repository IDs to enable.
	Repositories []string `yaml:"repositories"`

	// Aliases are shell aliases installed for all login shells.
	Aliases map[string]string `yaml:"aliases"`

	// Motd, when set, replaces the message of the day.
	Motd string `yaml:"motd"`
}

func defaultBaseVars() *BaseVars {
	return &BaseVars{
		Aliases: map[string]string{
			"dftail": "tail -f /var/log/messages",
		},
	}
}

// BuildBase produces the host-configuration role: subscription
// registration (redhat family only), repository enablement, the
// developer account with a traversable home, a sudoers entry committed
// only after visudo approves it, shell aliases, and the login banner.
func BuildBase(vars map[string]any) (*engine.Role, error) {
	v := defaultBaseVars()
	if err := decodeVars("base", vars, v); err != nil {
		return nil, err
	}

	if v.DevUserHome == "" {
		v.DevUserHome = "/home/" + v.DevUser
	}

	role := &engine.Role{Name: "base"}

	if v.SubscriptionOrg != "" && v.ActivationKey != "" {
		role.Tasks = append(role.Tasks, engine.Task{
			Name: "register subscription",
			When: `os_family == "redhat"`,
			Action: &tasks.Command{
				Cmd: fmt.Sprintf("subscription-manager register --org %s --activationkey %s",
					v.SubscriptionOrg, v.ActivationKey),
				Creates: "/etc/pki/consumer/cert.pem",
				Sudo:    true,
			},
		})
	}

	for _, repo := range v.Repositories {
		role.Tasks = append(role.Tasks, engine.Task{
			Name: fmt.Sprintf("enable repository %s", repo),
			When: `os_family == "redhat"`,
			Action: &tasks.Command{
				Cmd:  fmt.Sprintf("subscription-manager repos --enable %s", repo),
				Sudo: true,
			},
		})
	}

	// Services run as their own users but need to traverse into
	// checkouts under the developer's home, hence 0755.
	role.Tasks = append(role.Tasks, engine.Task{
		Name: fmt.Sprintf("create account %s", v.DevUser),
		Action: &tasks.User{
			User:     v.DevUser,
			Home:     v.DevUserHome,
			HomeMode: "0755",
			Shell:    "/bin/bash",
		},
	})

	role.Tasks = append(role.Tasks, engine.Task{
		Name: "grant passwordless sudo",
		Action: &tasks.LineInFile{
			Path:     "/etc/sudoers",
			Line:     fmt.Sprintf("%s ALL=(ALL) NOPASSWD: ALL", v.DevUser),
			Validate: "visudo -cf %s",
		},
	})

	if len(v.Aliases) > 0 {
		role.Tasks = append(role.Tasks, engine.Task{
			Name: "install shell aliases",
			Action: &tasks.FileWrite{
				Path:    "/etc/profile.d/devforge.sh",
				Content: renderAliases(v.Aliases),
				Mode:    "0644",
			},
		})
	}

	if v.Motd != "" {
		role.Tasks = append(role.Tasks, engine.Task{
			Name: "set message of the day",
			Action: &tasks.FileWrite{
				Path:    "/etc/motd",
				Content: v.Motd,
				Mode:    "0644",
			},
		})
	}

	return role, nil
}

// renderAliases renders the alias map as a profile.d snippet, sorted so
// re-renders of the same map are byte-identical and report no change.
func renderAliases(aliases map[string]string) string {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "alias %s='%s'\n", name, aliases[name])
	}
	return b.String()
}
