package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devforge/devforge/pkg/stores"
)

// Host is a managed machine in the inventory.
type Host struct {
	Name      string            `json:"name"`
	Address   string            `json:"address"`
	Port      int               `json:"port"`
	User      string            `json:"user"`
	KeyPath   string            `json:"key_path,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Roles     []string          `json:"roles,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// HostRegistry keeps the inventory in the fact store under the
// host.metadata namespace, so hosts survive restarts without a separate
// table.
type HostRegistry struct {
	store stores.Store
}

// NewHostRegistry creates a new host registry.
func NewHostRegistry(store stores.Store) *HostRegistry {
	return &HostRegistry{
		store: store,
	}
}

// AddHost adds or replaces a host in the registry, keyed by name.
func (r *HostRegistry) AddHost(ctx context.Context, host *Host) error {
	if host.Name == "" {
		return fmt.Errorf("host name is required")
	}
	if host.Port == 0 {
		host.Port = 22
	}

	now := time.Now()
	if host.CreatedAt.IsZero() {
		host.CreatedAt = now
	}
	host.UpdatedAt = now

	hostData, err := json.Marshal(host)
	if err != nil {
		return fmt.Errorf("failed to marshal host data: %w", err)
	}

	fact := &stores.Fact{
		ID:        uuid.New().String(),
		Host:      host.Name,
		Namespace: "host.metadata",
		Key:       "info",
		Value:     string(hostData),
		TTL:       0, // inventory entries never expire
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.store.UpsertFact(ctx, fact); err != nil {
		return fmt.Errorf("failed to store host: %w", err)
	}

	return nil
}

// GetHost retrieves a host by name.
func (r *HostRegistry) GetHost(ctx context.Context, name string) (*Host, error) {
	fact, err := r.store.GetFact(ctx, name, "host.metadata", "info")
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("host not found: %s", name), err).WithCode(ErrCodeNotFound)
	}

	var host Host
	if err := json.Unmarshal([]byte(fact.Value), &host); err != nil {
		return nil, fmt.Errorf("failed to unmarshal host data: %w", err)
	}

	return &host, nil
}

// ListHosts lists all registered hosts.
func (r *HostRegistry) ListHosts(ctx context.Context) ([]*Host, error) {
	namespace := "host.metadata"
	facts, err := r.store.ListFacts(ctx, nil, &namespace, 1000, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}

	hosts := make([]*Host, 0, len(facts))
	for _, fact := range facts {
		if fact.Key != "info" {
			continue
		}

		var host Host
		if err := json.Unmarshal([]byte(fact.Value), &host); err != nil {
			continue // skip invalid entries
		}

		hosts = append(hosts, &host)
	}

	return hosts, nil
}

// SelectHosts selects hosts by a label selector. The selector format is
// "key1=value1,key2=value2"; "all" or empty selects every host.
func (r *HostRegistry) SelectHosts(ctx context.Context, selector string) ([]*Host, error) {
	allHosts, err := r.ListHosts(ctx)
	if err != nil {
		return nil, err
	}

	if selector == "" || selector == "all" {
		return allHosts, nil
	}

	labels := parseSelector(selector)

	selected := make([]*Host, 0)
	for _, host := range allHosts {
		if matchesLabels(host.Labels, labels) {
			selected = append(selected, host)
		}
	}

	return selected, nil
}

// HostsForRole returns the hosts that carry the given role.
func (r *HostRegistry) HostsForRole(ctx context.Context, role string) ([]*Host, error) {
	allHosts, err := r.ListHosts(ctx)
	if err != nil {
		return nil, err
	}

	selected := make([]*Host, 0)
	for _, host := range allHosts {
		for _, hostRole := range host.Roles {
			if hostRole == role {
				selected = append(selected, host)
				break
			}
		}
	}

	return selected, nil
}

// DeleteHost removes a host and all its cached facts.
func (r *HostRegistry) DeleteHost(ctx context.Context, name string) error {
	facts, err := r.store.ListFacts(ctx, &name, nil, 1000, 0)
	if err != nil {
		return fmt.Errorf("failed to list host facts: %w", err)
	}

	if len(facts) == 0 {
		return NewValidationError(fmt.Sprintf("host not found: %s", name), nil).WithCode(ErrCodeNotFound)
	}

	for _, fact := range facts {
		if err := r.store.DeleteFact(ctx, fact.ID); err != nil {
			return fmt.Errorf("failed to delete fact: %w", err)
		}
	}

	return nil
}

// parseSelector parses "key1=value1,key2=value2" into a map.
func parseSelector(selector string) map[string]string {
	labels := make(map[string]string)

	pairs := strings.Split(selector, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			labels[key] = value
		}
	}

	return labels
}

// matchesLabels reports whether host labels satisfy every selector label.
func matchesLabels(hostLabels, selectorLabels map[string]string) bool {
	for key, value := range selectorLabels {
		hostValue, ok := hostLabels[key]
		if !ok || hostValue != value {
			return false
		}
	}

	return true
}
