package engine

import (
	"context"
	"testing"

	"github.com/devforge/devforge/pkg/stores"
)

func setupRegistry(t *testing.T) *HostRegistry {
	t.Helper()

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewHostRegistry(store)
}

func TestHostRegistryAddGet(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()

	host := &Host{
		Name:    "cache01.example.com",
		Address: "10.0.0.10",
		User:    "root",
		Labels:  map[string]string{"env": "ci"},
		Roles:   []string{"base", "cacheproxy"},
	}

	if err := registry.AddHost(ctx, host); err != nil {
		t.Fatalf("AddHost() error = %v", err)
	}

	retrieved, err := registry.GetHost(ctx, host.Name)
	if err != nil {
		t.Fatalf("GetHost() error = %v", err)
	}

	if retrieved.Address != host.Address {
		t.Errorf("Address = %s, want %s", retrieved.Address, host.Address)
	}
	if retrieved.Port != 22 {
		t.Errorf("Port = %d, want default 22", retrieved.Port)
	}
	if len(retrieved.Roles) != 2 {
		t.Errorf("Roles = %v, want 2 roles", retrieved.Roles)
	}
}

func TestHostRegistryGetMissing(t *testing.T) {
	registry := setupRegistry(t)

	_, err := registry.GetHost(context.Background(), "nope.example.com")
	if !IsValidation(err) {
		t.Fatalf("expected validation error for missing host, got %v", err)
	}
}

func TestHostRegistrySelectHosts(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()

	hosts := []*Host{
		{Name: "cache01", Address: "10.0.0.10", User: "root", Labels: map[string]string{"env": "ci", "tier": "cache"}},
		{Name: "db01", Address: "10.0.0.20", User: "root", Labels: map[string]string{"env": "ci", "tier": "db"}},
		{Name: "db02", Address: "10.0.0.21", User: "root", Labels: map[string]string{"env": "prod", "tier": "db"}},
	}
	for _, host := range hosts {
		if err := registry.AddHost(ctx, host); err != nil {
			t.Fatalf("AddHost(%s) error = %v", host.Name, err)
		}
	}

	all, err := registry.SelectHosts(ctx, "all")
	if err != nil {
		t.Fatalf("SelectHosts(all) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("SelectHosts(all) = %d hosts, want 3", len(all))
	}

	ci, err := registry.SelectHosts(ctx, "env=ci")
	if err != nil {
		t.Fatalf("SelectHosts(env=ci) error = %v", err)
	}
	if len(ci) != 2 {
		t.Errorf("SelectHosts(env=ci) = %d hosts, want 2", len(ci))
	}

	ciDB, err := registry.SelectHosts(ctx, "env=ci,tier=db")
	if err != nil {
		t.Fatalf("SelectHosts(env=ci,tier=db) error = %v", err)
	}
	if len(ciDB) != 1 || ciDB[0].Name != "db01" {
		t.Errorf("SelectHosts(env=ci,tier=db) = %v, want db01 only", hostNames(ciDB))
	}
}

func TestHostRegistryHostsForRole(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()

	hosts := []*Host{
		{Name: "cache01", Address: "10.0.0.10", User: "root", Roles: []string{"base", "cacheproxy"}},
		{Name: "db01", Address: "10.0.0.20", User: "root", Roles: []string{"base", "database"}},
	}
	for _, host := range hosts {
		if err := registry.AddHost(ctx, host); err != nil {
			t.Fatalf("AddHost(%s) error = %v", host.Name, err)
		}
	}

	base, err := registry.HostsForRole(ctx, "base")
	if err != nil {
		t.Fatalf("HostsForRole(base) error = %v", err)
	}
	if len(base) != 2 {
		t.Errorf("HostsForRole(base) = %d hosts, want 2", len(base))
	}

	db, err := registry.HostsForRole(ctx, "database")
	if err != nil {
		t.Fatalf("HostsForRole(database) error = %v", err)
	}
	if len(db) != 1 || db[0].Name != "db01" {
		t.Errorf("HostsForRole(database) = %v, want db01 only", hostNames(db))
	}
}

func TestHostRegistryDelete(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()

	host := &Host{Name: "cache01", Address: "10.0.0.10", User: "root"}
	if err := registry.AddHost(ctx, host); err != nil {
		t.Fatalf("AddHost() error = %v", err)
	}

	if err := registry.DeleteHost(ctx, host.Name); err != nil {
		t.Fatalf("DeleteHost() error = %v", err)
	}

	if _, err := registry.GetHost(ctx, host.Name); err == nil {
		t.Error("expected error when getting deleted host")
	}

	if err := registry.DeleteHost(ctx, host.Name); !IsValidation(err) {
		t.Errorf("expected validation error for double delete, got %v", err)
	}
}

func hostNames(hosts []*Host) []string {
	names := make([]string, len(hosts))
	for i, host := range hosts {
		names[i] = host.Name
	}
	return names
}
