package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devforge/devforge/pkg/stores"
	"github.com/devforge/devforge/pkg/telemetry"
	"github.com/devforge/devforge/pkg/transports"
)

// FactsCollector discovers host facts over a transport connection and
// caches them in the store with a TTL.
type FactsCollector struct {
	store      stores.Store
	logger     *telemetry.Logger
	defaultTTL int
}

// OSFacts describes the host operating system.
type OSFacts struct {
	Family   string `json:"family"` // redhat, debian, suse, unknown
	Name     string `json:"name"`
	Version  string `json:"version"`
	Major    int    `json:"major"`
	Kernel   string `json:"kernel"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
}

// SELinuxFacts describes the SELinux state.
type SELinuxFacts struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"` // enforcing, permissive, disabled
}

// RepoFacts describes optional package repository state.
type RepoFacts struct {
	NightlyEnabled bool `json:"nightly_enabled"`
}

// NewFactsCollector creates a facts collector. The store is optional; a nil
// store disables caching.
func NewFactsCollector(store stores.Store, logger *telemetry.Logger) *FactsCollector {
	return &FactsCollector{
		store:      store,
		logger:     logger.NewComponentLogger("facts"),
		defaultTTL: 3600,
	}
}

// Collect gathers facts for a host. Unless refresh is set, cached facts
// that have not expired are returned without touching the host. The result
// is a flat map suitable for condition evaluation: os_family, os_version,
// os_major, arch, kernel, hostname, selinux_enabled, selinux_mode,
// nightly_enabled.
func (c *FactsCollector) Collect(ctx context.Context, conn transports.Conn, host string, refresh bool) (map[string]any, error) {
	if !refresh {
		if cached, ok := c.cachedFacts(ctx, host); ok {
			c.logger.WithHost(host).Debug("using cached facts")
			return cached, nil
		}
	}

	start := time.Now()
	logger := c.logger.WithHost(host)
	logger.Info("collecting facts")

	osFacts, err := c.collectOSFacts(ctx, conn)
	if err != nil {
		return nil, NewTransientError("failed to collect OS facts", err).WithCode(ErrCodeFactsFailed).WithHost(host)
	}

	selinuxFacts, err := c.collectSELinuxFacts(ctx, conn)
	if err != nil {
		return nil, NewTransientError("failed to collect SELinux facts", err).WithCode(ErrCodeFactsFailed).WithHost(host)
	}

	repoFacts, err := c.collectRepoFacts(ctx, conn)
	if err != nil {
		return nil, NewTransientError("failed to collect repo facts", err).WithCode(ErrCodeFactsFailed).WithHost(host)
	}

	c.storeFact(ctx, host, "os.release", osFacts)
	c.storeFact(ctx, host, "security.selinux", selinuxFacts)
	c.storeFact(ctx, host, "repo.nightly", repoFacts)

	logger.Infof("facts collected in %s", time.Since(start).Round(time.Millisecond))

	return flattenFacts(osFacts, selinuxFacts, repoFacts), nil
}

// collectOSFacts reads /etc/os-release plus uname.
func (c *FactsCollector) collectOSFacts(ctx context.Context, conn transports.Conn) (*OSFacts, error) {
	facts := &OSFacts{Family: "unknown"}

	res, err := conn.Execute(ctx, "cat /etc/os-release")
	if err != nil {
		return nil, err
	}
	if res.Success() {
		for _, line := range res.Lines() {
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			value = strings.Trim(value, `"`)
			switch key {
			case "NAME":
				facts.Name = value
			case "VERSION_ID":
				facts.Version = value
			case "ID", "ID_LIKE":
				if facts.Family == "unknown" {
					facts.Family = osFamily(value)
				}
			}
		}
	}

	if facts.Version != "" {
		major := facts.Version
		if i := strings.IndexByte(major, '.'); i >= 0 {
			major = major[:i]
		}
		if n, err := strconv.Atoi(major); err == nil {
			facts.Major = n
		}
	}

	res, err = conn.Execute(ctx, "uname -r")
	if err != nil {
		return nil, err
	}
	facts.Kernel = res.Stdout

	res, err = conn.Execute(ctx, "uname -m")
	if err != nil {
		return nil, err
	}
	facts.Arch = res.Stdout

	res, err = conn.Execute(ctx, "hostname -f 2>/dev/null || hostname")
	if err != nil {
		return nil, err
	}
	facts.Hostname = res.Stdout

	return facts, nil
}

// collectSELinuxFacts probes getenforce. Hosts without SELinux report it
// disabled rather than failing collection.
func (c *FactsCollector) collectSELinuxFacts(ctx context.Context, conn transports.Conn) (*SELinuxFacts, error) {
	facts := &SELinuxFacts{Mode: "disabled"}

	res, err := conn.Execute(ctx, "getenforce 2>/dev/null")
	if err != nil {
		return nil, err
	}
	if res.Success() && res.Stdout != "" {
		facts.Mode = strings.ToLower(res.Stdout)
		facts.Enabled = facts.Mode != "disabled"
	}

	return facts, nil
}

// collectRepoFacts checks whether the nightly package repository is
// configured and enabled.
func (c *FactsCollector) collectRepoFacts(ctx context.Context, conn transports.Conn) (*RepoFacts, error) {
	facts := &RepoFacts{}

	res, err := conn.Execute(ctx, "grep -ls 'enabled *= *1' /etc/yum.repos.d/*nightly*.repo 2>/dev/null")
	if err != nil {
		return nil, err
	}
	facts.NightlyEnabled = res.Success() && res.Stdout != ""

	return facts, nil
}

// osFamily maps an os-release ID to a distribution family.
func osFamily(id string) string {
	for _, candidate := range strings.Fields(id) {
		switch candidate {
		case "rhel", "centos", "fedora", "rocky", "almalinux":
			return "redhat"
		case "debian", "ubuntu":
			return "debian"
		case "sles", "opensuse", "suse":
			return "suse"
		}
	}
	return "unknown"
}

// flattenFacts produces the flat map used by condition expressions.
func flattenFacts(osFacts *OSFacts, selinux *SELinuxFacts, repo *RepoFacts) map[string]any {
	return map[string]any{
		"os_family":       osFacts.Family,
		"os_name":         osFacts.Name,
		"os_version":      osFacts.Version,
		"os_major":        osFacts.Major,
		"kernel":          osFacts.Kernel,
		"arch":            osFacts.Arch,
		"hostname":        osFacts.Hostname,
		"selinux_enabled": selinux.Enabled,
		"selinux_mode":    selinux.Mode,
		"nightly_enabled": repo.NightlyEnabled,
	}
}

// cachedFacts rebuilds the flat fact map from the store. It only succeeds
// when all three namespaces are present and unexpired.
func (c *FactsCollector) cachedFacts(ctx context.Context, host string) (map[string]any, bool) {
	if c.store == nil {
		return nil, false
	}

	osFacts := &OSFacts{}
	if !c.loadFact(ctx, host, "os.release", osFacts) {
		return nil, false
	}

	selinux := &SELinuxFacts{}
	if !c.loadFact(ctx, host, "security.selinux", selinux) {
		return nil, false
	}

	repo := &RepoFacts{}
	if !c.loadFact(ctx, host, "repo.nightly", repo) {
		return nil, false
	}

	return flattenFacts(osFacts, selinux, repo), true
}

func (c *FactsCollector) loadFact(ctx context.Context, host, namespace string, out any) bool {
	fact, err := c.store.GetFact(ctx, host, namespace, "data")
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(fact.Value), out) == nil
}

func (c *FactsCollector) storeFact(ctx context.Context, host, namespace string, data any) {
	if c.store == nil {
		return
	}

	valueBytes, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Warnf("failed to marshal %s facts", namespace)
		return
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(c.defaultTTL) * time.Second)

	fact := &stores.Fact{
		ID:        uuid.New().String(),
		Host:      host,
		Namespace: namespace,
		Key:       "data",
		Value:     string(valueBytes),
		TTL:       c.defaultTTL,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.UpsertFact(ctx, fact); err != nil {
		c.logger.WithError(err).Warnf("failed to cache %s facts", namespace)
	}
}

// Facts retrieves all cached facts for a host grouped by namespace.
func (c *FactsCollector) Facts(ctx context.Context, host string) (map[string]any, error) {
	if c.store == nil {
		return nil, fmt.Errorf("fact caching is not enabled")
	}

	facts, err := c.store.ListFacts(ctx, &host, nil, 1000, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list facts: %w", err)
	}

	result := make(map[string]any)
	for _, fact := range facts {
		if fact.Namespace == "host.metadata" {
			continue
		}

		var data any
		if err := json.Unmarshal([]byte(fact.Value), &data); err != nil {
			continue
		}

		result[fact.Namespace] = data
	}

	return result, nil
}
