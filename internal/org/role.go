// Package org is the per-turn control plane: role selection from the active
// organization, tool-palette filtering, the PACE escalation state machine,
// and SALUTE emission.
package org

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// Role types in selection-priority order: a specialist beats an executive
// beats a commander for the same domain.
const (
	RoleSpecialist = "specialist"
	RoleExecutive  = "executive"
	RoleCommander  = "commander"
)

// typePriority ranks role types for selection; lower wins.
func typePriority(roleType string) int {
	switch roleType {
	case RoleSpecialist:
		return 0
	case RoleExecutive:
		return 1
	case RoleCommander:
		return 2
	}
	return 3
}

// PacePlanEntry configures one escalation rung with its trigger expression.
type PacePlanEntry struct {
	Trigger string `json:"trigger" yaml:"trigger"`
}

// RoleProfile is a read-only role definition loaded from the roles directory.
type RoleProfile struct {
	RoleID   string `json:"role_id" yaml:"role_id"`
	RoleName string `json:"role_name" yaml:"role_name"`
	RoleType string `json:"role_type" yaml:"role_type"`

	Capabilities struct {
		BSTDomains []string `json:"bst_domains" yaml:"bst_domains"`
		ToolPlans  []string `json:"tool_plans" yaml:"tool_plans"`
	} `json:"capabilities" yaml:"capabilities"`

	Doctrine struct {
		SaluteIntervalTurns     int `json:"salute_interval_turns" yaml:"salute_interval_turns"`
		MaxTurnsWithoutProgress int `json:"max_turns_without_progress" yaml:"max_turns_without_progress"`
	} `json:"doctrine" yaml:"doctrine"`

	PacePlan map[string]PacePlanEntry `json:"pace_plan" yaml:"pace_plan"`

	ReportsTo    string `json:"reports_to" yaml:"reports_to"`
	Organization string `json:"organization" yaml:"organization"`
}

// CoversDomain reports whether the role's capabilities include the domain.
func (r *RoleProfile) CoversDomain(domain string) bool {
	for _, d := range r.Capabilities.BSTDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// AllowedPlans returns the tool plans this role may run, or nil when
// unrestricted.
func (r *RoleProfile) AllowedPlans() []string {
	if len(r.Capabilities.ToolPlans) == 0 {
		return nil
	}
	return r.Capabilities.ToolPlans
}

// HierarchyNode is one entry of the active organization's hierarchy. Entries
// may be bare role-id strings or nested nodes.
type HierarchyNode struct {
	RoleID       string          `json:"role_id"`
	Subordinates []HierarchyNode `json:"subordinates"`
}

// UnmarshalJSON accepts either "role_id" or {role_id, subordinates}.
func (n *HierarchyNode) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		n.RoleID = asString
		return nil
	}
	type plain HierarchyNode
	var node plain
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}
	*n = HierarchyNode(node)
	return nil
}

// Organization is the active.json document.
type Organization struct {
	OrganizationName string          `json:"organization_name"`
	Hierarchy        []HierarchyNode `json:"hierarchy"`
}

// RoleIDs flattens the hierarchy into the referenced role ids, in scan order.
func (o *Organization) RoleIDs() []string {
	var ids []string
	var walk func(nodes []HierarchyNode)
	walk = func(nodes []HierarchyNode) {
		for _, node := range nodes {
			if node.RoleID != "" {
				ids = append(ids, node.RoleID)
			}
			walk(node.Subordinates)
		}
	}
	walk(o.Hierarchy)
	return ids
}

// cachedRole pairs a profile with the file mtime it was loaded at.
type cachedRole struct {
	profile *RoleProfile
	modTime int64
}

// RoleLibrary loads role profiles from a directory with an mtime-validated
// LRU cache. Profiles may be JSON or YAML.
type RoleLibrary struct {
	dir   string
	cache *lru.Cache[string, cachedRole]

	mu        sync.Mutex
	activeOrg *Organization
	activeMod int64
}

const roleCacheSize = 64

// NewRoleLibrary returns a library rooted at dir.
func NewRoleLibrary(dir string) *RoleLibrary {
	cache, _ := lru.New[string, cachedRole](roleCacheSize)
	return &RoleLibrary{dir: dir, cache: cache}
}

// Load returns the role profile by id, reloading only when the file changed.
func (l *RoleLibrary) Load(roleID string) (*RoleProfile, error) {
	path, info, err := l.findRoleFile(roleID)
	if err != nil {
		return nil, err
	}

	if cached, ok := l.cache.Get(roleID); ok && cached.modTime == info.ModTime().UnixNano() {
		return cached.profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role %s: %w", roleID, err)
	}

	var profile RoleProfile
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		err = yaml.Unmarshal(data, &profile)
	} else {
		err = json.Unmarshal(data, &profile)
	}
	if err != nil {
		return nil, fmt.Errorf("parse role %s: %w", roleID, err)
	}
	if profile.RoleID == "" {
		profile.RoleID = roleID
	}

	l.cache.Add(roleID, cachedRole{profile: &profile, modTime: info.ModTime().UnixNano()})
	return &profile, nil
}

// All returns every role profile in the directory.
func (l *RoleLibrary) All() []*RoleProfile {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var profiles []*RoleProfile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		switch ext {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		roleID := strings.TrimSuffix(name, ext)
		if profile, err := l.Load(roleID); err == nil {
			profiles = append(profiles, profile)
		}
	}
	return profiles
}

func (l *RoleLibrary) findRoleFile(roleID string) (string, os.FileInfo, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(l.dir, roleID+ext)
		if info, err := os.Stat(path); err == nil {
			return path, info, nil
		}
	}
	return "", nil, fmt.Errorf("role %s not found in %s", roleID, l.dir)
}

// ActiveOrganization loads <orgDir>/active.json with mtime caching. A missing
// file returns (nil, nil): no organization means the kernel no-ops.
func (l *RoleLibrary) ActiveOrganization(orgDir string) (*Organization, error) {
	path := filepath.Join(orgDir, "active.json")
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.activeOrg != nil && l.activeMod == info.ModTime().UnixNano() {
		return l.activeOrg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read active organization: %w", err)
	}
	var org Organization
	if err := json.Unmarshal(data, &org); err != nil {
		return nil, fmt.Errorf("parse active organization: %w", err)
	}
	l.activeOrg = &org
	l.activeMod = info.ModTime().UnixNano()
	return &org, nil
}

// SelectRole picks the best role for a BST domain: the covering role with the
// highest-priority type; scan order breaks ties. Returns nil when no role
// covers the domain.
func (l *RoleLibrary) SelectRole(org *Organization, domain string) *RoleProfile {
	if org == nil || domain == "" {
		return nil
	}
	var best *RoleProfile
	for _, roleID := range org.RoleIDs() {
		profile, err := l.Load(roleID)
		if err != nil || !profile.CoversDomain(domain) {
			continue
		}
		if best == nil || typePriority(profile.RoleType) < typePriority(best.RoleType) {
			best = profile
		}
	}
	return best
}
