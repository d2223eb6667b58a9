package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/byronwade/thorbis.com-sub010/internal/core/domain"
	"github.com/byronwade/thorbis.com-sub010/internal/core/port"
)

var (
	// ErrNoPolicySnapshot indicates no policy set has been loaded yet.
	ErrNoPolicySnapshot = errors.New("no policy snapshot loaded")
	// ErrPolicyNotFound indicates the requested (industry, version) document does not exist.
	ErrPolicyNotFound = errors.New("policy document not found")
	// ErrUnknownRole indicates a referenced role is not defined in the snapshot.
	ErrUnknownRole = errors.New("unknown role")
)

// CycleError reports a cycle in the role inheritance graph, naming the
// member roles.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("role inheritance cycle: %s", strings.Join(e.Members, " -> "))
}

// ReloadDiagnostics describes the outcome of a policy publication attempt.
// On failure the previous snapshot stays active.
type ReloadDiagnostics struct {
	Industry      domain.IndustryVertical
	Version       string
	Success       bool
	Cycle         []string
	UnknownRoles  []string
	InvalidGrants []string
	Conflicts     []string
}

type grantKey struct {
	resourceType string
	action       string
}

type compiledRole struct {
	name    string
	parents []int
	// effective holds the role's resolved grant set after inheritance,
	// keyed by (resource type, action). Equal-specificity conflicts are
	// dropped at compile time (deny by default).
	effective map[grantKey][]domain.Grant
}

// PolicySnapshot is an immutable compiled policy set. Snapshots are swapped
// atomically; readers never observe a partially updated set.
type PolicySnapshot struct {
	versions map[domain.IndustryVertical]string
	roles    map[string]int
	arena    []compiledRole
	actions  map[string]map[string]struct{}
	loadedAt time.Time
}

// Fingerprint identifies the snapshot for audit reconciliation, composed of
// every industry's active version.
func (s *PolicySnapshot) Fingerprint() string {
	parts := make([]string, 0, len(s.versions))
	for industry, version := range s.versions {
		parts = append(parts, fmt.Sprintf("%s@%s", industry, version))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// HasRole reports whether the snapshot defines the named role.
func (s *PolicySnapshot) HasRole(name string) bool {
	_, ok := s.roles[name]
	return ok
}

// ActionDefined reports whether (resource type, action) is a registered pair.
func (s *PolicySnapshot) ActionDefined(resourceType, action string) bool {
	actions, ok := s.actions[resourceType]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// EffectiveGrants returns the union of the named roles' resolved grant sets.
// The computation is a pure function of the snapshot: repeated calls yield
// identical sets.
func (s *PolicySnapshot) EffectiveGrants(roleNames ...string) ([]domain.Grant, error) {
	var grants []domain.Grant
	for _, name := range roleNames {
		idx, ok := s.roles[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		keys := make([]grantKey, 0, len(s.arena[idx].effective))
		for key := range s.arena[idx].effective {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].resourceType != keys[j].resourceType {
				return keys[i].resourceType < keys[j].resourceType
			}
			return keys[i].action < keys[j].action
		})
		for _, key := range keys {
			grants = append(grants, s.arena[idx].effective[key]...)
		}
	}
	return grants, nil
}

// PolicyStore loads versioned policy documents, validates them, and serves
// immutable snapshots to the evaluator. Reads never block on reloads:
// concurrent authorize calls use the last-known-good snapshot.
type PolicyStore struct {
	policies  port.PolicyRepository
	publisher port.EventPublisher
	logger    *zap.Logger

	snapshot atomic.Pointer[PolicySnapshot]
	reloadMu sync.Mutex
	now      func() time.Time
}

// NewPolicyStore constructs a PolicyStore.
func NewPolicyStore(policies port.PolicyRepository, publisher port.EventPublisher, logger *zap.Logger) *PolicyStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyStore{
		policies:  policies,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock injects a custom clock (primarily for testing).
func (s *PolicyStore) WithClock(now func() time.Time) *PolicyStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Snapshot returns the active compiled policy set, or nil before the first
// successful load. Callers must fail closed on nil.
func (s *PolicyStore) Snapshot() *PolicySnapshot {
	return s.snapshot.Load()
}

// Load fetches every industry's current policy document, compiles the
// combined set, and installs it as the active snapshot.
func (s *PolicyStore) Load(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	docs, err := s.policies.ListCurrent(ctx)
	if err != nil {
		return fmt.Errorf("list current policies: %w", err)
	}

	snapshot, diag := compilePolicies(docs, s.now())
	if snapshot == nil {
		return fmt.Errorf("compile policies: %w", diagError(diag))
	}

	s.snapshot.Store(snapshot)
	s.logger.Info("policy snapshot installed",
		zap.String("fingerprint", snapshot.Fingerprint()),
		zap.Int("roles", len(snapshot.arena)),
	)
	return nil
}

// Reload activates the stored (industry, version) document, replacing that
// industry's current policy in a candidate snapshot. Validation failure
// returns diagnostics and leaves the previous snapshot active.
func (s *PolicyStore) Reload(ctx context.Context, industry domain.IndustryVertical, version, publishedBy string) (ReloadDiagnostics, error) {
	diag := ReloadDiagnostics{Industry: industry, Version: version}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	candidate, err := s.policies.Get(ctx, industry, version)
	if err != nil {
		return diag, fmt.Errorf("get policy document: %w", err)
	}

	docs, err := s.policies.ListCurrent(ctx)
	if err != nil {
		return diag, fmt.Errorf("list current policies: %w", err)
	}

	replaced := false
	for i := range docs {
		if docs[i].Industry == industry {
			docs[i] = *candidate
			replaced = true
			break
		}
	}
	if !replaced {
		docs = append(docs, *candidate)
	}

	snapshot, compileDiag := compilePolicies(docs, s.now())
	diag.Cycle = compileDiag.Cycle
	diag.UnknownRoles = compileDiag.UnknownRoles
	diag.InvalidGrants = compileDiag.InvalidGrants
	diag.Conflicts = compileDiag.Conflicts
	if snapshot == nil {
		s.logger.Warn("policy reload rejected",
			zap.String("industry", string(industry)),
			zap.String("version", version),
			zap.Strings("cycle", diag.Cycle),
			zap.Strings("unknown_roles", diag.UnknownRoles),
			zap.Strings("invalid_grants", diag.InvalidGrants),
		)
		return diag, diagError(compileDiag)
	}

	if err := s.policies.MarkCurrent(ctx, industry, version); err != nil {
		return diag, fmt.Errorf("mark policy current: %w", err)
	}

	s.snapshot.Store(snapshot)
	diag.Success = true

	if s.publisher != nil {
		event := domain.PolicyPublishedEvent{
			EventID:     uuid.NewString(),
			Industry:    industry,
			Version:     version,
			PublishedAt: s.now().UTC(),
			PublishedBy: publishedBy,
			RolesTotal:  len(candidate.Roles),
		}
		if err := s.publisher.PublishPolicyPublished(ctx, event); err != nil {
			s.logger.Warn("publish policy event failed", zap.Error(err))
		}
	}

	s.logger.Info("policy reloaded",
		zap.String("industry", string(industry)),
		zap.String("version", version),
		zap.String("fingerprint", snapshot.Fingerprint()),
	)
	return diag, nil
}

func diagError(diag ReloadDiagnostics) error {
	if len(diag.Cycle) > 0 {
		return &CycleError{Members: diag.Cycle}
	}
	if len(diag.UnknownRoles) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRole, strings.Join(diag.UnknownRoles, ", "))
	}
	if len(diag.InvalidGrants) > 0 {
		return fmt.Errorf("grants reference unregistered resource/action pairs: %s", strings.Join(diag.InvalidGrants, ", "))
	}
	return errors.New("policy validation failed")
}

// compilePolicies builds an immutable snapshot from the supplied documents.
// A nil snapshot means validation failed; the diagnostics name the cause.
func compilePolicies(docs []domain.PolicyDocument, at time.Time) (*PolicySnapshot, ReloadDiagnostics) {
	var diag ReloadDiagnostics

	snapshot := &PolicySnapshot{
		versions: make(map[domain.IndustryVertical]string, len(docs)),
		roles:    make(map[string]int),
		actions:  make(map[string]map[string]struct{}),
		loadedAt: at,
	}

	// First pass: register resource types and allocate the role arena.
	for _, doc := range docs {
		snapshot.versions[doc.Industry] = doc.Version
		for _, rt := range doc.ResourceTypes {
			actions, ok := snapshot.actions[rt.Name]
			if !ok {
				actions = make(map[string]struct{}, len(rt.Actions))
				snapshot.actions[rt.Name] = actions
			}
			for _, action := range rt.Actions {
				actions[action] = struct{}{}
			}
		}
		for _, role := range doc.Roles {
			if _, exists := snapshot.roles[role.Name]; exists {
				diag.Conflicts = append(diag.Conflicts, fmt.Sprintf("role %q defined more than once", role.Name))
				return nil, diag
			}
			snapshot.roles[role.Name] = len(snapshot.arena)
			snapshot.arena = append(snapshot.arena, compiledRole{name: role.Name})
		}
	}

	// Second pass: wire parent edges and validate grant references.
	defs := make([]domain.RoleDef, len(snapshot.arena))
	for _, doc := range docs {
		for _, role := range doc.Roles {
			idx := snapshot.roles[role.Name]
			defs[idx] = role
			for _, parent := range role.Inherits {
				parentIdx, ok := snapshot.roles[parent]
				if !ok {
					diag.UnknownRoles = append(diag.UnknownRoles, parent)
					continue
				}
				snapshot.arena[idx].parents = append(snapshot.arena[idx].parents, parentIdx)
			}
			for _, grant := range role.Grants {
				if !snapshot.ActionDefined(grant.ResourceType, grant.Action) {
					diag.InvalidGrants = append(diag.InvalidGrants,
						fmt.Sprintf("%s: %s/%s", role.Name, grant.ResourceType, grant.Action))
				}
			}
		}
	}
	if len(diag.UnknownRoles) > 0 || len(diag.InvalidGrants) > 0 {
		return nil, diag
	}

	if cycle := findCycle(snapshot); cycle != nil {
		diag.Cycle = cycle
		return nil, diag
	}

	// Third pass: resolve effective grants per role. Breadth-first walk up
	// the inheritance graph; the nearest role defining a (type, action)
	// pair wins, and equal-distance conflicts drop the pair entirely.
	for idx := range snapshot.arena {
		effective, conflicts := resolveEffective(snapshot, defs, idx)
		snapshot.arena[idx].effective = effective
		diag.Conflicts = append(diag.Conflicts, conflicts...)
	}

	return snapshot, diag
}

// findCycle runs an iterative three-colour DFS over the inheritance graph
// and returns the members of the first cycle found, or nil.
func findCycle(s *PolicySnapshot) []string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	colour := make([]int, len(s.arena))
	parentOf := make([]int, len(s.arena))
	for i := range parentOf {
		parentOf[i] = -1
	}

	var visit func(int) []string
	visit = func(node int) []string {
		colour[node] = grey
		for _, next := range s.arena[node].parents {
			switch colour[next] {
			case white:
				parentOf[next] = node
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			case grey:
				// Walk back from node to next to name the cycle.
				members := []string{s.arena[next].name}
				for at := node; at != next && at != -1; at = parentOf[at] {
					members = append(members, s.arena[at].name)
				}
				sort.Strings(members)
				return members
			}
		}
		colour[node] = black
		return nil
	}

	for i := range s.arena {
		if colour[i] == white {
			if cycle := visit(i); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func resolveEffective(s *PolicySnapshot, defs []domain.RoleDef, start int) (map[grantKey][]domain.Grant, []string) {
	type candidate struct {
		distance int
		grants   []domain.Grant
	}
	best := make(map[grantKey]candidate)

	// BFS from the role through its ancestors; distance is specificity
	// (0 = the role itself, the most specific).
	visited := make(map[int]int, len(s.arena))
	queue := []int{start}
	visited[start] = 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		distance := visited[node]

		for _, grant := range defs[node].Grants {
			key := grantKey{resourceType: grant.ResourceType, action: grant.Action}
			existing, ok := best[key]
			switch {
			case !ok || distance < existing.distance:
				best[key] = candidate{distance: distance, grants: []domain.Grant{grant}}
			case distance == existing.distance:
				existing.grants = append(existing.grants, grant)
				best[key] = existing
			}
		}

		for _, parent := range s.arena[node].parents {
			if _, seen := visited[parent]; !seen {
				visited[parent] = distance + 1
				queue = append(queue, parent)
			}
		}
	}

	var conflicts []string
	effective := make(map[grantKey][]domain.Grant, len(best))
	for key, cand := range best {
		if cand.distance > 0 && len(cand.grants) > 1 {
			// Two ancestors at equal specificity disagree: deny by
			// default, the pair gets no grant at all.
			conflicts = append(conflicts, fmt.Sprintf("%s: equal-specificity grants for %s/%s dropped",
				s.arena[start].name, key.resourceType, key.action))
			continue
		}
		effective[key] = cand.grants
	}
	return effective, conflicts
}
