// Package retention expires audit entries according to policy: keep,
// archive, delete or anonymize. Runs are capability-gated, recorded on
// the trail, and never break chain verification — removed entries
// leave tombstones and anonymization only rewrites fields the entry
// hash does not cover.
package retention

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/encryption"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/metrics"
	"github.com/dd0wney/cluso-audit/pkg/pubsub"
	"github.com/dd0wney/cluso-audit/pkg/security"
	"github.com/dd0wney/cluso-audit/pkg/storage"
	"github.com/dd0wney/cluso-audit/pkg/trail"
	"github.com/dd0wney/cluso-audit/pkg/validation"
)

// ErrPolicyNotFound aliases the storage sentinel for callers that only
// import this package.
var ErrPolicyNotFound = storage.ErrPolicyNotFound

// Config tunes the retention engine.
type Config struct {
	// SweepInterval is how often the background sweeper runs. Zero
	// disables the sweeper; runs are then manual.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// EncryptArchives seals archive blobs with AES-256-GCM. Requires an
	// encryption engine in Deps.
	EncryptArchives bool `yaml:"encrypt_archives"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	v := validation.NewConfigValidator("retention")
	if c.SweepInterval != 0 {
		v.MinDuration("sweep_interval", c.SweepInterval, time.Minute)
	}
	return v.Validate()
}

// Deps are the engine's collaborators. Trail and Archive are required;
// Encryption is needed only when archives are encrypted.
type Deps struct {
	Trail      *trail.Trail
	Archive    storage.ArchiveStore
	Encryption *encryption.Engine
	Logger     logging.Logger
	Metrics    *metrics.Registry
	Events     *pubsub.PubSub
}

// Engine evaluates retention policies against the live trail.
type Engine struct {
	cfg     Config
	trail   *trail.Trail
	blobs   storage.ArchiveStore
	crypto  *encryption.Engine
	logger  logging.Logger
	metrics *metrics.Registry
	events  *pubsub.PubSub

	mu       sync.RWMutex
	policies map[string]*audit.RetentionPolicy

	runMu sync.Mutex // one run at a time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine loads persisted policies and returns a ready engine. The
// background sweeper, if configured, starts on Start.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Trail == nil {
		return nil, fmt.Errorf("retention requires a trail")
	}
	if deps.Archive == nil {
		return nil, fmt.Errorf("retention requires an archive store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.EncryptArchives && deps.Encryption == nil {
		return nil, fmt.Errorf("encrypted archives require an encryption engine")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	en := &Engine{
		cfg:      cfg,
		trail:    deps.Trail,
		blobs:    deps.Archive,
		crypto:   deps.Encryption,
		logger:   logger.With(logging.Component("retention")),
		metrics:  deps.Metrics,
		events:   deps.Events,
		policies: make(map[string]*audit.RetentionPolicy),
		stopCh:   make(chan struct{}),
	}

	persisted, err := deps.Trail.Store().LoadPolicies(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load retention policies: %w", err)
	}
	for _, p := range persisted {
		en.policies[p.ID] = p
	}
	en.logger.Info("retention engine ready", logging.Count(len(persisted)))
	return en, nil
}

// Start launches the background sweeper. No-op when SweepInterval is
// zero.
func (en *Engine) Start() {
	if en.cfg.SweepInterval == 0 {
		return
	}
	en.wg.Add(1)
	go func() {
		defer en.wg.Done()
		ticker := time.NewTicker(en.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-en.stopCh:
				return
			case <-ticker.C:
				if _, err := en.Run(context.Background(), security.SystemContext()); err != nil {
					en.logger.Error("scheduled retention run failed", logging.Error(err))
				}
			}
		}
	}()
}

// Stop halts the background sweeper. Safe to call more than once.
func (en *Engine) Stop() {
	en.stopOnce.Do(func() {
		close(en.stopCh)
	})
	en.wg.Wait()
}

// SavePolicy creates or updates a policy. The change is persisted and
// recorded on the trail.
func (en *Engine) SavePolicy(ctx context.Context, sc *security.SecurityContext, p *audit.RetentionPolicy) error {
	if err := sc.Require(security.CapManageRetention); err != nil {
		en.metrics.RecordUnauthorized("policy.save")
		return err
	}
	if err := validatePolicy(p); err != nil {
		return err
	}

	now := time.Now().UTC()
	created := false
	if p.ID == "" {
		p.ID = uuid.New().String()
		p.CreatedAt = now
		p.CreatedBy = sc.Actor()
		created = true
	}
	p.UpdatedAt = now

	if err := en.trail.Store().SavePolicy(ctx, p); err != nil {
		return fmt.Errorf("failed to persist policy: %w", err)
	}
	en.mu.Lock()
	prev := en.policies[p.ID]
	en.policies[p.ID] = p
	en.mu.Unlock()

	action := audit.ActionUpdate
	if created || prev == nil {
		action = audit.ActionCreate
	}
	draft := audit.New(sc.Actor(), action, "retention-policy", p.ID).
		WithEntityName(p.Name).
		WithDescription("retention policy %q: %s after %d days", p.Name, p.Action, p.RetentionDays).
		WithChange("retention_policy.action", prevAction(prev), string(p.Action))
	en.trail.RecordSystem(draft)

	en.logger.Info("saved retention policy",
		logging.PolicyID(p.ID),
		logging.String("action", string(p.Action)),
		logging.Int("retention_days", p.RetentionDays),
	)
	return nil
}

// DeletePolicy removes a policy. The deletion is recorded on the trail.
func (en *Engine) DeletePolicy(ctx context.Context, sc *security.SecurityContext, policyID string) error {
	if err := sc.Require(security.CapManageRetention); err != nil {
		en.metrics.RecordUnauthorized("policy.delete")
		return err
	}
	en.mu.Lock()
	p, ok := en.policies[policyID]
	en.mu.Unlock()
	if !ok {
		return ErrPolicyNotFound
	}
	// Durable delete first: a store failure must leave memory and disk
	// agreeing.
	if err := en.trail.Store().DeletePolicy(ctx, policyID); err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	en.mu.Lock()
	delete(en.policies, policyID)
	en.mu.Unlock()

	en.trail.RecordSystem(
		audit.New(sc.Actor(), audit.ActionDelete, "retention-policy", policyID).
			WithEntityName(p.Name).
			WithDescription("deleted retention policy %q", p.Name),
	)
	return nil
}

// Policy returns one policy by ID.
func (en *Engine) Policy(policyID string) (*audit.RetentionPolicy, error) {
	en.mu.RLock()
	defer en.mu.RUnlock()
	p, ok := en.policies[policyID]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return p, nil
}

// Policies returns all policies, highest priority first.
func (en *Engine) Policies() []*audit.RetentionPolicy {
	en.mu.RLock()
	defer en.mu.RUnlock()
	out := make([]*audit.RetentionPolicy, 0, len(en.policies))
	for _, p := range en.policies {
		out = append(out, p)
	}
	sortPolicies(out)
	return out
}

// Archives returns all archive manifests, newest first.
func (en *Engine) Archives(ctx context.Context, sc *security.SecurityContext) ([]*audit.Archive, error) {
	if err := sc.Require(security.CapViewAudit); err != nil {
		return nil, err
	}
	archives, err := en.trail.Store().LoadArchives(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].CreatedAt.After(archives[j].CreatedAt) })
	return archives, nil
}

func sortPolicies(policies []*audit.RetentionPolicy) {
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority > policies[j].Priority
		}
		return policies[i].ID < policies[j].ID
	})
}

func validatePolicy(p *audit.RetentionPolicy) error {
	if p == nil {
		return fmt.Errorf("policy cannot be nil")
	}
	if err := validation.ValidateStruct(p); err != nil {
		return err
	}
	if !p.Action.Valid() {
		return fmt.Errorf("unknown retention action %q", p.Action)
	}
	for _, a := range p.Actions {
		if !a.Valid() {
			return fmt.Errorf("unknown action filter %q", a)
		}
	}
	for _, s := range p.ExcludedSeverities {
		if !s.Valid() {
			return fmt.Errorf("unknown excluded severity %q", s)
		}
	}
	for _, f := range p.ProtectedFrameworks {
		if !f.Valid() {
			return fmt.Errorf("unknown protected framework %q", f)
		}
	}
	return nil
}

func prevAction(p *audit.RetentionPolicy) string {
	if p == nil {
		return ""
	}
	return string(p.Action)
}
