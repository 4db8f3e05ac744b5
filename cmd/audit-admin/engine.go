package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/compliance"
	"github.com/dd0wney/cluso-audit/pkg/config"
	"github.com/dd0wney/cluso-audit/pkg/export"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/masking"
	"github.com/dd0wney/cluso-audit/pkg/metrics"
	"github.com/dd0wney/cluso-audit/pkg/pubsub"
	"github.com/dd0wney/cluso-audit/pkg/query"
	"github.com/dd0wney/cluso-audit/pkg/retention"
	"github.com/dd0wney/cluso-audit/pkg/security"
	"github.com/dd0wney/cluso-audit/pkg/trail"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	actor      string
}

func addGlobalFlags(fs *flag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVar(&g.configPath, "config", "", "Path to the YAML config file (default: in-memory engine)")
	fs.StringVar(&g.actor, "actor", "admin", "Actor ID recorded for operations run from this CLI")
	return g
}

// engine bundles the assembled subsystems for one CLI invocation.
type engine struct {
	cfg       *config.Config
	logger    logging.Logger
	events    *pubsub.PubSub
	trail     *trail.Trail
	queries   *query.Engine
	exporter  *export.Exporter
	retention *retention.Engine
	reporter  *compliance.Reporter
	tokens    *security.TokenProvider
	metrics   *metrics.Registry
}

// openEngine builds the full stack from the config file. With no
// --config the engine runs in memory, which is only useful together
// with serve or for dry runs.
func openEngine(g *globalFlags) (*engine, error) {
	ctx := context.Background()

	var cfg *config.Config
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		def := config.Default()
		cfg = &def
	}

	logger := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.Logging.Level))

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	blobs, err := cfg.OpenArchiveStore(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open archive store: %w", err)
	}
	crypto, err := cfg.EncryptionEngine()
	if err != nil {
		store.Close()
		return nil, err
	}

	events := pubsub.NewPubSub()
	tr, err := trail.New(cfg.Trail, trail.Deps{
		Store:   store,
		Logger:  logger,
		Metrics: reg,
		Events:  events,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	queries := query.NewEngine(tr, masking.NewMasker(nil), logger, reg)
	ret, err := retention.NewEngine(cfg.Retention, retention.Deps{
		Trail:      tr,
		Archive:    blobs,
		Encryption: crypto,
		Logger:     logger,
		Metrics:    reg,
		Events:     events,
	})
	if err != nil {
		tr.Close()
		return nil, err
	}

	var tokens *security.TokenProvider
	if cfg.Auth.JWTSecret != "" {
		tokens, err = security.NewTokenProvider(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			tr.Close()
			return nil, err
		}
	}

	return &engine{
		cfg:       cfg,
		logger:    logger,
		events:    events,
		trail:     tr,
		queries:   queries,
		exporter:  export.NewExporter(queries, tr, logger),
		retention: ret,
		reporter:  compliance.NewReporter(nil, tr, logger, reg),
		tokens:    tokens,
		metrics:   reg,
	}, nil
}

// close flushes pending writes and releases the store.
func (e *engine) close() {
	e.retention.Stop()
	if err := e.trail.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close trail cleanly: %v\n", err)
	}
	e.events.Shutdown()
}

// sc returns the security context CLI commands run under. The CLI has
// direct store access, so it always operates as an administrator; the
// actor flag only changes attribution on recorded entries.
func (e *engine) sc(g *globalFlags) *security.SecurityContext {
	return security.FromRoles(g.actor, security.RoleAdmin)
}

// fatalf prints the error and exits.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// parseTime accepts RFC 3339 timestamps or plain dates.
func parseTime(flagName, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		fatalf("Invalid --%s value %q: want RFC 3339 or YYYY-MM-DD", flagName, value)
	}
	return ts
}

// queryFlags are the filter flags shared by export and stats.
type queryFlags struct {
	actorID    string
	entityKind string
	entityID   string
	action     string
	severity   string
	framework  string
	freeText   string
	start      string
	end        string
	system     bool
}

func addQueryFlags(fs *flag.FlagSet) *queryFlags {
	q := &queryFlags{}
	fs.StringVar(&q.actorID, "actor-id", "", "Filter by actor ID")
	fs.StringVar(&q.entityKind, "entity-kind", "", "Filter by entity kind")
	fs.StringVar(&q.entityID, "entity-id", "", "Filter by entity ID")
	fs.StringVar(&q.action, "action", "", "Filter by action")
	fs.StringVar(&q.severity, "severity", "", "Filter by severity")
	fs.StringVar(&q.framework, "framework", "", "Filter by compliance framework")
	fs.StringVar(&q.freeText, "text", "", "Free-text search over descriptions and names")
	fs.StringVar(&q.start, "start", "", "Window start (RFC 3339 or YYYY-MM-DD)")
	fs.StringVar(&q.end, "end", "", "Window end (RFC 3339 or YYYY-MM-DD)")
	fs.BoolVar(&q.system, "system", false, "Include system-generated entries")
	return q
}

func (q *queryFlags) build() *audit.Query {
	out := &audit.Query{
		FreeText:      q.freeText,
		IncludeSystem: q.system,
	}
	if q.actorID != "" {
		out.ActorIDs = []string{q.actorID}
	}
	if q.entityKind != "" {
		out.EntityKinds = []string{q.entityKind}
	}
	if q.entityID != "" {
		out.EntityIDs = []string{q.entityID}
	}
	if q.action != "" {
		out.Actions = []audit.Action{audit.Action(q.action)}
	}
	if q.severity != "" {
		out.Severities = []audit.Severity{audit.Severity(q.severity)}
	}
	if q.framework != "" {
		out.Frameworks = []audit.Framework{audit.Framework(q.framework)}
	}
	if q.start != "" {
		ts := parseTime("start", q.start)
		out.StartTime = &ts
	}
	if q.end != "" {
		ts := parseTime("end", q.end)
		out.EndTime = &ts
	}
	return out
}
