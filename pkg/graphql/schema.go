// Package graphql exposes a read-only GraphQL schema over the query
// engine, for embedding the trail into existing GraphQL gateways. All
// resolvers run under the caller's SecurityContext; there are no
// mutations, the trail is written through the library API only.
package graphql

import (
	"context"
	"fmt"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/compliance"
	"github.com/dd0wney/cluso-audit/pkg/hashchain"
	"github.com/dd0wney/cluso-audit/pkg/query"
	"github.com/dd0wney/cluso-audit/pkg/security"
)

type contextKey struct{}

// WithSecurityContext attaches the caller's security context for the
// resolvers to pick up.
func WithSecurityContext(ctx context.Context, sc *security.SecurityContext) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// securityFrom returns the attached context, or nil. Nil fails closed
// in the engines.
func securityFrom(ctx context.Context) *security.SecurityContext {
	sc, _ := ctx.Value(contextKey{}).(*security.SecurityContext)
	return sc
}

// Deps are the engines the schema reads from. Queries is required;
// Reporter enables the complianceReport field.
type Deps struct {
	Queries  *query.Engine
	Reporter *compliance.Reporter
}

// NewSchema builds the read-only schema.
func NewSchema(deps Deps) (graphql.Schema, error) {
	if deps.Queries == nil {
		return graphql.Schema{}, fmt.Errorf("graphql schema requires a query engine")
	}

	changeType := newChangeType()
	entryType := newEntryType(changeType)
	resultType := newResultType(entryType)
	reportType := newVerificationReportType()

	fields := graphql.Fields{
		"health": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "ok", nil
			},
		},
		"entry": &graphql.Field{
			Type: entryType,
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				id, _ := p.Args["id"].(string)
				return deps.Queries.Get(p.Context, securityFrom(p.Context), id)
			},
		},
		"search": &graphql.Field{
			Type: resultType,
			Args: graphql.FieldConfigArgument{
				"actorId":    &graphql.ArgumentConfig{Type: graphql.String},
				"entityKind": &graphql.ArgumentConfig{Type: graphql.String},
				"entityId":   &graphql.ArgumentConfig{Type: graphql.String},
				"action":     &graphql.ArgumentConfig{Type: graphql.String},
				"severity":   &graphql.ArgumentConfig{Type: graphql.String},
				"framework":  &graphql.ArgumentConfig{Type: graphql.String},
				"freeText":   &graphql.ArgumentConfig{Type: graphql.String},
				"startTime":  &graphql.ArgumentConfig{Type: graphql.DateTime},
				"endTime":    &graphql.ArgumentConfig{Type: graphql.DateTime},
				"offset":     &graphql.ArgumentConfig{Type: graphql.Int},
				"limit":      &graphql.ArgumentConfig{Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return deps.Queries.Search(p.Context, securityFrom(p.Context), queryFromArgs(p.Args))
			},
		},
		"verify": &graphql.Field{
			Type: reportType,
			Args: graphql.FieldConfigArgument{
				"fromSequence": &graphql.ArgumentConfig{Type: graphql.Int},
				"toSequence":   &graphql.ArgumentConfig{Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				from, _ := p.Args["fromSequence"].(int)
				to, _ := p.Args["toSequence"].(int)
				return deps.Queries.VerifyRange(p.Context, securityFrom(p.Context), uint64(from), uint64(to))
			},
		},
	}

	if deps.Reporter != nil {
		fields["complianceReport"] = &graphql.Field{
			Type: newComplianceReportType(),
			Args: graphql.FieldConfigArgument{
				"framework": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"startTime": &graphql.ArgumentConfig{Type: graphql.DateTime},
				"endTime":   &graphql.ArgumentConfig{Type: graphql.DateTime},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				framework, _ := p.Args["framework"].(string)
				var start, end time.Time
				if t, ok := p.Args["startTime"].(time.Time); ok {
					start = t
				}
				if t, ok := p.Args["endTime"].(time.Time); ok {
					end = t
				}
				return deps.Reporter.GenerateReport(p.Context, securityFrom(p.Context),
					audit.Framework(framework), start, end)
			},
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: fields,
		}),
	})
}

func queryFromArgs(args map[string]interface{}) *audit.Query {
	q := &audit.Query{}
	if v, ok := args["actorId"].(string); ok && v != "" {
		q.ActorIDs = []string{v}
	}
	if v, ok := args["entityKind"].(string); ok && v != "" {
		q.EntityKinds = []string{v}
	}
	if v, ok := args["entityId"].(string); ok && v != "" {
		q.EntityIDs = []string{v}
	}
	if v, ok := args["action"].(string); ok && v != "" {
		q.Actions = []audit.Action{audit.Action(v)}
	}
	if v, ok := args["severity"].(string); ok && v != "" {
		q.Severities = []audit.Severity{audit.Severity(v)}
	}
	if v, ok := args["framework"].(string); ok && v != "" {
		q.Frameworks = []audit.Framework{audit.Framework(v)}
	}
	if v, ok := args["freeText"].(string); ok && v != "" {
		q.FreeText = v
	}
	if v, ok := args["startTime"].(time.Time); ok {
		q.StartTime = &v
	}
	if v, ok := args["endTime"].(time.Time); ok {
		q.EndTime = &v
	}
	if v, ok := args["offset"].(int); ok {
		q.Offset = v
	}
	if v, ok := args["limit"].(int); ok {
		q.Limit = v
	}
	return q
}

func newChangeType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "ChangeRecord",
		Fields: graphql.Fields{
			"fieldPath": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(audit.ChangeRecord); ok {
						return c.FieldPath, nil
					}
					return nil, nil
				},
			},
			"oldValue": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(audit.ChangeRecord); ok {
						return c.OldValue, nil
					}
					return nil, nil
				},
			},
			"newValue": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(audit.ChangeRecord); ok {
						return c.NewValue, nil
					}
					return nil, nil
				},
			},
			"sensitive": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(audit.ChangeRecord); ok {
						return c.Sensitive, nil
					}
					return nil, nil
				},
			},
		},
	})
}

func newEntryType(changeType *graphql.Object) *graphql.Object {
	entry := func(p graphql.ResolveParams) *audit.Entry {
		e, _ := p.Source.(*audit.Entry)
		return e
	}
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "AuditEntry",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.ID, nil
					}
					return nil, nil
				},
			},
			"sequenceNum": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return int(e.SequenceNum), nil
					}
					return nil, nil
				},
			},
			"timestamp": &graphql.Field{
				Type: graphql.DateTime,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.Timestamp, nil
					}
					return nil, nil
				},
			},
			"actorId": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.ActorID, nil
					}
					return nil, nil
				},
			},
			"actorName": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.ActorName, nil
					}
					return nil, nil
				},
			},
			"action": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return string(e.Action), nil
					}
					return nil, nil
				},
			},
			"entityKind": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.EntityKind, nil
					}
					return nil, nil
				},
			},
			"entityId": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.EntityID, nil
					}
					return nil, nil
				},
			},
			"severity": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return string(e.Severity), nil
					}
					return nil, nil
				},
			},
			"success": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.Success, nil
					}
					return nil, nil
				},
			},
			"description": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.Description, nil
					}
					return nil, nil
				},
			},
			"correlationId": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.CorrelationID, nil
					}
					return nil, nil
				},
			},
			"frameworks": &graphql.Field{
				Type: graphql.NewList(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						out := make([]string, len(e.Frameworks))
						for i, f := range e.Frameworks {
							out[i] = string(f)
						}
						return out, nil
					}
					return nil, nil
				},
			},
			"containsPii": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.ContainsPII, nil
					}
					return nil, nil
				},
			},
			"currentHash": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.CurrentHash, nil
					}
					return nil, nil
				},
			},
			"previousHash": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.PreviousHash, nil
					}
					return nil, nil
				},
			},
			"changes": &graphql.Field{
				Type: graphql.NewList(changeType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if e := entry(p); e != nil {
						return e.Changes, nil
					}
					return nil, nil
				},
			},
		},
	})
}

func newResultType(entryType *graphql.Object) *graphql.Object {
	result := func(p graphql.ResolveParams) *query.Result {
		r, _ := p.Source.(*query.Result)
		return r
	}
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "SearchResult",
		Fields: graphql.Fields{
			"total": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := result(p); r != nil {
						return r.Total, nil
					}
					return nil, nil
				},
			},
			"offset": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := result(p); r != nil {
						return r.Offset, nil
					}
					return nil, nil
				},
			},
			"limit": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := result(p); r != nil {
						return r.Limit, nil
					}
					return nil, nil
				},
			},
			"masked": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := result(p); r != nil {
						return r.Masked, nil
					}
					return nil, nil
				},
			},
			"entries": &graphql.Field{
				Type: graphql.NewList(entryType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := result(p); r != nil {
						return r.Entries, nil
					}
					return nil, nil
				},
			},
		},
	})
}

func newVerificationReportType() *graphql.Object {
	report := func(p graphql.ResolveParams) *hashchain.Report {
		r, _ := p.Source.(*hashchain.Report)
		return r
	}
	violationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ChainViolation",
		Fields: graphql.Fields{
			"sequenceNum": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if v, ok := p.Source.(hashchain.Violation); ok {
						return int(v.SequenceNum), nil
					}
					return nil, nil
				},
			},
			"reason": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if v, ok := p.Source.(hashchain.Violation); ok {
						return string(v.Reason), nil
					}
					return nil, nil
				},
			},
			"detail": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if v, ok := p.Source.(hashchain.Violation); ok {
						return v.Detail, nil
					}
					return nil, nil
				},
			},
		},
	})
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "VerificationReport",
		Fields: graphql.Fields{
			"fromSequence": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return int(r.FromSequence), nil
					}
					return nil, nil
				},
			},
			"toSequence": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return int(r.ToSequence), nil
					}
					return nil, nil
				},
			},
			"entriesChecked": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.EntriesChecked, nil
					}
					return nil, nil
				},
			},
			"tombstonesSeen": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.TombstonesSeen, nil
					}
					return nil, nil
				},
			},
			"intact": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.Intact(), nil
					}
					return nil, nil
				},
			},
			"violations": &graphql.Field{
				Type: graphql.NewList(violationType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.Violations, nil
					}
					return nil, nil
				},
			},
		},
	})
}

func newComplianceReportType() *graphql.Object {
	report := func(p graphql.ResolveParams) *compliance.Report {
		r, _ := p.Source.(*compliance.Report)
		return r
	}
	checkType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ComplianceCheck",
		Fields: graphql.Fields{
			"checkId": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(compliance.CheckResult); ok {
						return c.CheckID, nil
					}
					return nil, nil
				},
			},
			"description": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(compliance.CheckResult); ok {
						return c.Description, nil
					}
					return nil, nil
				},
			},
			"passed": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(compliance.CheckResult); ok {
						return c.Passed, nil
					}
					return nil, nil
				},
			},
			"detail": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(compliance.CheckResult); ok {
						return c.Detail, nil
					}
					return nil, nil
				},
			},
		},
	})
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "ComplianceReport",
		Fields: graphql.Fields{
			"framework": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return string(r.Framework), nil
					}
					return nil, nil
				},
			},
			"score": &graphql.Field{
				Type: graphql.Float,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.Score, nil
					}
					return nil, nil
				},
			},
			"passed": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.Passed, nil
					}
					return nil, nil
				},
			},
			"failed": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.Failed, nil
					}
					return nil, nil
				},
			},
			"entriesExamined": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.EntriesExamined, nil
					}
					return nil, nil
				},
			},
			"notes": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.Notes, nil
					}
					return nil, nil
				},
			},
			"results": &graphql.Field{
				Type: graphql.NewList(checkType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if r := report(p); r != nil {
						return r.Results, nil
					}
					return nil, nil
				},
			},
		},
	})
}
