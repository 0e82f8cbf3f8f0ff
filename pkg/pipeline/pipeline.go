// Package pipeline wires the semantic query stages together. A Session is
// created per request: it pins the tenant catalog, the caller, the
// anonymization mapping and the clock, so every stage of one request sees the
// same inputs even if the catalog is reloaded meanwhile.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/intent"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/querybuilder"
	"github.com/ekaya-inc/ekaya-insights/pkg/render"
	"github.com/ekaya-inc/ekaya-insights/pkg/rls"
	"github.com/ekaya-inc/ekaya-insights/pkg/sqlast"
	"github.com/ekaya-inc/ekaya-insights/pkg/validator"
)

// Stage names used in metrics and logs.
const (
	StageSession     = "session"
	StageGuard       = "guard"
	StageExtract     = "extract"
	StageDeanonymize = "deanonymize"
	StageValidate    = "validate"
	StagePolicy      = "policy"
	StageBuild       = "build"
	StageRender      = "render"
)

// ErrNoExtractor is returned by Ask when no intent extractor is configured.
var ErrNoExtractor = errors.New("pipeline: no intent extractor configured")

// CatalogSource returns the current catalog of a tenant. *catalog.Registry
// implements it.
type CatalogSource interface {
	Get(ctx context.Context, tenant string) (*catalog.Catalog, error)
}

// Options are the deployment-wide compile settings.
type Options struct {
	Dialect             render.Dialect
	Parameterize        bool
	DefaultRankingLimit int
	MaxLimit            int
	// Clock returns the time a session is pinned to. Defaults to time.Now.
	Clock func() time.Time
}

// Deps are the collaborators of a Pipeline. Mapper nil disables
// anonymization; Extractor nil disables Ask. Guard nil checks questions
// against the tenant names of Catalogs when it lists them.
type Deps struct {
	Catalogs  CatalogSource
	Mapper    *anonymizer.Mapper
	Extractor intent.Extractor
	Guard     *intent.Guard
	Auditor   *audit.SecurityAuditor
	Logger    *zap.Logger
	Options   Options
}

// Pipeline compiles intents into SQL. It is safe for concurrent use; all
// per-request state lives in Session.
type Pipeline struct {
	catalogs  CatalogSource
	mapper    *anonymizer.Mapper
	extractor intent.Extractor
	guard     *intent.Guard
	resolver  *rls.Resolver
	auditor   *audit.SecurityAuditor
	logger    *zap.Logger
	opts      Options
}

// New creates a pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Catalogs == nil {
		return nil, fmt.Errorf("pipeline: catalog source is required")
	}
	if deps.Options.Dialect == nil {
		return nil, fmt.Errorf("pipeline: dialect is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mapper := deps.Mapper
	if mapper == nil {
		var err error
		if mapper, err = anonymizer.NewMapper(anonymizer.StrategyNone, ""); err != nil {
			return nil, err
		}
	}
	auditor := deps.Auditor
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(logger)
	}
	guard := deps.Guard
	if guard == nil {
		names, _ := deps.Catalogs.(intent.TenantNames)
		guard = intent.NewGuard(names)
	}
	opts := deps.Options
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Pipeline{
		catalogs:  deps.Catalogs,
		mapper:    mapper,
		extractor: deps.Extractor,
		guard:     guard,
		resolver:  rls.NewResolver(),
		auditor:   auditor,
		logger:    logger.Named("pipeline"),
		opts:      opts,
	}, nil
}

// Session is the request-scoped state of one caller's question.
type Session struct {
	ID        uuid.UUID
	Principal *models.Principal
	Now       time.Time

	p       *Pipeline
	catalog *catalog.Catalog
	summary *anonymizer.AnonymizedCatalog
	mapping *anonymizer.Mapping
}

// Result is a compiled statement with what went into it.
type Result struct {
	RequestID uuid.UUID
	Statement *render.Statement
	// Query is the validated intent with real identifiers.
	Query  *models.SemanticQuery
	Policy *rls.Policy
	Tables []string
}

// NewSession pins the principal's tenant catalog and issues a fresh mapping.
func (p *Pipeline) NewSession(ctx context.Context, principal *models.Principal) (*Session, error) {
	id := uuid.New()
	if principal == nil || principal.TenantID == "" {
		p.reject(StageSession, apperrors.KindAccessDenied)
		return nil, apperrors.New(apperrors.KindAccessDenied, "", "", "no authenticated principal")
	}

	cat, err := p.catalogs.Get(ctx, principal.TenantID)
	if err != nil {
		p.reject(StageSession, apperrors.KindOf(err))
		return nil, err
	}
	summary, mapping, err := p.mapper.AnonymizeCatalog(cat)
	if err != nil {
		p.reject(StageSession, apperrors.KindInternal)
		return nil, fmt.Errorf("anonymize catalog: %w", err)
	}

	return &Session{
		ID:        id,
		Principal: principal,
		Now:       p.opts.Clock(),
		p:         p,
		catalog:   cat,
		summary:   summary,
		mapping:   mapping,
	}, nil
}

// Catalog returns the anonymized catalog view for the intent extractor.
func (s *Session) Catalog() *anonymizer.AnonymizedCatalog {
	return s.summary
}

// Mapping returns the session's token mapping. It must not leave the trusted
// boundary.
func (s *Session) Mapping() *anonymizer.Mapping {
	return s.mapping
}

// Compile turns an extracted intent into SQL. Any failure returns a
// structured rejection and no statement.
func (s *Session) Compile(ctx context.Context, raw *models.SemanticQuery) (*Result, error) {
	p := s.p
	start := time.Now()
	subject := audit.SubjectFor(s.ID, s.Principal)
	logger := p.logger.With(
		zap.String("request_id", s.ID.String()),
		zap.String("tenant_id", s.catalog.TenantID()))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if raw == nil {
		p.reject(StageDeanonymize, apperrors.KindInvalidIntent)
		return nil, apperrors.New(apperrors.KindInvalidIntent, "", "", "empty semantic query")
	}

	q, err := anonymizer.Deanonymize(raw, s.mapping)
	if err != nil {
		var unmapped *anonymizer.UnmappedError
		if errors.As(err, &unmapped) {
			details := audit.UnmappedTokenDetails{}
			for _, t := range unmapped.Tokens {
				details.Fields = append(details.Fields, t.Field)
				details.Tokens = append(details.Tokens, t.Token)
			}
			p.auditor.LogUnmappedToken(subject, details)
		}
		p.reject(StageDeanonymize, apperrors.KindOf(err))
		return nil, err
	}

	q, err = validator.Validate(s.catalog, q, validator.Options{MaxLimit: p.opts.MaxLimit})
	if err != nil {
		var verrs *validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, hit := range verrs.Injection {
				p.auditor.LogInjectionAttempt(subject, audit.InjectionDetails{
					Field:       hit.Field,
					Dimension:   hit.Dimension,
					Value:       hit.Value,
					Fingerprint: hit.Fingerprint,
				})
			}
			problems := make([]string, len(verrs.Errors))
			for i, e := range verrs.Errors {
				problems[i] = e.Error()
			}
			p.auditor.LogValidationRejected(subject, problems)
			if len(verrs.Errors) > 0 {
				p.reject(StageValidate, verrs.Errors[0].Kind)
			}
		} else {
			p.reject(StageValidate, apperrors.KindOf(err))
		}
		return nil, err
	}

	policy, err := p.resolver.Resolve(s.catalog, s.Principal)
	if err != nil {
		p.auditor.LogRLSDenied(subject, err.Error())
		p.reject(StagePolicy, apperrors.KindOf(err))
		return nil, err
	}
	scoped := policy.Apply(q)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sel, err := querybuilder.Build(s.catalog, scoped, querybuilder.Options{
		Now:                 s.Now,
		DefaultRankingLimit: p.opts.DefaultRankingLimit,
	})
	if err != nil {
		p.reject(StageBuild, apperrors.KindOf(err))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stmt, err := render.Render(sel, p.opts.Dialect, render.Options{Parameterize: p.opts.Parameterize})
	if err != nil {
		logger.Error("Render failed", zap.Error(err))
		p.reject(StageRender, apperrors.KindInternal)
		return nil, err
	}

	elapsed := time.Since(start)
	tables := qualifiedTables(sel)
	policyFilters := len(scoped.Constraints)

	p.auditor.LogQueryCompiled(subject, audit.CompiledDetails{
		Dialect:       stmt.Dialect,
		SQL:           logging.SanitizeQuery(stmt.SQL),
		Tables:        tables,
		PolicyFilters: policyFilters,
		Parameterized: p.opts.Parameterize,
		Duration:      elapsed.String(),
	})
	QueriesCompiled.WithLabelValues(s.catalog.TenantID(), stmt.Dialect).Inc()
	PolicyFilters.WithLabelValues(s.catalog.TenantID()).Add(float64(policyFilters))
	CompileDuration.WithLabelValues(stmt.Dialect).Observe(elapsed.Seconds())

	logger.Debug("Compiled query",
		zap.String("intent_kind", string(q.Intent)),
		zap.String("primary_metric", q.PrimaryMetric),
		zap.Strings("tables", tables),
		zap.Duration("elapsed", elapsed))

	return &Result{
		RequestID: s.ID,
		Statement: stmt,
		Query:     q,
		Policy:    policy,
		Tables:    tables,
	}, nil
}

// Ask runs the extractor over the anonymized catalog and compiles its answer.
func (p *Pipeline) Ask(ctx context.Context, principal *models.Principal, question string) (*Result, error) {
	if p.extractor == nil {
		return nil, ErrNoExtractor
	}
	s, err := p.NewSession(ctx, principal)
	if err != nil {
		return nil, err
	}

	if err := p.guard.Check(question, principal.TenantID); err != nil {
		kind := apperrors.KindOf(err)
		p.reject(StageGuard, kind)
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			p.auditor.LogQuestionRejected(audit.SubjectFor(s.ID, s.Principal), string(kind), appErr.Identifier)
		}
		return nil, err
	}

	raw, err := p.extractor.Extract(ctx, question, s.Catalog())
	if err != nil {
		Extractions.WithLabelValues("error").Inc()
		p.reject(StageExtract, apperrors.KindOf(err))
		return nil, err
	}
	Extractions.WithLabelValues("ok").Inc()

	return s.Compile(ctx, raw)
}

// qualifiedTables lists schema.table for the fact table and each join.
func qualifiedTables(sel *sqlast.Select) []string {
	refs := sel.Tables()
	out := make([]string, len(refs))
	for i, t := range refs {
		out[i] = t.Schema + "." + t.Name
	}
	return out
}

func (p *Pipeline) reject(stage string, kind apperrors.Kind) {
	QueriesRejected.WithLabelValues(stage, string(kind)).Inc()
}
