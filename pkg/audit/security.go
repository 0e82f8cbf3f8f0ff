// Package audit provides security audit logging for SIEM consumption.
// Every pipeline decision that affects what data a caller can see is logged
// as a structured JSON event under the "security_audit" logger.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventUnmappedToken is logged when the intent extractor returns a token
	// that is not in the caller's session mapping.
	EventUnmappedToken SecurityEventType = "unmapped_token"
	// EventSQLInjectionAttempt is logged when libinjection flags a filter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventValidationRejected is logged when an intent fails validation.
	EventValidationRejected SecurityEventType = "validation_rejected"
	// EventRLSDenied is logged when no row-level policy can be resolved.
	EventRLSDenied SecurityEventType = "rls_denied"
	// EventQuestionRejected is logged when a question is refused before it
	// reaches the intent extractor.
	EventQuestionRejected SecurityEventType = "question_rejected"
	// EventQueryCompiled is logged for every SQL statement handed out.
	EventQueryCompiled SecurityEventType = "query_compiled"
)

// Severity levels, mapped onto zap levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Subject identifies the request an event belongs to.
type Subject struct {
	RequestID uuid.UUID
	TenantID  string
	UserID    string
	Role      string
}

// SubjectFor builds a Subject from a principal. A nil principal yields a
// subject with only the request ID.
func SubjectFor(requestID uuid.UUID, p *models.Principal) Subject {
	s := Subject{RequestID: requestID}
	if p != nil {
		s.TenantID = p.TenantID
		s.UserID = p.UserID
		s.Role = p.Role
	}
	return s
}

// SecurityEvent is the JSON document written to event_json.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID uuid.UUID         `json:"request_id"`
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"`
}

// UnmappedTokenDetails lists the tokens that could not be resolved.
type UnmappedTokenDetails struct {
	Fields []string `json:"fields"`
	Tokens []string `json:"tokens"`
}

// InjectionDetails describes a flagged filter value.
type InjectionDetails struct {
	Field       string `json:"field"`
	Dimension   string `json:"dimension"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// CompiledDetails describes a statement the pipeline produced. SQL is
// expected to be sanitized by the caller.
type CompiledDetails struct {
	Dialect       string   `json:"dialect"`
	SQL           string   `json:"sql"`
	Tables        []string `json:"tables"`
	PolicyFilters int      `json:"policy_filters"`
	Parameterized bool     `json:"parameterized"`
	Duration      string   `json:"duration"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates an auditor logging under "security_audit".
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogUnmappedToken records tokens that did not resolve. The request is
// rejected, and the event may indicate a tampered or replayed intent.
func (a *SecurityAuditor) LogUnmappedToken(s Subject, details UnmappedTokenDetails) {
	a.emit(s, EventUnmappedToken, SeverityWarning, details, "Unmapped token in intent",
		zap.Strings("tokens", details.Tokens))
}

// LogInjectionAttempt records a filter value that libinjection flagged.
func (a *SecurityAuditor) LogInjectionAttempt(s Subject, details InjectionDetails) {
	a.emit(s, EventSQLInjectionAttempt, SeverityCritical, details, "SQL injection attempt detected",
		zap.String("field", details.Field),
		zap.String("dimension", details.Dimension),
		zap.String("fingerprint", details.Fingerprint))
}

// LogValidationRejected records the problems that caused a rejection.
func (a *SecurityAuditor) LogValidationRejected(s Subject, problems []string) {
	a.emit(s, EventValidationRejected, SeverityWarning, map[string]any{"problems": problems},
		"Semantic query rejected",
		zap.Int("problem_count", len(problems)))
}

// LogRLSDenied records a caller for whom no row-level policy applies.
func (a *SecurityAuditor) LogRLSDenied(s Subject, reason string) {
	a.emit(s, EventRLSDenied, SeverityCritical, map[string]string{"reason": reason},
		"Row-level policy denied request",
		zap.String("reason", reason))
}

// LogQuestionRejected records a question refused before extraction. The
// question text is not logged.
func (a *SecurityAuditor) LogQuestionRejected(s Subject, kind, reason string) {
	severity := SeverityInfo
	if kind == "access_denied" {
		severity = SeverityWarning
	}
	a.emit(s, EventQuestionRejected, severity, map[string]string{"kind": kind, "reason": reason},
		"Question rejected before extraction",
		zap.String("kind", kind))
}

// LogQueryCompiled records a statement handed to the execution layer.
func (a *SecurityAuditor) LogQueryCompiled(s Subject, details CompiledDetails) {
	a.emit(s, EventQueryCompiled, SeverityInfo, details, "Query compiled",
		zap.String("dialect", details.Dialect),
		zap.Strings("tables", details.Tables),
		zap.Int("policy_filters", details.PolicyFilters))
}

func (a *SecurityAuditor) emit(s Subject, eventType SecurityEventType, severity string, details any, msg string, extra ...zap.Field) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: s.RequestID,
		TenantID:  s.TenantID,
		UserID:    s.UserID,
		Role:      s.Role,
		Details:   details,
		Severity:  severity,
	}

	// Marshaling these types cannot fail.
	eventJSON, _ := json.Marshal(event)

	fields := append([]zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", s.RequestID.String()),
		zap.String("tenant_id", s.TenantID),
		zap.String("user_id", s.UserID),
		zap.String("severity", severity),
	}, extra...)

	if ce := a.logger.Check(levelFor(severity), msg); ce != nil {
		ce.Write(fields...)
	}
}

func levelFor(severity string) zapcore.Level {
	switch severity {
	case SeverityCritical:
		return zapcore.ErrorLevel
	case SeverityWarning:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
