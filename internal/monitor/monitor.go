// Package monitor records security threats, accumulates them per source, escalates when a
// source crosses a type's alert threshold and decides whether a source should be blocked.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"accessguard/internal/audit"
	auditdomain "accessguard/internal/audit/domain"
	"accessguard/internal/monitor/domain"
	threatrepo "accessguard/internal/monitor/repository"
	"accessguard/internal/platform/apperr"
	"accessguard/internal/platform/schedule"
	"accessguard/internal/telemetry"
	"accessguard/internal/telemetry/metrics"
)

// ErrInvalidTimeframe is returned by Metrics for an unknown window name.
var ErrInvalidTimeframe = errors.New("monitor: unknown timeframe")

// unknownSource stands in for a report without a source.
const unknownSource = "unknown"

// topSourceLimit bounds the source ranking in ThreatMetrics.
const topSourceLimit = 10

// Timeframe names a metrics lookback window.
type Timeframe string

const (
	TimeframeHour  Timeframe = "hour"
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// Lookback returns the window length of tf. Empty means a day.
func (tf Timeframe) Lookback() (time.Duration, error) {
	switch tf {
	case TimeframeHour:
		return time.Hour, nil
	case TimeframeDay, "":
		return 24 * time.Hour, nil
	case TimeframeWeek:
		return 7 * 24 * time.Hour, nil
	case TimeframeMonth:
		return 30 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeframe, string(tf))
}

// ThreatReport is the input to Report. An empty Severity is derived from Type.
type ThreatReport struct {
	Type        domain.ThreatType
	Source      string
	Description string
	Metadata    map[string]any
	Severity    domain.Severity
}

// SourceCount is one entry of the top-sources ranking.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// ThreatMetrics summarizes threats reported within a window.
type ThreatMetrics struct {
	Timeframe      Timeframe                 `json:"timeframe"`
	Since          time.Time                 `json:"since"`
	Total          int                       `json:"total"`
	ByType         map[domain.ThreatType]int `json:"byType"`
	BySeverity     map[domain.Severity]int   `json:"bySeverity"`
	TopSources     []SourceCount             `json:"topSources"`
	Resolved       int                       `json:"resolved"`
	MeanResolution time.Duration             `json:"meanResolution"`
}

// Options configures a Monitor. Zero fields take the defaults below.
type Options struct {
	BlockCeiling      int           // total threats above which a source is blocked, default 50
	ResolvedRetention time.Duration // resolved threats kept this long, default 30 days
	SourceIdle        time.Duration // idle time before a low-count source is dropped, default 24h
	SourceKeepCount   int           // sources with at least this many threats are never dropped, default 5
	SweepInterval     time.Duration // default 1 hour
}

func (o Options) withDefaults() Options {
	if o.BlockCeiling < 1 {
		o.BlockCeiling = 50
	}
	if o.ResolvedRetention <= 0 {
		o.ResolvedRetention = 30 * 24 * time.Hour
	}
	if o.SourceIdle <= 0 {
		o.SourceIdle = 24 * time.Hour
	}
	if o.SourceKeepCount < 1 {
		o.SourceKeepCount = 5
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Hour
	}
	return o
}

// Deps are the optional collaborators of a Monitor. Any field may be nil.
type Deps struct {
	Audit     audit.Recorder
	Repo      threatrepo.Repository
	Policy    *BlockPolicy
	Escalator Escalator
	Events    telemetry.EventEmitter
}

// Monitor owns the threat table and the suspicious-source records. Safe for concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	threats map[string]*domain.Threat
	sources map[string]*domain.SourceRecord

	deps Deps
	opts Options
	now  func() time.Time

	taskMu sync.Mutex
	task   *schedule.Task
}

// New returns an empty Monitor.
func New(deps Deps, opts Options) *Monitor {
	return &Monitor{
		threats: make(map[string]*domain.Threat),
		sources: make(map[string]*domain.SourceRecord),
		deps:    deps,
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

// Report records a threat, folds it into its source record and escalates when the source's
// count for the type reaches that type's threshold. Each crossing escalates exactly once.
func (m *Monitor) Report(ctx context.Context, r ThreatReport) (*domain.Threat, error) {
	if strings.TrimSpace(string(r.Type)) == "" {
		return nil, apperr.Validation("threat type is required")
	}
	sev := r.Severity
	if sev == "" {
		sev = domain.SeverityFor(r.Type)
	} else if !sev.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("unknown severity %q", string(sev)))
	}
	source := strings.TrimSpace(r.Source)
	if source == "" {
		source = unknownSource
	}
	t := &domain.Threat{
		ID:          ulid.Make().String(),
		Type:        r.Type,
		Severity:    sev,
		Source:      source,
		Description: r.Description,
		Metadata:    r.Metadata,
		Timestamp:   m.now().UTC(),
	}
	t = t.Clone()

	m.mu.Lock()
	rec, ok := m.sources[source]
	if !ok {
		rec = &domain.SourceRecord{Source: source}
		m.sources[source] = rec
	}
	count := rec.Observe(t)
	m.threats[t.ID] = t
	snapshot := rec.Clone()
	out := t.Clone()
	m.mu.Unlock()

	metrics.ThreatReported(string(out.Type), string(out.Severity))
	if m.deps.Repo != nil {
		if err := m.deps.Repo.Save(ctx, out); err != nil {
			log.Printf("monitor: failed to persist threat %s: %v", out.ID, err)
		}
	}
	m.record(ctx, auditdomain.Event{
		Action:      auditdomain.ActionThreatReported,
		EntityType:  auditdomain.EntityThreat,
		EntityID:    out.ID,
		ActorID:     auditdomain.SystemActor,
		IPAddress:   source,
		Description: fmt.Sprintf("%s threat (%s) from %s: %s", out.Type, out.Severity, source, out.Description),
		Metadata: map[string]any{
			"type":     string(out.Type),
			"severity": string(out.Severity),
			"source":   source,
			"details":  out.Metadata,
		},
	})
	telemetry.EmitAsync(m.deps.Events, ctx, &telemetry.SecurityEvent{
		ID:         out.ID,
		EventType:  telemetry.EventThreatReported,
		Source:     source,
		Severity:   string(out.Severity),
		ThreatType: string(out.Type),
		CreatedAt:  out.Timestamp,
	})

	if threshold := domain.Threshold(out.Type); count == threshold {
		m.escalate(ctx, Escalation{Threat: out, Source: snapshot, Count: count, Threshold: threshold})
	}
	return out, nil
}

func (m *Monitor) escalate(ctx context.Context, e Escalation) {
	metrics.Escalated(string(e.Threat.Type))
	LogEscalator{}.Escalate(ctx, e)
	if m.deps.Escalator != nil {
		m.deps.Escalator.Escalate(ctx, e)
	}
}

// ShouldBlock reports whether source has triggered a critical-class threat or exceeded the
// total ceiling. The Rego policy decides when configured; the built-in rule covers its absence
// and evaluation errors.
func (m *Monitor) ShouldBlock(ctx context.Context, source string) bool {
	m.mu.RLock()
	rec := m.sources[strings.TrimSpace(source)].Clone()
	m.mu.RUnlock()
	if rec == nil {
		return false
	}
	if m.deps.Policy != nil {
		block, err := m.deps.Policy.Decide(ctx, rec)
		if err == nil {
			return block
		}
		log.Printf("monitor: block policy failed for %s, using built-in rule: %v", rec.Source, err)
	}
	return fallbackBlock(rec, m.opts.BlockCeiling)
}

// Metrics summarizes the threats whose timestamp falls within the timeframe.
func (m *Monitor) Metrics(tf Timeframe) (*ThreatMetrics, error) {
	lookback, err := tf.Lookback()
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if tf == "" {
		tf = TimeframeDay
	}
	since := m.now().UTC().Add(-lookback)
	out := &ThreatMetrics{
		Timeframe:  tf,
		Since:      since,
		ByType:     make(map[domain.ThreatType]int),
		BySeverity: make(map[domain.Severity]int),
	}
	bySource := make(map[string]int)
	var resolution time.Duration

	m.mu.RLock()
	for _, t := range m.threats {
		if t.Timestamp.Before(since) {
			continue
		}
		out.Total++
		out.ByType[t.Type]++
		out.BySeverity[t.Severity]++
		bySource[t.Source]++
		if t.Resolved && t.ResolvedAt != nil {
			out.Resolved++
			resolution += t.ResolvedAt.Sub(t.Timestamp)
		}
	}
	m.mu.RUnlock()

	if out.Resolved > 0 {
		out.MeanResolution = resolution / time.Duration(out.Resolved)
	}
	out.TopSources = rankSources(bySource, topSourceLimit)
	return out, nil
}

func rankSources(counts map[string]int, n int) []SourceCount {
	out := make([]SourceCount, 0, len(counts))
	for s, c := range counts {
		out = append(out, SourceCount{Source: s, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Source < out[j].Source
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Resolve marks threat id resolved by resolvedBy. It reports false when id is unknown or the
// threat was already resolved.
func (m *Monitor) Resolve(ctx context.Context, id, resolvedBy string) (bool, error) {
	if strings.TrimSpace(resolvedBy) == "" {
		return false, apperr.Validation("resolver is required")
	}
	at := m.now().UTC()
	m.mu.Lock()
	t, ok := m.threats[id]
	if !ok || t.Resolved {
		m.mu.Unlock()
		return false, nil
	}
	t.Resolved = true
	t.ResolvedAt = &at
	t.ResolvedBy = resolvedBy
	out := t.Clone()
	m.mu.Unlock()

	if m.deps.Repo != nil {
		if _, err := m.deps.Repo.MarkResolved(ctx, id, resolvedBy, at); err != nil {
			log.Printf("monitor: failed to persist resolution of %s: %v", id, err)
		}
	}
	m.record(ctx, auditdomain.Event{
		Action:      auditdomain.ActionThreatResolved,
		EntityType:  auditdomain.EntityThreat,
		EntityID:    id,
		ActorID:     resolvedBy,
		Description: fmt.Sprintf("%s threat from %s resolved", out.Type, out.Source),
		Before:      map[string]any{"resolved": false},
		After:       map[string]any{"resolved": true, "resolved_by": resolvedBy},
	})
	telemetry.EmitAsync(m.deps.Events, ctx, &telemetry.SecurityEvent{
		ID:         id,
		EventType:  telemetry.EventThreatResolved,
		Source:     out.Source,
		Severity:   string(out.Severity),
		ThreatType: string(out.Type),
		IdentityID: resolvedBy,
		CreatedAt:  at,
	})
	return true, nil
}

// Get returns a copy of threat id, or nil.
func (m *Monitor) Get(id string) *domain.Threat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threats[id].Clone()
}

// Active returns the unresolved threats, newest first.
func (m *Monitor) Active() []*domain.Threat {
	m.mu.RLock()
	out := make([]*domain.Threat, 0, len(m.threats))
	for _, t := range m.threats {
		if !t.Resolved {
			out = append(out, t.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Source returns a copy of the record for source, or nil.
func (m *Monitor) Source(source string) *domain.SourceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sources[source].Clone()
}

// TopSources returns up to n source records with the highest totals.
func (m *Monitor) TopSources(n int) []*domain.SourceRecord {
	m.mu.RLock()
	out := make([]*domain.SourceRecord, 0, len(m.sources))
	for _, r := range m.sources {
		out = append(out, r.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Source < out[j].Source
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Cleanup drops resolved threats past the retention window and idle low-count sources. A
// critical source is never dropped, so its block outlives the idle window.
// Candidates are picked from a read-locked snapshot and rechecked under the write lock.
func (m *Monitor) Cleanup(ctx context.Context) (threats, sources int) {
	now := m.now().UTC()
	threatCutoff := now.Add(-m.opts.ResolvedRetention)
	idleCutoff := now.Add(-m.opts.SourceIdle)
	staleThreat := func(t *domain.Threat) bool {
		return t.Resolved && t.ResolvedAt != nil && t.ResolvedAt.Before(threatCutoff)
	}
	staleSource := func(r *domain.SourceRecord) bool {
		return !r.Critical && r.LastSeen.Before(idleCutoff) && r.Count < m.opts.SourceKeepCount
	}

	var threatIDs, sourceIDs []string
	m.mu.RLock()
	for id, t := range m.threats {
		if staleThreat(t) {
			threatIDs = append(threatIDs, id)
		}
	}
	for s, r := range m.sources {
		if staleSource(r) {
			sourceIDs = append(sourceIDs, s)
		}
	}
	m.mu.RUnlock()

	if len(threatIDs) > 0 || len(sourceIDs) > 0 {
		m.mu.Lock()
		for _, id := range threatIDs {
			if t, ok := m.threats[id]; ok && staleThreat(t) {
				delete(m.threats, id)
				threats++
			}
		}
		for _, s := range sourceIDs {
			if r, ok := m.sources[s]; ok && staleSource(r) {
				delete(m.sources, s)
				sources++
			}
		}
		m.mu.Unlock()
	}

	if m.deps.Repo != nil {
		if _, err := m.deps.Repo.DeleteResolvedBefore(ctx, threatCutoff); err != nil {
			log.Printf("monitor: failed to prune stored threats: %v", err)
		}
	}
	return threats, sources
}

// Restore loads threats from the repository that are newer than the retention window and
// rebuilds the source records from them. Threats already in memory are kept.
func (m *Monitor) Restore(ctx context.Context) (int, error) {
	if m.deps.Repo == nil {
		return 0, nil
	}
	list, err := m.deps.Repo.ListSince(ctx, m.now().UTC().Add(-m.opts.ResolvedRetention))
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range list {
		if _, ok := m.threats[t.ID]; ok {
			continue
		}
		t = t.Clone()
		m.threats[t.ID] = t
		rec, ok := m.sources[t.Source]
		if !ok {
			rec = &domain.SourceRecord{Source: t.Source}
			m.sources[t.Source] = rec
		}
		rec.Observe(t)
		n++
	}
	return n, nil
}

// Start runs Cleanup every SweepInterval until Stop or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.taskMu.Lock()
	defer m.taskMu.Unlock()
	if m.task != nil {
		return
	}
	m.task = schedule.Every(ctx, "monitor-cleanup", m.opts.SweepInterval, func(ctx context.Context) {
		threats, sources := m.Cleanup(ctx)
		if threats > 0 || sources > 0 {
			log.Printf("monitor: cleanup dropped %d resolved threats and %d idle sources", threats, sources)
		}
	})
}

// Stop halts the cleanup task and waits for an in-flight pass.
func (m *Monitor) Stop() {
	m.taskMu.Lock()
	t := m.task
	m.task = nil
	m.taskMu.Unlock()
	t.Stop()
}

func (m *Monitor) record(ctx context.Context, e auditdomain.Event) {
	if m.deps.Audit != nil {
		m.deps.Audit.Record(ctx, e)
	}
}
