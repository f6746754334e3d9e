package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/liliang-cn/leadgen/internal/domain"
	"github.com/liliang-cn/leadgen/internal/repository"
	"github.com/liliang-cn/leadgen/internal/session"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ReportSource is the backend's view of a session's reports and quota,
// plus the email drafting built on a report
type ReportSource interface {
	Reports(ctx context.Context, sessionID string, limit int) ([]domain.RemoteReport, error)
	Usage(ctx context.Context, sessionID string) (*domain.Usage, error)
	GenerateEmail(ctx context.Context, content, starter string) (*domain.EmailDraft, error)
}

// HistoryService keeps local history of successful analyses and serves
// cached usage and report lookups from the backend
type HistoryService struct {
	reports  *repository.ReportRepository
	source   ReportSource
	sessions *session.Manager
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(
	reports *repository.ReportRepository,
	source ReportSource,
	sessions *session.Manager,
	ttl time.Duration,
	logger *zap.Logger,
) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		reports:  reports,
		source:   source,
		sessions: sessions,
		cache:    cache.New(ttl, 2*ttl),
		logger:   logger,
	}
}

// Record stores a successful analysis. It is meant to be registered as a
// flow observer; other phases are ignored.
func (s *HistoryService) Record(state domain.State) {
	if state.Phase != domain.PhaseSuccess || state.Result == nil {
		return
	}

	ctx := context.Background()
	result, err := json.Marshal(state.Result)
	if err != nil {
		s.logger.Warn("Failed to encode analysis result", zap.Error(err))
		return
	}

	sessionID := s.sessions.GetOrCreateSessionID(ctx)
	report := &domain.Report{
		SessionID: sessionID,
		Flow:      state.Flow,
		Source:    state.Result.Source(),
		Title:     state.Result.DisplayTitle(),
		Summary:   state.Result.Summary,
		ReportID:  state.Result.ReportID,
		Result:    result,
	}
	if report.Source == "" {
		report.Source = state.Input
	}

	if err := s.reports.Create(ctx, report); err != nil {
		s.logger.Warn("Failed to record analysis", zap.String("flow", string(state.Flow)), zap.Error(err))
		return
	}

	// a new report changes the backend's usage counters and report list
	s.invalidate(sessionID)
	s.logger.Debug("Recorded analysis", zap.String("id", report.ID), zap.String("flow", string(state.Flow)))
}

// List returns the newest local history entries of this installation
func (s *HistoryService) List(ctx context.Context, limit int) ([]*domain.Report, error) {
	return s.reports.ListBySession(ctx, s.sessions.GetOrCreateSessionID(ctx), clampLimit(limit))
}

// Get returns a local history entry with its decoded result
func (s *HistoryService) Get(ctx context.Context, id string) (*domain.Report, *domain.AnalysisResult, error) {
	report, err := s.reports.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	result, err := report.Decode()
	if err != nil {
		return nil, nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return report, result, nil
}

// Usage returns the backend's usage view for this installation
func (s *HistoryService) Usage(ctx context.Context) (*domain.Usage, error) {
	sessionID := s.sessions.GetOrCreateSessionID(ctx)
	key := usageKey(sessionID)
	if v, ok := s.cache.Get(key); ok {
		return v.(*domain.Usage), nil
	}

	usage, err := s.source.Usage(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, usage, cache.DefaultExpiration)
	return usage, nil
}

// RemoteReports returns the reports the backend holds for this installation
func (s *HistoryService) RemoteReports(ctx context.Context, limit int) ([]domain.RemoteReport, error) {
	sessionID := s.sessions.GetOrCreateSessionID(ctx)
	limit = clampLimit(limit)
	key := reportsKeyPrefix(sessionID) + strconv.Itoa(limit)
	if v, ok := s.cache.Get(key); ok {
		return v.([]domain.RemoteReport), nil
	}

	reports, err := s.source.Reports(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, reports, cache.DefaultExpiration)
	return reports, nil
}

// DraftEmail drafts an outreach email from a history entry's summary and
// the conversation starter at starterIndex (0-based)
func (s *HistoryService) DraftEmail(ctx context.Context, id string, starterIndex int) (*domain.EmailDraft, error) {
	_, result, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if starterIndex < 0 || starterIndex >= len(result.ConversationStarters) {
		return nil, fmt.Errorf("%w: report %s has no conversation starter %d", domain.ErrInvalidRequest, id, starterIndex)
	}
	if strings.TrimSpace(result.Summary) == "" {
		return nil, fmt.Errorf("%w: report %s has no summary", domain.ErrInvalidRequest, id)
	}

	draft, err := s.source.GenerateEmail(ctx, result.Summary, result.ConversationStarters[starterIndex])
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Drafted email", zap.String("report", id), zap.Int("starter", starterIndex))
	return draft, nil
}

// invalidate drops every cached lookup of a session
func (s *HistoryService) invalidate(sessionID string) {
	s.cache.Delete(usageKey(sessionID))
	prefix := reportsKeyPrefix(sessionID)
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}

func reportsKeyPrefix(sessionID string) string {
	return "reports:" + sessionID + ":"
}

func usageKey(sessionID string) string {
	return "usage:" + sessionID
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
