package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/liliang-cn/leadgen/internal/domain"
	"github.com/liliang-cn/leadgen/internal/session"
	"github.com/liliang-cn/leadgen/internal/validate"
	"github.com/liliang-cn/leadgen/internal/workflow"
)

// ErrFlowBusy is returned when a submission is rejected because the flow
// already has one underway
var ErrFlowBusy = errors.New(domain.MsgFlowBusy)

// AnalysisService composes the session identity with the two independent
// analysis flows
type AnalysisService struct {
	sessions *session.Manager
	urlFlow  *workflow.URLController
	docFlow  *workflow.DocumentController
	dropZone *validate.DropZone
	logger   *zap.Logger
}

// NewAnalysisService creates the analysis service. Observers are attached
// to both flows.
func NewAnalysisService(
	analyzer workflow.Analyzer,
	sessions *session.Manager,
	logger *zap.Logger,
	observers ...workflow.Observer,
) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []workflow.Option{workflow.WithLogger(logger)}
	for _, o := range observers {
		opts = append(opts, workflow.WithObserver(o))
	}

	return &AnalysisService{
		sessions: sessions,
		urlFlow:  workflow.NewURLController(analyzer, opts...),
		docFlow:  workflow.NewDocumentController(analyzer, opts...),
		dropZone: validate.NewDropZone(),
		logger:   logger,
	}
}

// SessionID returns the installation's session id
func (s *AnalysisService) SessionID(ctx context.Context) string {
	return s.sessions.GetOrCreateSessionID(ctx)
}

// State returns the snapshot of a flow
func (s *AnalysisService) State(flow domain.Flow) (domain.State, error) {
	switch flow {
	case domain.FlowURL:
		return s.urlFlow.State(), nil
	case domain.FlowDocument:
		return s.docFlow.State(), nil
	default:
		return domain.State{}, domain.ErrUnknownFlow
	}
}

// AnalyzeURL submits a URL and waits for the outcome
func (s *AnalysisService) AnalyzeURL(ctx context.Context, raw string) (domain.State, error) {
	if !s.urlFlow.Submit(ctx, raw, s.SessionID(ctx)) {
		return s.urlFlow.State(), ErrFlowBusy
	}
	return s.urlFlow.State(), nil
}

// AnalyzeDocument submits a document and waits for the outcome
func (s *AnalysisService) AnalyzeDocument(ctx context.Context, file *domain.DocumentFile) (domain.State, error) {
	if !s.docFlow.Submit(ctx, file, s.SessionID(ctx)) {
		return s.docFlow.State(), ErrFlowBusy
	}
	return s.docFlow.State(), nil
}

// SubmitURL starts a URL analysis in the background and returns the
// snapshot right after validation. The submission outlives ctx's
// cancellation; use Cancel to abandon it.
func (s *AnalysisService) SubmitURL(ctx context.Context, raw string) (domain.State, error) {
	bg := context.WithoutCancel(ctx)
	if _, ok := s.urlFlow.SubmitAsync(bg, raw, s.SessionID(ctx)); !ok {
		return s.urlFlow.State(), ErrFlowBusy
	}
	return s.urlFlow.State(), nil
}

// SubmitDocument starts a document analysis in the background, like SubmitURL
func (s *AnalysisService) SubmitDocument(ctx context.Context, file *domain.DocumentFile) (domain.State, error) {
	bg := context.WithoutCancel(ctx)
	if _, ok := s.docFlow.SubmitAsync(bg, file, s.SessionID(ctx)); !ok {
		return s.docFlow.State(), ErrFlowBusy
	}
	return s.docFlow.State(), nil
}

// Drag feeds a drag gesture over the drop area. Drops carry a file and go
// through Drop instead.
func (s *AnalysisService) Drag(event validate.DragEvent) (validate.DragState, error) {
	if event == validate.DragDrop {
		return s.dropZone.State(), fmt.Errorf("%w: drop requires a file", domain.ErrInvalidRequest)
	}
	return s.dropZone.Handle(event)
}

// DragState returns the drop area's highlight state
func (s *AnalysisService) DragState() validate.DragState {
	return s.dropZone.State()
}

// Drop ends a drag gesture and submits the dropped file exactly like an
// explicit selection
func (s *AnalysisService) Drop(ctx context.Context, file *domain.DocumentFile) (domain.State, error) {
	if _, err := s.dropZone.Handle(validate.DragDrop); err != nil {
		return s.docFlow.State(), err
	}
	return s.SubmitDocument(ctx, file)
}

// Reset returns a finished flow to Idle
func (s *AnalysisService) Reset(flow domain.Flow) (domain.State, error) {
	var err error
	switch flow {
	case domain.FlowURL:
		err = s.urlFlow.Reset()
	case domain.FlowDocument:
		err = s.docFlow.Reset()
	default:
		return domain.State{}, domain.ErrUnknownFlow
	}

	state, _ := s.State(flow)
	if err != nil {
		return state, fmt.Errorf("reset %s: %w", flow, err)
	}
	return state, nil
}

// Cancel abandons a flow's in-flight submission
func (s *AnalysisService) Cancel(flow domain.Flow) (domain.State, error) {
	var err error
	switch flow {
	case domain.FlowURL:
		err = s.urlFlow.Cancel()
	case domain.FlowDocument:
		err = s.docFlow.Cancel()
	default:
		return domain.State{}, domain.ErrUnknownFlow
	}

	state, _ := s.State(flow)
	if err != nil {
		return state, fmt.Errorf("cancel %s: %w", flow, err)
	}
	s.logger.Info("Submission cancelled", zap.String("flow", string(flow)))
	return state, nil
}

// Subscribe streams a flow's snapshots. The returned func unsubscribes.
func (s *AnalysisService) Subscribe(flow domain.Flow, buffer int) (<-chan domain.State, func(), error) {
	switch flow {
	case domain.FlowURL:
		ch, stop := s.urlFlow.Subscribe(buffer)
		return ch, stop, nil
	case domain.FlowDocument:
		ch, stop := s.docFlow.Subscribe(buffer)
		return ch, stop, nil
	default:
		return nil, nil, domain.ErrUnknownFlow
	}
}

// Close abandons any in-flight submission
func (s *AnalysisService) Close() {
	_ = s.urlFlow.Cancel()
	_ = s.docFlow.Cancel()
}
