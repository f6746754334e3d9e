package validate

import (
	"fmt"
	"sync"

	"github.com/liliang-cn/leadgen/internal/domain"
)

// DragState is the visual state of a document drop zone
type DragState int

const (
	NotDragging DragState = iota
	Dragging
)

func (s DragState) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "not_dragging"
}

// MarshalText renders the state by name in JSON responses
func (s DragState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DragEvent is a pointer event over the drop zone
type DragEvent string

const (
	DragEnter DragEvent = "enter"
	DragOver  DragEvent = "over"
	DragLeave DragEvent = "leave"
	DragDrop  DragEvent = "drop"
)

// DropZone tracks whether a file is being dragged over the document input
type DropZone struct {
	mu    sync.Mutex
	state DragState
}

// NewDropZone creates a drop zone in the NotDragging state
func NewDropZone() *DropZone {
	return &DropZone{}
}

// State returns the current drag state
func (z *DropZone) State() DragState {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.state
}

// Handle applies a drag event and returns the new state
func (z *DropZone) Handle(event DragEvent) (DragState, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	switch event {
	case DragEnter, DragOver:
		z.state = Dragging
	case DragLeave, DragDrop:
		z.state = NotDragging
	default:
		return z.state, fmt.Errorf("%w: drag event %q", domain.ErrInvalidRequest, event)
	}
	return z.state, nil
}
