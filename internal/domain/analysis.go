package domain

// Flow identifies one of the two independent analysis workflows
type Flow string

const (
	FlowURL      Flow = "url"
	FlowDocument Flow = "document"
)

// ParseFlow maps a route or CLI name to a Flow
func ParseFlow(name string) (Flow, error) {
	switch Flow(name) {
	case FlowURL:
		return FlowURL, nil
	case FlowDocument, "pdf":
		return FlowDocument, nil
	default:
		return "", ErrUnknownFlow
	}
}

// PDFMediaType is the only media type accepted by the document flow
const PDFMediaType = "application/pdf"

// AnalysisResult is the shape of a successful analysis response.
// Both flows share the insight lists; the URL flow fills URL and Title,
// the document flow fills Filename and Metadata.
//
// The three lists are ranked by the backend and must keep their order.
type AnalysisResult struct {
	Summary              string   `json:"summary"`
	ConversationStarters []string `json:"conversation_starters"`
	PainPoints           []string `json:"pain_points"`
	MarketGaps           []string `json:"market_gaps"`

	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`

	Filename string            `json:"filename,omitempty"`
	Metadata *DocumentMetadata `json:"metadata,omitempty"`

	ReportID string `json:"report_id,omitempty"`
}

// DocumentMetadata is the PDF metadata block returned by the document flow.
// Title and Author are optional; an absent value is simply empty.
type DocumentMetadata struct {
	NumPages int    `json:"num_pages"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
}

// PageCount returns the number of pages of an analyzed document, 0 for URL results
func (r *AnalysisResult) PageCount() int {
	if r.Metadata == nil {
		return 0
	}
	return r.Metadata.NumPages
}

// DisplayTitle returns the best available title for rendering
func (r *AnalysisResult) DisplayTitle() string {
	switch {
	case r.Title != "":
		return r.Title
	case r.Metadata != nil && r.Metadata.Title != "":
		return r.Metadata.Title
	case r.Filename != "":
		return r.Filename
	default:
		return r.URL
	}
}

// Source returns the analyzed URL or filename
func (r *AnalysisResult) Source() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Filename
}

// Clone returns a deep copy so snapshots never alias controller state
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	c := *r
	c.ConversationStarters = cloneStrings(r.ConversationStarters)
	c.PainPoints = cloneStrings(r.PainPoints)
	c.MarketGaps = cloneStrings(r.MarketGaps)
	if r.Metadata != nil {
		m := *r.Metadata
		c.Metadata = &m
	}
	return &c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
