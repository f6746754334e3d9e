package domain

// AnalysisRequest is a validated request that is safe to transmit
type AnalysisRequest interface {
	Flow() Flow
	// Describe returns the held input as shown to the user (url or filename)
	Describe() string
}

// URLRequest asks the backend to analyze a web page
type URLRequest struct {
	URL string `json:"url"`
}

func (r URLRequest) Flow() Flow       { return FlowURL }
func (r URLRequest) Describe() string { return r.URL }

// DocumentRequest asks the backend to analyze an uploaded PDF
type DocumentRequest struct {
	Filename  string
	MediaType string
	Content   []byte
}

func (r DocumentRequest) Flow() Flow       { return FlowDocument }
func (r DocumentRequest) Describe() string { return r.Filename }

// DocumentFile is a raw file as handed over by an input method
// (drag and drop, file selection, CLI path) before validation.
type DocumentFile struct {
	Filename  string
	MediaType string
	Content   []byte
}

// Size returns the file size in bytes
func (f *DocumentFile) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Content))
}
