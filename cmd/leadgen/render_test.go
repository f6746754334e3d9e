package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/leadgen/internal/domain"
)

func TestRenderState_URLSuccess(t *testing.T) {
	var buf bytes.Buffer
	renderState(&buf, domain.State{
		Flow:  domain.FlowURL,
		Phase: domain.PhaseSuccess,
		Result: &domain.AnalysisResult{
			URL:                  "https://acme.example",
			Title:                "Acme",
			Summary:              "Acme sells anvils.",
			ConversationStarters: []string{"first", "second"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Acme\nhttps://acme.example\n")
	assert.Contains(t, out, "Acme sells anvils.")
	assert.Contains(t, out, "1. first\n2. second\n")
	assert.Contains(t, out, "Pain Points\n-----------\n(none)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("first")), bytes.Index(buf.Bytes(), []byte("second")))
}

func TestRenderState_DocumentSuccess(t *testing.T) {
	var buf bytes.Buffer
	renderState(&buf, domain.State{
		Flow:  domain.FlowDocument,
		Phase: domain.PhaseSuccess,
		Result: &domain.AnalysisResult{
			Filename: "deck.pdf",
			Metadata: &domain.DocumentMetadata{NumPages: 12},
			Summary:  "A pitch deck.",
		},
	})

	out := buf.String()
	assert.Contains(t, out, "deck.pdf\n12 pages\n")
	assert.NotContains(t, out, "·")
}

func TestPrintState_Failed(t *testing.T) {
	var buf bytes.Buffer
	err := printState(&buf, domain.State{
		Flow:  domain.FlowURL,
		Phase: domain.PhaseFailed,
		Error: &domain.ErrorInfo{Kind: domain.ErrorKindBackend, Message: "Rate limit exceeded"},
	})

	require.Error(t, err)
	var failed *failedError
	assert.True(t, errors.As(err, &failed))
	assert.Equal(t, "Error: Rate limit exceeded\n", buf.String())
}

func TestRenderEmail(t *testing.T) {
	var buf bytes.Buffer
	renderEmail(&buf, &domain.EmailDraft{Subject: "Anvils", Body: "Hi Acme,\n\nLet's talk.\n\n"})
	assert.Equal(t, "Subject: Anvils\n\nHi Acme,\n\nLet's talk.\n", buf.String())
}
