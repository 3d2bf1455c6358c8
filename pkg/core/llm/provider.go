package llm

import (
	"context"
	"fmt"
	"strings"
)

// Mode is the output form a request expects back.
type Mode int

const (
	ModeText Mode = iota
	ModeJSON
)

func (m Mode) String() string {
	if m == ModeJSON {
		return "json"
	}
	return "text"
}

// Blob is an inline document passed to providers that can read files natively.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Request is one call to the reasoning service.
type Request struct {
	SystemPrompt string
	Instruction  string
	// Context is plain text appended after the instruction (document text, data slices).
	Context  string
	Document *Blob
	Mode     Mode
}

// UserText joins the instruction and its context into a single user turn.
func (r Request) UserText() string {
	if strings.TrimSpace(r.Context) == "" {
		return r.Instruction
	}
	return r.Instruction + "\n\n" + r.Context
}

// Provider is the interface for all LLM providers.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// DocumentProvider is implemented by providers that accept inline documents.
type DocumentProvider interface {
	Provider
	SupportsDocument(mimeType string) bool
}

// AcceptsDocument reports whether p can take a document of the given type inline.
func AcceptsDocument(p Provider, mimeType string) bool {
	dp, ok := p.(DocumentProvider)
	return ok && dp.SupportsDocument(mimeType)
}

// StatusError is a non-2xx response from an HTTP provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Provider, e.Code, e.Body)
}
