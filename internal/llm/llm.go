package llm

import (
	"context"
	"errors"

	"macro-meal-engine/internal/shared"
)

var (
	// ErrMissingAPIKey is returned at request time when no credential is configured.
	ErrMissingAPIKey = errors.New("planning service API key not configured")
	// ErrNoContent is returned when the model answers without any text.
	ErrNoContent = errors.New("no content generated")
)

// Request describes a single structured generation call.
type Request struct {
	Prompt      string
	Temperature float32
	// Schema constrains the JSON response. Nil asks for free-form JSON.
	Schema *Schema
}

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating JSON text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, req Request) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

// SchemaType names a JSON schema node type.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
)

// Schema is a provider-neutral subset of OpenAPI schema used for response constraints.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Required    []string           `json:"required,omitempty"`
}
