package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Serializer converts a Document to and from bytes.
type Serializer interface {
	Encode(doc Document) ([]byte, error)
	Decode(data []byte) (Document, error)
}

// JSONSerializer handles the JSON document format shared by every backend.
type JSONSerializer struct {
	// Indent is used for pretty printing; empty means compact output.
	Indent string
}

// NewJSONSerializer creates a JSON serializer with the given indent.
func NewJSONSerializer(indent string) *JSONSerializer {
	return &JSONSerializer{Indent: indent}
}

// Encode implements Serializer.
func (s *JSONSerializer) Encode(doc Document) ([]byte, error) {
	doc = doc.Clone()
	if s.Indent == "" {
		return json.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", s.Indent)
}

// Decode implements Serializer. Anything that is not a JSON object is
// rejected so that a truncated or foreign file is reported as corrupt.
func (s *JSONSerializer) Decode(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Document{}, errors.New("empty document")
	}
	if trimmed[0] != '{' {
		return Document{}, errors.New("document is not a JSON object")
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Document{}, fmt.Errorf("invalid json: %w", err)
	}
	doc.Normalize()
	return doc, nil
}
