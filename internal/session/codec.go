package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrParse marks malformed JSON. Callers check it with errors.Is and refuse
// to overwrite good in-memory state when it fires.
var ErrParse = errors.New("session: malformed document")

var validate = validator.New()

// Serialize renders the document as pretty-printed JSON, the same text that
// is written to the external file.
func Serialize(doc *Document) (string, error) {
	if doc == nil {
		return "", errors.New("document is nil")
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	return string(payload), nil
}

// Deserialize parses document text, applies defaults and validates the
// skeleton. Malformed JSON and shape violations both report ErrParse.
func Deserialize(text []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(text, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	doc.ApplyDefaults()

	if err := validate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return &doc, nil
}
