/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package schema

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Error reports a document that failed validation against its declared schema.
// Path points at the first failing node.
type Error struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("schema violation at %q: %s", e.Path, e.Message)
}

// Validator validates documents against a compiled JSON Schema.
// The schema itself is opaque to the caller: it may come from a file, an URL
// or an inline JSON string.
type Validator struct {
	source string
	schema *gojsonschema.Schema
}

// NewValidator compiles a JSON Schema from its source reference.
// The source is interpreted as inline JSON when it starts with "{", as a
// remote reference when it carries a scheme, and as a local file path
// otherwise.
func NewValidator(source string) (*Validator, error) {
	loader, err := loaderFor(source)
	if err != nil {
		return nil, err
	}

	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %q: %w", source, err)
	}

	return &Validator{source: source, schema: compiled}, nil
}

// Source returns the schema reference this validator was built from.
func (v *Validator) Source() string {
	return v.source
}

// Validate checks a decoded JSON document against the schema.
// Returns a *Error carrying the path of the first failing node, or nil when
// the document conforms.
func (v *Validator) Validate(doc map[string]any) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]

	return &Error{
		Path:    first.Field(),
		Message: first.Description(),
	}
}

// loaderFor picks the gojsonschema loader matching the source form.
func loaderFor(source string) (gojsonschema.JSONLoader, error) {
	trimmed := strings.TrimSpace(source)

	switch {
	case trimmed == "":
		return nil, fmt.Errorf("empty schema source")

	case strings.HasPrefix(trimmed, "{"):
		return gojsonschema.NewStringLoader(trimmed), nil

	case strings.Contains(trimmed, "://"):
		return gojsonschema.NewReferenceLoader(trimmed), nil

	default:
		abs, err := filepath.Abs(trimmed)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve schema path %q: %w", trimmed, err)
		}

		return gojsonschema.NewReferenceLoader("file://" + abs), nil
	}
}
