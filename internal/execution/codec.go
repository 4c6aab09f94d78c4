package execution

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed response.schema.json
var responseSchemaSource string

const responseSchemaURL = "mem://execution/response.schema.json"

var (
	responseSchemaOnce sync.Once
	responseSchema     *jsonschema.Schema
	responseSchemaErr  error
)

func compiledResponseSchema() (*jsonschema.Schema, error) {
	responseSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(responseSchemaURL, strings.NewReader(responseSchemaSource)); err != nil {
			responseSchemaErr = fmt.Errorf("load response schema: %w", err)
			return
		}
		responseSchema, responseSchemaErr = compiler.Compile(responseSchemaURL)
	})
	return responseSchema, responseSchemaErr
}

// EncodeRequest renders a request envelope for the wire.
func EncodeRequest(envelope RequestEnvelope) ([]byte, error) {
	return json.Marshal(envelope)
}

// DecodeRequest parses a request envelope received by a worker.
func DecodeRequest(data []byte) (RequestEnvelope, error) {
	var envelope RequestEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return RequestEnvelope{}, fmt.Errorf("decode execution request: %w", err)
	}
	return envelope, nil
}

// EncodeResponse renders a response envelope for the wire.
func EncodeResponse(envelope ResponseEnvelope) ([]byte, error) {
	return json.Marshal(envelope)
}

// DecodeResponse validates data against the response schema and parses it.
func DecodeResponse(data []byte) (ResponseEnvelope, error) {
	schema, err := compiledResponseSchema()
	if err != nil {
		return ResponseEnvelope{}, err
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return ResponseEnvelope{}, fmt.Errorf("decode execution response: %w", err)
	}
	if err := schema.Validate(document); err != nil {
		return ResponseEnvelope{}, fmt.Errorf("invalid execution response: %w", err)
	}

	var envelope ResponseEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ResponseEnvelope{}, fmt.Errorf("decode execution response: %w", err)
	}
	return envelope, nil
}
