package event

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"eventsim/pkg/errors"
)

//go:embed payload.schema.json
var payloadSchema string

const payloadSchemaURL = "payload.schema.json"

// Payload is the detector's wire shape
type Payload struct {
	EventType  string   `json:"event_type"`
	Confidence string   `json:"confidence"`
	Source     string   `json:"source"`
	Entities   []string `json:"entities"`
	Timestamp  string   `json:"timestamp"`
	Symbol     string   `json:"symbol,omitempty"`
}

// Validator checks inbound payloads against the detection contract.
// It holds only the compiled schema and is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded payload schema
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(payloadSchemaURL, strings.NewReader(payloadSchema)); err != nil {
		return nil, errors.Wrap(err, "add payload schema")
	}
	schema, err := compiler.Compile(payloadSchemaURL)
	if err != nil {
		return nil, errors.Wrap(err, "compile payload schema")
	}
	return &Validator{schema: schema}, nil
}

// MustValidator is NewValidator for package-level wiring and tests
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate turns a raw payload into a DETECTED event without ID.
// Any failure is a *errors.SchemaError.
func (v *Validator) Validate(raw []byte) (*Event, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.NewSchemaError("", "payload is not valid JSON")
	}
	if dec.More() {
		return nil, errors.NewSchemaError("", "trailing data after payload")
	}

	if err := v.schema.Validate(doc); err != nil {
		return nil, schemaErrorFrom(err)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.NewSchemaError("", err.Error())
	}

	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return nil, errors.NewSchemaError("timestamp", "not a well-formed ISO-8601 point in time")
	}

	entities := p.Entities
	if entities == nil {
		entities = []string{}
	}

	ev := &Event{
		Type:       Type(p.EventType),
		Confidence: Confidence(p.Confidence),
		Source:     p.Source,
		Entities:   entities,
		Symbol:     p.Symbol,
		Timestamp:  ts.UTC(),
		State:      StateDetected,
	}
	ev.Fingerprint = Fingerprint(ev.Source, ev.Timestamp, ev.Entities)
	return ev, nil
}

// schemaErrorFrom reduces a jsonschema validation tree to the first failing field
func schemaErrorFrom(err error) *errors.SchemaError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return errors.NewSchemaError("", err.Error())
	}

	leaves := collectLeaves(verr, nil)
	sort.SliceStable(leaves, func(i, j int) bool {
		return leaves[i].InstanceLocation < leaves[j].InstanceLocation
	})
	leaf := leaves[0]

	field := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if i := strings.Index(field, "/"); i >= 0 {
		field = field[:i]
	}
	if field == "" {
		field = missingProperty(leaf.Message)
	}
	return errors.NewSchemaError(field, leaf.Message)
}

func collectLeaves(e *jsonschema.ValidationError, acc []*jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return append(acc, e)
	}
	for _, c := range e.Causes {
		acc = collectLeaves(c, acc)
	}
	return acc
}

// missingProperty extracts the first name from "missing properties: 'a', 'b'"
func missingProperty(msg string) string {
	start := strings.Index(msg, "'")
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], "'")
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
