package event

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/TheGoodCatalyst/chameleon/errors"
)

// envelopeSchema validates explicit event envelopes on the wire
const envelopeSchema = `{
	"type": "object",
	"required": ["event", "data"],
	"properties": {
		"event": {
			"type": "string",
			"enum": ["status", "ui_delta", "interaction", "blocker", "log"]
		},
		"data": {}
	}
}`

var compiledEnvelopeSchema = func() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		panic("event: compile envelope schema: " + err.Error())
	}
	return schema
}()

// envelope mirrors the explicit wire form for detection
type envelope struct {
	Event *string         `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Parse turns a raw inbound message into a StreamEvent.
//
// Classification, in priority order:
//  1. A JSON object carrying both an "event" kind and a "data" payload is
//     used verbatim after schema validation.
//  2. Anything else that parses as JSON is default-wrapped as a ui_delta
//     event. This is a permissive fallback carried over from the original
//     protocol; correctness for malformed-but-plausible payloads is not
//     guaranteed.
//
// Non-parseable input yields a protocol error; callers report it and drop
// the message without disturbing the stream.
func Parse(raw []byte) (StreamEvent, error) {
	if !json.Valid(raw) {
		return StreamEvent{}, errors.WrapProtocol(errors.ErrMalformedMessage,
			"event", "Parse", "parse message")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Event != nil && env.Data != nil {
		result, err := compiledEnvelopeSchema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return StreamEvent{}, errors.WrapProtocol(err, "event", "Parse", "validate envelope")
		}
		if !result.Valid() {
			return StreamEvent{}, errors.WrapProtocol(
				fmt.Errorf("%w: %s", errors.ErrUnknownEventKind, firstSchemaError(result)),
				"event", "Parse", "validate envelope")
		}
		return StreamEvent{Kind: Kind(*env.Event), Data: env.Data}, nil
	}

	// Permissive default: wrap the whole payload as a ui_delta
	return StreamEvent{Kind: KindUIDelta, Data: json.RawMessage(raw)}, nil
}

// ParseWithKind classifies a message whose event kind was delivered
// out-of-band by the transport (for example a named channel or subject
// token). An explicit envelope inside the payload still takes priority.
func ParseWithKind(kind Kind, raw []byte) (StreamEvent, error) {
	if !json.Valid(raw) {
		return StreamEvent{}, errors.WrapProtocol(errors.ErrMalformedMessage,
			"event", "ParseWithKind", "parse message")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Event != nil && env.Data != nil {
		return Parse(raw)
	}

	if !kind.Valid() {
		return StreamEvent{}, errors.WrapProtocol(
			fmt.Errorf("%w: %q", errors.ErrUnknownEventKind, kind),
			"event", "ParseWithKind", "validate transport kind")
	}

	return StreamEvent{Kind: kind, Data: json.RawMessage(raw)}, nil
}

// firstSchemaError extracts the leading validation failure for reporting
func firstSchemaError(result *gojsonschema.Result) string {
	if len(result.Errors()) == 0 {
		return "schema validation failed"
	}
	return result.Errors()[0].String()
}
