package report

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/dusk-indust/narrative/internal/apperr"
	"github.com/dusk-indust/narrative/internal/engine"
)

// Decode parses and validates a scene report. Collaborator output is often
// slightly malformed JSON: double-encoded strings, unquoted keys, trailing
// commas. Decode tries strict parsing first, then unwraps a JSON string,
// then repairs the input.
func Decode(data []byte) (SceneReport, error) {
	var r SceneReport
	if err := unmarshalFlexible(string(data), &r); err != nil {
		return SceneReport{}, fmt.Errorf("%w: scene report: %v", apperr.ErrInvalidArgument, err)
	}
	if err := r.Validate(); err != nil {
		return SceneReport{}, err
	}
	return r, nil
}

func unmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)
	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w", err)
	}
	return nil
}

// Schema returns the JSON schema of SceneReport, handed to the generation
// collaborator as its structured-output contract.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.ReflectFromType(reflect.TypeOf(SceneReport{}))
}

// SchemaJSON returns Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}

// Apply decodes data and ingests it into eng as one atomic report.
func Apply(ctx context.Context, eng *engine.Engine, data []byte) (engine.IngestResult, error) {
	r, err := Decode(data)
	if err != nil {
		return engine.IngestResult{}, err
	}
	return eng.Ingest(ctx, r.ToEngine())
}
