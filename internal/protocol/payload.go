package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"sync"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/action.schema.json
var actionSchemaJSON []byte

var (
	actionSchemaOnce sync.Once
	actionSchema     *jsonschema.Schema
	actionSchemaErr  error
)

// Action is a decoded advance payload. Add is set only for "add".
type Action struct {
	Name string
	Add  *AddAction
}

type AddAction struct {
	StartPosition [3]float64 `json:"start_position"`
	Velocity      [3]float64 `json:"velocity"`
	Mass          *float64   `json:"mass,omitempty"`
	Radius        *float64   `json:"radius,omitempty"`
}

// MassOr returns the requested mass or def when the payload omitted it.
func (a AddAction) MassOr(def float64) float64 {
	if a.Mass == nil {
		return def
	}
	return *a.Mass
}

func (a AddAction) RadiusOr(def float64) float64 {
	if a.Radius == nil {
		return def
	}
	return *a.Radius
}

// HexToString decodes a 0x-prefixed hex payload into a UTF-8 string.
func HexToString(h string) (string, error) {
	b, err := hexutil.Decode(h)
	if err != nil {
		return "", malformed("hex %q: %v", truncate(h, 32), err)
	}
	if !utf8.Valid(b) {
		return "", malformed("payload is not valid utf-8")
	}
	return string(b), nil
}

// StringToHex is the inverse of HexToString.
func StringToHex(s string) string {
	return hexutil.Encode([]byte(s))
}

// DecodeAction hex-decodes, parses and validates an advance payload.
func DecodeAction(h string) (Action, error) {
	s, err := HexToString(h)
	if err != nil {
		return Action{}, err
	}

	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return Action{}, malformed("json: %v", err)
	}
	schema, err := compiledActionSchema()
	if err != nil {
		return Action{}, err
	}
	if err := schema.Validate(doc); err != nil {
		return Action{}, malformed("schema: %v", err)
	}

	// The schema guarantees an object with an "action" key.
	name, _ := doc.(map[string]any)["action"].(string)
	act := Action{Name: name}
	if name != ActionAdd {
		return act, nil
	}
	var add AddAction
	if err := json.Unmarshal([]byte(s), &add); err != nil {
		return Action{}, malformed("add: %v", err)
	}
	act.Add = &add
	return act, nil
}

func compiledActionSchema() (*jsonschema.Schema, error) {
	actionSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("action.schema.json", bytes.NewReader(actionSchemaJSON)); err != nil {
			actionSchemaErr = errors.Wrap(err, "add action schema")
			return
		}
		actionSchema, actionSchemaErr = c.Compile("action.schema.json")
		if actionSchemaErr != nil {
			actionSchemaErr = errors.Wrap(actionSchemaErr, "compile action schema")
		}
	})
	return actionSchema, actionSchemaErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
