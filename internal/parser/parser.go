package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

const fence = "```"

var (
	lazyObject   = regexp.MustCompile(`(?s)\{.*?\}`)
	greedyObject = regexp.MustCompile(`(?s)\{.*\}`)
)

// Parse extracts a JSON object from a free-text model reply
func Parse(reply string) (models.FieldMap, error) {
	for _, candidate := range candidates(reply) {
		m, err := decode(candidate)
		if err == nil {
			return m, nil
		}
		slog.Debug("Candidate JSON rejected", "err", err, "length", len(candidate))
	}
	return nil, apperr.Unparsable(reply, errors.New("no candidate decoded as a JSON object"))
}

// candidates returns the spans worth decoding in priority order. Only the
// first rule that matches contributes, except for the pattern search, which
// tries the lazy span before the greedy one.
func candidates(reply string) []string {
	if i := strings.Index(reply, fence+"json"); i >= 0 {
		rest := reply[i+len(fence)+len("json"):]
		if j := strings.Index(rest, fence); j >= 0 {
			rest = rest[:j]
		}
		return []string{rest}
	}

	if i := strings.Index(reply, fence); i >= 0 {
		rest := reply[i+len(fence):]
		if j := strings.Index(rest, fence); j >= 0 {
			rest = rest[:j]
		}
		return []string{rest}
	}

	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(trimmed, "{") {
		if end := strings.LastIndex(trimmed, "}"); end >= 0 {
			return []string{trimmed[:end+1]}
		}
		return []string{trimmed}
	}

	var out []string
	if m := lazyObject.FindString(reply); m != "" {
		out = append(out, m)
	}
	if m := greedyObject.FindString(reply); m != "" && (len(out) == 0 || m != out[0]) {
		out = append(out, m)
	}
	return out
}

func decode(candidate string) (models.FieldMap, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &v); err != nil {
		return nil, fmt.Errorf("unmarshal reply: %w", err)
	}
	if err := replySchema.Validate(v); err != nil {
		return nil, fmt.Errorf("reply is not a JSON object: %w", err)
	}
	if err := fieldSchema.Validate(v); err != nil {
		slog.Warn("Model reply has non-string fields, they will be coerced", "err", err)
	}
	return models.FieldMap(v.(map[string]any)), nil
}

// replySchema requires an object; known field types are checked separately
// so a wrong type only warns
var replySchema = mustCompile(map[string]any{"type": "object"})

var fieldSchema = mustCompile(fieldTypeSchema())

func fieldTypeSchema() map[string]any {
	props := map[string]any{}
	for _, keys := range [][]string{models.CardKeys, models.BackKeys} {
		for _, k := range keys {
			props[k] = map[string]any{"type": []string{"string", "null"}}
		}
	}
	return map[string]any{"type": "object", "properties": props}
}

func mustCompile(schema map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("schema.json")
}
