package verdict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

const replySchemaJSON = `{
  "type": "object",
  "required": ["semaforo"],
  "properties": {
    "semaforo": {
      "type": "string",
      "pattern": "^\\s*(?i:verde|amarillo|rojo|green|yellow|red)\\s*$"
    },
    "nombre": {"type": ["string", "number", "null"]},
    "entidad": {"type": ["string", "number", "null"]},
    "valor": {"type": ["string", "number", "null"]},
    "fecha_resolucion": {"type": ["string", "number", "null"]},
    "fecha_ejecutoria": {"type": ["string", "number", "null"]},
    "tipo_titulo": {"type": ["string", "number", "null"]},
    "observacion": {"type": ["string", "number", "null"]}
  }
}`

var (
	replySchema = jsonschema.MustCompileString("verdict-reply.json", replySchemaJSON)

	codeFencePattern    = regexp.MustCompile("```(?:json|JSON)?")
	specialTokenPattern = regexp.MustCompile(`<｜[^｜]*｜>|<\|[^|]*\|>`)
)

// ParseReply turns a raw model reply into a verdict. It never fails: any
// reply that cannot be read as the expected object yields the fallback verdict.
func ParseReply(raw string) domain.Verdict {
	fields, err := decodeReplyObject(raw)
	if err != nil {
		return domain.FallbackVerdict(err)
	}

	light, ok := domain.ParseTrafficLight(fieldString(fields, "semaforo"))
	if !ok {
		return domain.UnratedVerdict(fmt.Errorf("unknown semaforo %q", fieldString(fields, "semaforo")))
	}
	if err := replySchema.Validate(map[string]any(fields)); err != nil {
		return domain.FallbackVerdict(fmt.Errorf("validate reply object: %w", err))
	}

	return domain.Verdict{
		Light: light,
		Details: domain.VerdictDetails{
			DebtorName:         fieldString(fields, "nombre"),
			CreditorEntity:     fieldString(fields, "entidad"),
			Amount:             fieldString(fields, "valor"),
			ResolutionDate:     fieldString(fields, "fecha_resolucion"),
			EnforceabilityDate: fieldString(fields, "fecha_ejecutoria"),
			TitleType:          fieldString(fields, "tipo_titulo"),
		},
		Observation: fieldString(fields, "observacion"),
	}
}

// decodeReplyObject extracts the single JSON object a reply carries, ignoring
// fences, chat tokens and surrounding prose.
func decodeReplyObject(raw string) (map[string]any, error) {
	cleaned := cleanReply(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no json object in reply")
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(cleaned[start : end+1])))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode reply object: %w", err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after reply object")
	}

	fields, ok := value.(map[string]any)
	if !ok {
		return nil, errors.New("reply is not an object")
	}
	return fields, nil
}

// cleanReply drops markdown fences and chat-template tokens some models leak.
func cleanReply(raw string) string {
	cleaned := codeFencePattern.ReplaceAllString(raw, "")
	cleaned = specialTokenPattern.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func fieldString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
