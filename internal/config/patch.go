package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"transcriptiond/internal/domain"
)

const settingsPatchSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "log_level":        {"type": "string", "minLength": 1},
    "output_formats":   {"type": "array", "items": {"type": "string"}},
    "whisper_model":    {"type": "string"},
    "model_path":       {"type": "string"},
    "language":         {"type": "string"},
    "telegram_token":   {"type": "string"},
    "telegram_chat_id": {"type": "string"}
  }
}`

var (
	patchSchemaOnce sync.Once
	patchSchema     *jsonschema.Schema
	patchSchemaErr  error
)

func compiledPatchSchema() (*jsonschema.Schema, error) {
	patchSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("settings-patch.json", strings.NewReader(settingsPatchSchema)); err != nil {
			patchSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		patchSchema, patchSchemaErr = compiler.Compile("settings-patch.json")
	})
	return patchSchema, patchSchemaErr
}

// ValidationError lists every problem found in a settings payload.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid settings: " + strings.Join(e.Problems, "; ")
}

// SettingsPatch is a partial update. Nil fields are left unchanged and an
// empty string clears the stored value.
type SettingsPatch struct {
	LogLevel       *string   `json:"log_level,omitempty"`
	OutputFormats  *[]string `json:"output_formats,omitempty"`
	WhisperModel   *string   `json:"whisper_model,omitempty"`
	ModelPath      *string   `json:"model_path,omitempty"`
	Language       *string   `json:"language,omitempty"`
	TelegramToken  *string   `json:"telegram_token,omitempty"`
	TelegramChatID *string   `json:"telegram_chat_id,omitempty"`
}

// ValidatePatch validates a JSON payload and returns the normalized patch.
func ValidatePatch(data []byte) (SettingsPatch, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return SettingsPatch{}, &ValidationError{Problems: []string{"payload must be valid JSON"}}
	}
	if _, ok := raw.(map[string]any); !ok {
		return SettingsPatch{}, &ValidationError{Problems: []string{"payload must be a JSON object"}}
	}

	schema, err := compiledPatchSchema()
	if err != nil {
		return SettingsPatch{}, err
	}
	if err := schema.Validate(raw); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return SettingsPatch{}, &ValidationError{Problems: schemaProblems(ve)}
		}
		return SettingsPatch{}, err
	}

	var patch SettingsPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return SettingsPatch{}, &ValidationError{Problems: []string{err.Error()}}
	}
	return patch.normalize()
}

func (p SettingsPatch) normalize() (SettingsPatch, error) {
	var problems []string

	if p.LogLevel != nil {
		level := strings.ToUpper(strings.TrimSpace(*p.LogLevel))
		if !slices.Contains(domain.LogLevels, level) {
			problems = append(problems, "log_level must be one of: "+strings.Join(domain.LogLevels, ", "))
		}
		p.LogLevel = &level
	}
	if p.OutputFormats != nil {
		formats := domain.NormalizeOutputFormats(*p.OutputFormats)
		p.OutputFormats = &formats
	}
	for _, field := range []**string{&p.WhisperModel, &p.ModelPath, &p.Language, &p.TelegramToken, &p.TelegramChatID} {
		if *field != nil {
			trimmed := strings.TrimSpace(**field)
			*field = &trimmed
		}
	}

	if len(problems) > 0 {
		return SettingsPatch{}, &ValidationError{Problems: problems}
	}
	return p, nil
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s domain.Settings) domain.Settings {
	if p.LogLevel != nil {
		s.LogLevel = *p.LogLevel
	}
	if p.OutputFormats != nil {
		s.OutputFormats = append([]string(nil), (*p.OutputFormats)...)
	}
	if p.WhisperModel != nil {
		s.WhisperModel = *p.WhisperModel
	}
	if p.ModelPath != nil {
		s.ModelPath = *p.ModelPath
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.TelegramToken != nil {
		s.TelegramToken = *p.TelegramToken
	}
	if p.TelegramChatID != nil {
		s.TelegramChatID = *p.TelegramChatID
	}
	return s
}

// schemaProblems flattens the leaf causes into "field: message" lines.
func schemaProblems(ve *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			field := strings.TrimPrefix(e.InstanceLocation, "/")
			if field == "" {
				field = "payload"
			}
			out = append(out, field+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(out)
	return out
}
