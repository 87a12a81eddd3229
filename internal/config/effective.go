package config

import (
	"slices"
	"strings"

	"transcriptiond/internal/domain"
	"transcriptiond/internal/notify"
)

// Environment overrides for settings.json values.
const (
	EnvLogLevel     = "LOG_LEVEL"
	EnvWhisperModel = "WHISPER_MODEL"
)

// Value sources reported next to effective settings.
const (
	SourceEnv     = "env"
	SourceFile    = "file"
	SourceDefault = "default"
)

// TelegramView is the masked delivery state shown to clients.
type TelegramView struct {
	Configured   bool   `json:"configured"`
	Source       string `json:"source"`
	TokenMasked  string `json:"token_masked"`
	ChatIDMasked string `json:"chat_id_masked"`
}

// Snapshot is the settings view served over HTTP. It never holds raw
// Telegram secrets.
type Snapshot struct {
	Settings domain.Settings   `json:"settings"`
	Sources  map[string]string `json:"sources"`
	Defaults domain.Settings   `json:"defaults"`
	Telegram TelegramView      `json:"telegram"`
	File     struct {
		Path   string `json:"path"`
		Exists bool   `json:"exists"`
	} `json:"file"`
	Options struct {
		LogLevels     []string `json:"log_levels"`
		OutputFormats []string `json:"output_formats"`
	} `json:"options"`
}

// Effective merges env, file and defaults. The Telegram pair is resolved
// separately so the returned settings carry whichever pair is active.
func Effective(getenv func(string) string, file domain.Settings) (domain.Settings, map[string]string) {
	out := withDefaults(file)
	sources := map[string]string{}

	pick := func(key, envName, fileValue string, dst *string, normalize func(string) string) {
		if v := strings.TrimSpace(getenv(envName)); v != "" {
			*dst = normalize(v)
			sources[key] = SourceEnv
			return
		}
		if strings.TrimSpace(fileValue) != "" {
			*dst = normalize(fileValue)
			sources[key] = SourceFile
			return
		}
		sources[key] = SourceDefault
	}
	pick("log_level", EnvLogLevel, file.LogLevel, &out.LogLevel, normalizeLogLevel)
	pick("whisper_model", EnvWhisperModel, file.WhisperModel, &out.WhisperModel, strings.TrimSpace)

	fileOrDefault := func(key, fileValue string) {
		if strings.TrimSpace(fileValue) != "" {
			sources[key] = SourceFile
		} else {
			sources[key] = SourceDefault
		}
	}
	fileOrDefault("model_path", file.ModelPath)
	fileOrDefault("language", file.Language)
	if len(file.OutputFormats) > 0 {
		sources["output_formats"] = SourceFile
	} else {
		sources["output_formats"] = SourceDefault
	}

	tg := notify.ResolveTelegram(getenv, file)
	out.TelegramToken, out.TelegramChatID = tg.Token, tg.ChatID
	sources["telegram"] = tg.Source
	return out, sources
}

// normalizeLogLevel upper-cases level and falls back to INFO.
func normalizeLogLevel(level string) string {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "WARN" {
		level = "WARNING"
	}
	if !slices.Contains(domain.LogLevels, level) {
		return "INFO"
	}
	return level
}

// BuildSnapshot returns the masked settings view for the store at path.
func BuildSnapshot(getenv func(string) string, store *JSONStore) (Snapshot, error) {
	file, err := store.LoadRaw()
	if err != nil {
		return Snapshot{}, err
	}
	effective, sources := Effective(getenv, file)

	var snap Snapshot
	tg := notify.ResolveTelegram(getenv, file)
	if !tg.Configured() {
		// Show whatever half is present so the user sees what is missing.
		tg.Token = firstNonEmpty(getenv(notify.EnvTelegramToken), file.TelegramToken)
		tg.ChatID = firstNonEmpty(getenv(notify.EnvTelegramChatID), file.TelegramChatID)
	}
	masked := tg.Masked()
	snap.Telegram = TelegramView{
		Configured:   tg.Source != notify.SourceMissing,
		Source:       tg.Source,
		TokenMasked:  masked.Token,
		ChatIDMasked: masked.ChatID,
	}

	effective.TelegramToken = masked.Token
	effective.TelegramChatID = masked.ChatID
	snap.Settings = effective
	snap.Sources = sources
	snap.Defaults = DefaultSettings()
	snap.File.Path = store.Path()
	snap.File.Exists = store.Exists()
	snap.Options.LogLevels = slices.Clone(domain.LogLevels)
	snap.Options.OutputFormats = slices.Clone(domain.OutputFormats)
	return snap, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
