package notify

import (
	"strings"

	"transcriptiond/internal/domain"
)

// Environment variables that take precedence over settings.json.
const (
	EnvTelegramToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
)

// Config sources.
const (
	SourceEnv     = "env"
	SourceFile    = "file"
	SourceMissing = "missing"
)

// TelegramConfig is a resolved delivery target.
type TelegramConfig struct {
	Token  string
	ChatID string
	Source string
}

// Configured reports whether both token and chat id are present.
func (c TelegramConfig) Configured() bool {
	return c.Token != "" && c.ChatID != ""
}

// Masked returns a copy safe to show in logs and API responses.
func (c TelegramConfig) Masked() TelegramConfig {
	return TelegramConfig{
		Token:  MaskSecret(c.Token, 4),
		ChatID: MaskSecret(c.ChatID, 3),
		Source: c.Source,
	}
}

// ResolveTelegram picks the env pair when complete, else the settings
// pair when complete. A half-configured source is ignored.
func ResolveTelegram(getenv func(string) string, settings domain.Settings) TelegramConfig {
	token := strings.TrimSpace(getenv(EnvTelegramToken))
	chatID := strings.TrimSpace(getenv(EnvTelegramChatID))
	if token != "" && chatID != "" {
		return TelegramConfig{Token: token, ChatID: chatID, Source: SourceEnv}
	}

	token = strings.TrimSpace(settings.TelegramToken)
	chatID = strings.TrimSpace(settings.TelegramChatID)
	if token != "" && chatID != "" {
		return TelegramConfig{Token: token, ChatID: chatID, Source: SourceFile}
	}
	return TelegramConfig{Source: SourceMissing}
}
