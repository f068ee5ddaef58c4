package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv loads .env from the working directory if present. Variables
// already set in the environment win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := lookupEnv("APP_ID"); ok {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("APP_ID must be an integer: %w", err)
		}
		cfg.Account.AppID = id
	}
	if v, ok := lookupEnv("APP_HASH"); ok {
		cfg.Account.AppHash = v
	}
	if v, ok := lookupEnv("TG_PHONE"); ok {
		cfg.Account.Phone = v
	}
	if v, ok := lookupEnv("TG_PASSWORD"); ok {
		cfg.Account.Password = v
	}
	if v, ok := lookupEnv("SESSION_PATH"); ok {
		cfg.Account.SessionPath = v
	}
	if v, ok := lookupEnv("TELEGRAM_USER_NAME"); ok {
		cfg.Account.OwnerName = v
	}

	if v, ok := lookupEnv("NOTIFIER_BOT_TOKEN"); ok {
		cfg.Bot.Token = v
	}
	if v, ok := lookupEnv("NOTIFIER_TARGET_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("NOTIFIER_TARGET_CHAT_ID must be an integer: %w", err)
		}
		cfg.Bot.AuthorizedChatID = id
	}

	if v, ok := lookupEnv("GEMINI_API_KEY"); ok {
		cfg.Classifier.Gemini.APIKey = v
	}
	if v, ok := lookupEnv("GEMINI_MODEL"); ok {
		cfg.Classifier.Gemini.Model = v
	}
	if v, ok := lookupEnv("OPENAI_API_KEY"); ok {
		cfg.Classifier.OpenAI.APIKey = v
	}
	if v, ok := lookupEnv("OPENAI_BASE_URL"); ok {
		cfg.Classifier.OpenAI.BaseURL = v
	}
	if v, ok := lookupEnv("OPENAI_MODEL"); ok {
		cfg.Classifier.OpenAI.Model = v
	}

	if v, ok := lookupEnv("IGNORE_GROUPS"); ok {
		cfg.Filter.IgnoreGroups = ParseIgnoreList(v)
	}
	if v, ok := lookupEnv("PRIVATE_MESSAGE_KEYWORDS"); ok {
		cfg.Filter.PrivateKeywords = strings.Split(v, ",")
	}

	if v, ok := lookupEnv("CONFIRMATION_TEXT"); ok {
		cfg.Reply.ConfirmationText = v
	}
	if v, ok := lookupEnv("REPLY_PRIVATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REPLY_PRIVATE must be a boolean: %w", err)
		}
		cfg.Reply.Private = b
	}
	if v, ok := lookupEnv("REPLY_GROUP"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REPLY_GROUP must be a boolean: %w", err)
		}
		cfg.Reply.Group = b
	}

	if v, ok := lookupEnv("DAILY_SUMMARY_CRON"); ok {
		cfg.Summary.Cron = v
	}
	if v, ok := lookupEnv("DB_PATH"); ok {
		cfg.Store.Path = v
	}
	if v, ok := lookupEnv("LOG_DIR"); ok {
		cfg.Logging.Dir = v
	}
	if v, ok := lookupEnv("TRACE_DECISIONS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACE_DECISIONS must be a boolean: %w", err)
		}
		cfg.Logging.TraceDecisions = b
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
