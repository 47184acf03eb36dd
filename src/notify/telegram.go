package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"botmanager/src/repository"
)

// TelegramNotifier delivers events through the Telegram Bot API. The target
// chat is resolved from the user record, falling back to the operator chat
// when the user has none configured.
type TelegramNotifier struct {
	http          *resty.Client
	token         string
	defaultChatID string
	users         *repository.UserRepository
}

func NewTelegramNotifier(token, defaultChatID string, users *repository.UserRepository) *TelegramNotifier {
	httpClient := resty.New().
		SetBaseURL("https://api.telegram.org").
		SetTimeout(10 * time.Second).
		SetRetryCount(2)

	return &TelegramNotifier{
		http:          httpClient,
		token:         token,
		defaultChatID: defaultChatID,
		users:         users,
	}
}

// WithBaseURL overrides the Telegram API host. Useful for tests.
func (t *TelegramNotifier) WithBaseURL(baseURL string) *TelegramNotifier {
	t.http.SetBaseURL(baseURL)
	return t
}

// Notify sends one message. Every failure is logged and dropped.
func (t *TelegramNotifier) Notify(ctx context.Context, userID uint, kind, title, body string) {
	chatID := t.resolveChatID(ctx, userID)
	if chatID == "" {
		logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"kind":    kind,
		}).Debug("No telegram chat configured, dropping notification")
		return
	}

	text := fmt.Sprintf("*%s*\n%s", title, body)

	resp, err := t.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"chat_id":    chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))

	if err != nil {
		logger.WithError(err).
			WithField("user_id", userID).
			Warn("Telegram notification failed")
		return
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"status":  resp.StatusCode(),
		}).Warn("Telegram notification rejected")
	}
}

func (t *TelegramNotifier) resolveChatID(ctx context.Context, userID uint) string {
	if t.users != nil {
		user, err := t.users.FindByID(ctx, userID)
		if err == nil && user != nil && user.TelegramChatID != "" {
			return user.TelegramChatID
		}
	}
	return t.defaultChatID
}
