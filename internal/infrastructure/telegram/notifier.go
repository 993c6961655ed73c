package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"UpdatesDigest/internal/config"
	"UpdatesDigest/internal/ports"
)

// MaxMessageLength is the Bot API limit for one text message, in UTF-16 code units.
const MaxMessageLength = 4096

const defaultAPIURL = "https://api.telegram.org"

// Notifier sends digest chunks to a Telegram chat via the bot API.
type Notifier struct {
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
	limiter  *rate.Limiter
}

var _ ports.Publisher = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. Consecutive sends are
// spaced by cfg.SendDelay to stay under the per-chat flood limit.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	limit := rate.Inf
	if cfg.SendDelay > 0 {
		limit = rate.Every(cfg.SendDelay)
	}
	return &Notifier{
		apiURL:   apiURL,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Configured reports whether both the token and the chat are set.
func (n *Notifier) Configured() bool {
	return n != nil && n.botToken != "" && n.chatID != ""
}

// MaxMessageLength implements ports.Publisher.
func (n *Notifier) MaxMessageLength() int { return MaxMessageLength }

type sendResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Send posts one plain-text message. Silent messages do not notify the chat.
func (n *Notifier) Send(ctx context.Context, msg ports.Message) (ports.SendResult, error) {
	if !n.Configured() || n.client == nil {
		return ports.SendResult{}, fmt.Errorf("telegram notifier misconfigured")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return ports.SendResult{}, fmt.Errorf("wait send slot: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", msg.Text)
	form.Set("disable_web_page_preview", "true")
	if msg.Silent {
		form.Set("disable_notification", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return ports.SendResult{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return ports.SendResult{}, fmt.Errorf("telegram error: %s", resp.Status)
		}
		return ports.SendResult{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		if out.Parameters.RetryAfter > 0 {
			return ports.SendResult{}, fmt.Errorf("telegram error: %s: %s (retry after %ds)", resp.Status, out.Description, out.Parameters.RetryAfter)
		}
		return ports.SendResult{}, fmt.Errorf("telegram error: %s: %s", resp.Status, out.Description)
	}

	return ports.SendResult{MessageID: strconv.FormatInt(out.Result.MessageID, 10)}, nil
}
