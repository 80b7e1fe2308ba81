// Package notify pushes post-run summaries to an operator chat.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/biosync/biosync/internal/config"
	"github.com/biosync/biosync/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends sync run summaries to Telegram. A disabled or misconfigured
// notifier is inert: notification failures never affect a sync run.
type Notifier struct {
	cfg  config.TelegramConfig
	send func(token string, chatID int64, text string)
}

// New creates a notifier from configuration.
func New(cfg config.TelegramConfig) *Notifier {
	return &Notifier{cfg: cfg, send: sendMessage}
}

// RunFinished formats and sends a summary of a completed sync run.
func (n *Notifier) RunFinished(results []models.DateResult) {
	if !n.cfg.Enabled || len(results) == 0 {
		return
	}
	n.send(n.cfg.BotToken, n.cfg.ChatID, FormatRunSummary(results))
}

// FormatRunSummary renders one Markdown message per run: a line per date
// plus a total.
func FormatRunSummary(results []models.DateResult) string {
	var b strings.Builder
	b.WriteString("*Sync finished*\n")

	total := 0
	for _, r := range results {
		rows := r.TotalRows()
		total += rows
		fmt.Fprintf(&b, "`%s` — %d rows in %s\n", r.Date, rows, r.Duration.Round(10*time.Millisecond))
	}
	fmt.Fprintf(&b, "Total: %d rows across %d date(s)", total, len(results))
	return b.String()
}

// sendMessage sends a one-off message without requiring a running bot
// instance.
func sendMessage(token string, chatID int64, text string) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 || strings.TrimSpace(text) == "" {
		return
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, _ = bot.Send(msg)
}
