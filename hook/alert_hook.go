package hook

import (
	"fmt"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// AlertResult is the return type of the RISK_CRITICAL_ALERT and ROTATION_SWAP
// hooks: whatever out-of-core sink is registered (Telegram, PagerDuty, a
// dashboard webhook) reports back whether delivery succeeded.
type AlertResult struct {
	Err error
}

func (r *AlertResult) Error() error {
	return r.Err
}

// GetResult logs a delivery failure and returns it, matching the teacher's
// IpResult.GetResult idiom of logging then handing the error back to the
// caller.
func (r *AlertResult) GetResult() error {
	if r.Err != nil {
		log.Printf("⚠️ alert delivery failed: %v", r.Err)
	}
	return r.Err
}

// TelegramSink sends RISK_CRITICAL_ALERT/ROTATION_SWAP alerts to a single
// chat. A nil bot (no TELEGRAM_BOT_TOKEN) makes every send a no-op success,
// so registering it is always safe.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSinkFromEnv builds a TelegramSink from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID. Returns a disabled sink (not an error) if the token is
// unset, since alerting is optional.
func NewTelegramSinkFromEnv() *TelegramSink {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return &TelegramSink{}
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("⚠️ failed to init Telegram bot: %v", err)
		return &TelegramSink{}
	}

	chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
	return &TelegramSink{bot: bot, chatID: chatID}
}

// RegisterRiskAlert wires this sink as the RISK_CRITICAL_ALERT hook.
func (s *TelegramSink) RegisterRiskAlert() {
	RegisterHook(RISK_CRITICAL_ALERT, func(args ...any) any {
		reason, _ := args[0].(string)
		drawdownPct, _ := args[1].(float64)
		text := fmt.Sprintf("🚨 *TRAILING STOP TRIGGERED*\n%s\ndrawdown: %.2f%%", reason, drawdownPct*100)
		return &AlertResult{Err: s.send(text)}
	})
}

// RegisterRotationAlert wires this sink as the ROTATION_SWAP hook.
func (s *TelegramSink) RegisterRotationAlert() {
	RegisterHook(ROTATION_SWAP, func(args ...any) any {
		oldSymbol, _ := args[0].(string)
		newSymbol, _ := args[1].(string)
		oldScore, _ := args[2].(float64)
		newScore, _ := args[3].(float64)
		text := fmt.Sprintf("🔄 *SYMBOL ROTATED*\n%s (%.2f) -> %s (%.2f)", oldSymbol, oldScore, newSymbol, newScore)
		return &AlertResult{Err: s.send(text)}
	})
}

func (s *TelegramSink) send(text string) error {
	if s.bot == nil || s.chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = "Markdown"
	_, err := s.bot.Send(msg)
	return err
}
