// Copyright 2025 James Ross
package messenger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adaspeas/deliveryd/internal/breaker"
	"github.com/adaspeas/deliveryd/internal/joberr"
	"github.com/adaspeas/deliveryd/internal/obs"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// TelegramDriver wraps the Telegram Bot API with a circuit breaker and a
// rate limiter so one noisy chat can't starve the worker loop or trip
// Telegram's own flood control.
type TelegramDriver struct {
	bot     *tgbotapi.BotAPI
	breaker *breaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewTelegramDriver(token string, limiter *rate.Limiter) (*TelegramDriver, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("new bot api: %w", err)
	}
	return &TelegramDriver{
		bot:     bot,
		breaker: breaker.New(30*time.Second, 10*time.Second, 0.5, 5),
		limiter: limiter,
	}, nil
}

func (d *TelegramDriver) guard(ctx context.Context) error {
	if !d.breaker.Allow() {
		return joberr.Transient(fmt.Errorf("messenger circuit breaker open"))
	}
	return d.limiter.Wait(ctx)
}

func (d *TelegramDriver) record(ok bool) {
	d.breaker.Record(ok)
	obs.CircuitBreakerState.WithLabelValues("messenger").Set(float64(d.breaker.State()))
}

func (d *TelegramDriver) SendText(ctx context.Context, chatID int64, text string) error {
	if err := d.guard(ctx); err != nil {
		return err
	}
	_, err := d.bot.Send(tgbotapi.NewMessage(chatID, text))
	d.record(err == nil)
	if err != nil {
		return classifyTelegramErr(err)
	}
	return nil
}

func (d *TelegramDriver) SendFile(ctx context.Context, chatID int64, localPath, caption string) (Handle, error) {
	if err := d.guard(ctx); err != nil {
		return Handle{}, err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(localPath))
	doc.Caption = caption
	msg, err := d.bot.Send(doc)
	d.record(err == nil)
	if err != nil {
		return Handle{}, classifyTelegramErr(err)
	}
	if msg.Document == nil {
		return Handle{}, joberr.Invariant(fmt.Errorf("telegram response carried no document"))
	}
	return Handle{ID: msg.Document.FileID, UniqueID: msg.Document.FileUniqueID}, nil
}

func (d *TelegramDriver) SendByHandle(ctx context.Context, chatID int64, handle Handle, caption string) (Handle, error) {
	if err := d.guard(ctx); err != nil {
		return Handle{}, err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(handle.ID))
	doc.Caption = caption
	msg, err := d.bot.Send(doc)
	d.record(err == nil)
	if err != nil {
		return Handle{}, classifyTelegramErr(err)
	}
	if msg.Document == nil {
		return Handle{}, joberr.Invariant(fmt.Errorf("telegram response carried no document"))
	}
	return Handle{ID: msg.Document.FileID, UniqueID: msg.Document.FileUniqueID}, nil
}

// classifyTelegramErr maps the Bot API's error shapes onto the job engine's
// retry classes.
func classifyTelegramErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "retry after"):
		return joberr.Flood(parseRetryAfter(msg), err)
	case strings.Contains(msg, "wrong file_id") || strings.Contains(msg, "file reference expired") || strings.Contains(msg, "file not found"):
		return joberr.HandleInvalid(err)
	case strings.Contains(msg, "chat not found") || strings.Contains(msg, "user not found"):
		return joberr.NotFound(err)
	case strings.Contains(msg, "bot was blocked") || strings.Contains(msg, "forbidden"):
		return joberr.Denied(err)
	default:
		return joberr.Transient(err)
	}
}

// parseRetryAfter extracts the trailing "retry after N" seconds Telegram's
// 429 responses carry; defaults to 5s if the shape is unexpected.
func parseRetryAfter(msg string) time.Duration {
	idx := strings.Index(msg, "retry after ")
	if idx < 0 {
		return 5 * time.Second
	}
	rest := msg[idx+len("retry after "):]
	var n int
	if _, err := fmt.Sscanf(rest, "%d", &n); err != nil || n <= 0 {
		return 5 * time.Second
	}
	return time.Duration(n) * time.Second
}
