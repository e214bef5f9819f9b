// Package telegram adapts the Bot API to the transport interfaces via
// telebot. The bot only ever sends; it never polls for updates.
package telegram

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"tpmb/internal/transport"
	"tpmb/pkg/logx"
)

type Config struct {
	Token string
	// Timeout bounds every API call (default 10s).
	Timeout time.Duration
	// Offline skips the getMe probe telebot runs at construction. Tests
	// use it to build an Adapter without network.
	Offline bool
}

type Adapter struct {
	cfg  Config
	log  logx.Logger
	bot  *tele.Bot
	http *http.Client
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			MaxIdleConns:    4,
			IdleConnTimeout: 90 * time.Second,
		},
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Client:  client,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b, http: client}, nil
}

// Send delivers one message to a chat ID or @handle. Errors are
// classified so callers can tell retryable failures from permanent ones.
func (a *Adapter) Send(ctx context.Context, to transport.Target, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rcpt, err := recipientFor(to)
	if err != nil {
		return transport.Permanent(err)
	}
	_, err = a.bot.Send(rcpt, text)
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// Verify confirms the stored token still maps to a live bot account.
// It calls getMe directly so it works regardless of telebot's state.
func (a *Adapter) Verify(ctx context.Context) (transport.Identity, error) {
	url := "https://api.telegram.org/bot" + strings.TrimSpace(a.cfg.Token) + "/getMe"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transport.Identity{}, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return transport.Identity{}, err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
		Result      struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
			IsBot    bool   `json:"is_bot"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return transport.Identity{}, fmt.Errorf("getMe decode: %w", err)
	}
	if !out.OK {
		err := fmt.Errorf("getMe failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		if out.ErrorCode == http.StatusUnauthorized {
			return transport.Identity{}, transport.Permanent(err)
		}
		return transport.Identity{}, err
	}
	id := transport.Identity{
		ID:       out.Result.ID,
		Username: out.Result.Username,
		IsBot:    out.Result.IsBot,
	}
	a.log.Info("bot identity verified",
		logx.Int64("id", id.ID),
		logx.String("username", id.Username))
	return id, nil
}

// recipientFor maps a target string onto a telebot recipient. Numeric
// targets are chat IDs; "@handle" passes through as-is.
func recipientFor(to transport.Target) (tele.Recipient, error) {
	s := strings.TrimSpace(string(to))
	if strings.HasPrefix(s, "@") {
		return handle(s), nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad target %q: %w", s, err)
	}
	return tele.ChatID(id), nil
}

type handle string

func (h handle) Recipient() string { return string(h) }
