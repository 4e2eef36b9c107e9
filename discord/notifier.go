package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// NotifierConfig configures a Notifier.
type NotifierConfig struct {
	BaseURL  string
	BotToken string
	// UserIDs receive a direct message for every alert.
	UserIDs []string
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// Notifier sends direct messages to a fixed set of admins.
type Notifier struct {
	rest    *restClient
	userIDs []string
	logger  logrus.FieldLogger
}

// NewNotifier creates a Notifier.
func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Notifier{
		rest:    newRESTClient(cfg.BaseURL, cfg.BotToken, cfg.Timeout),
		userIDs: cfg.UserIDs,
		logger:  cfg.Logger,
	}
}

// StockEmpty tells every configured admin that product ran out of stock.
// Users that cannot be messaged are logged and skipped.
func (n *Notifier) StockEmpty(ctx context.Context, product string) {
	content := fmt.Sprintf("⚠️ Alert: Stock for '%s' has reached 0!", product)
	for _, id := range n.userIDs {
		if err := n.Send(ctx, id, content); err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"user":    id,
				"product": product,
			}).Warn("Failed to send stock alert")
		}
	}
}

// Send opens (or reuses) the DM channel with userID and posts content.
func (n *Notifier) Send(ctx context.Context, userID, content string) error {
	var channel struct {
		ID string `json:"id"`
	}
	if err := n.rest.do(ctx, http.MethodPost, "/users/@me/channels",
		map[string]string{"recipient_id": userID}, &channel); err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}

	msg := ResponseData{Content: content, AllowedMentions: &AllowedMentions{Parse: []string{}}}
	if err := n.rest.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channel.ID)+"/messages", msg, nil); err != nil {
		return fmt.Errorf("send dm: %w", err)
	}
	return nil
}
