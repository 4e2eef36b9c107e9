package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/credit-bot/bot"
	"golang.org/x/sync/errgroup"
)

const maxParallelSyncs = 4

// ApplicationCommandOption is the registration form of bot.OptionSpec.
type ApplicationCommandOption struct {
	Type        int    `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

// ApplicationCommand is the registration form of bot.Command.
type ApplicationCommand struct {
	Type        int                        `json:"type"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}

// ToApplicationCommands converts the router's command table for
// registration. Required options are listed first, as the platform demands.
func ToApplicationCommands(cmds []*bot.Command) []ApplicationCommand {
	out := make([]ApplicationCommand, 0, len(cmds))
	for _, c := range cmds {
		ac := ApplicationCommand{Type: 1, Name: c.Name, Description: c.Description}
		for _, required := range []bool{true, false} {
			for _, o := range c.Options {
				if o.Required != required {
					continue
				}
				ac.Options = append(ac.Options, ApplicationCommandOption{
					Type:        int(o.Type),
					Name:        o.Name,
					Description: o.Description,
					Required:    o.Required,
				})
			}
		}
		out = append(out, ac)
	}
	return out
}

// RegistrarConfig configures a Registrar.
type RegistrarConfig struct {
	BaseURL       string
	ApplicationID string
	BotToken      string
	Timeout       time.Duration
	Logger        logrus.FieldLogger
}

// Registrar bulk-overwrites slash commands.
type Registrar struct {
	rest          *restClient
	applicationID string
	logger        logrus.FieldLogger
}

// NewRegistrar creates a Registrar.
func NewRegistrar(cfg RegistrarConfig) *Registrar {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Registrar{
		rest:          newRESTClient(cfg.BaseURL, cfg.BotToken, cfg.Timeout),
		applicationID: cfg.ApplicationID,
		logger:        cfg.Logger,
	}
}

// Sync registers commands in every guild concurrently. With no guilds the
// commands are registered globally. A failing guild is logged and does not
// stop the others; all failures are returned joined.
func (r *Registrar) Sync(ctx context.Context, guildIDs []string, cmds []*bot.Command) error {
	payload := ToApplicationCommands(cmds)

	if len(guildIDs) == 0 {
		path := fmt.Sprintf("/applications/%s/commands", url.PathEscape(r.applicationID))
		return r.put(ctx, path, payload, logrus.Fields{"scope": "global"})
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(maxParallelSyncs)
	for _, guildID := range guildIDs {
		guildID := guildID
		g.Go(func() error {
			path := fmt.Sprintf("/applications/%s/guilds/%s/commands",
				url.PathEscape(r.applicationID), url.PathEscape(guildID))
			if err := r.put(ctx, path, payload, logrus.Fields{"guild": guildID}); err != nil {
				r.logger.WithError(err).WithField("guild", guildID).Error("Failed to sync commands")
				mu.Lock()
				errs = append(errs, fmt.Errorf("guild %s: %w", guildID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *Registrar) put(ctx context.Context, path string, payload []ApplicationCommand, fields logrus.Fields) error {
	if err := r.rest.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	r.logger.WithFields(fields).WithField("commands", len(payload)).Info("Synced commands")
	return nil
}
