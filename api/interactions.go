package api

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/credit-bot/bot"
	"github.com/warp/credit-bot/discord"
)

const maxInteractionBody = 1 << 20

// CommandHandler runs one decoded command. *bot.Router satisfies it.
type CommandHandler interface {
	Handle(ctx context.Context, req bot.Request) bot.Reply
}

// Interactions serves the chat platform's interaction webhook.
type Interactions struct {
	PublicKey ed25519.PublicKey
	Commands  CommandHandler
	Log       logrus.FieldLogger
}

// NewInteractions creates the webhook handler.
func NewInteractions(key ed25519.PublicKey, commands CommandHandler, log logrus.FieldLogger) *Interactions {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Interactions{PublicKey: key, Commands: commands, Log: log}
}

// ServeHTTP verifies the signature, answers PINGs, and dispatches commands.
func (h *Interactions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInteractionBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	sig := r.Header.Get(discord.HeaderSignature)
	ts := r.Header.Get(discord.HeaderTimestamp)
	if !discord.Verify(h.PublicKey, sig, ts, body) {
		h.Log.WithField("request_id", middleware.GetReqID(r.Context())).Warn("Rejected interaction with bad signature")
		writeError(w, http.StatusUnauthorized, "invalid request signature", nil)
		return
	}

	var in discord.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid interaction", err)
		return
	}

	switch in.Type {
	case discord.InteractionPing:
		writeJSON(w, http.StatusOK, discord.Pong())
	case discord.InteractionApplicationCommand:
		req := in.Request()
		reply := h.Commands.Handle(r.Context(), req)
		writeJSON(w, http.StatusOK, discord.MessageResponse(reply))
	default:
		writeError(w, http.StatusBadRequest, "Unsupported interaction type", nil)
	}
}
