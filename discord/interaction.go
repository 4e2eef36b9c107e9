/*
Package discord speaks the chat platform's HTTP interactions protocol.

PURPOSE:
  Decodes signed interaction webhooks into bot.Request values, encodes
  bot.Reply values as interaction responses, and registers the command
  table with the platform's REST API.

WIRE FORMAT:
  Interaction (POST body):
    type 1 PING                 -> respond {"type":1}
    type 2 APPLICATION_COMMAND  -> respond {"type":4,"data":{...}}

  Caller identity comes from member.user in guilds and from user in DMs.
  member.roles carries role ids; member.permissions is a decimal string.

SEE ALSO:
  - verify.go: Request signature check
  - registrar.go: Command registration
  - api/interactions.go: HTTP handler
*/
package discord

import (
	"encoding/json"
	"strconv"

	"github.com/warp/credit-bot/auth"
	"github.com/warp/credit-bot/bot"
	"github.com/warp/credit-bot/ledger"
)

// InteractionType identifies what an interaction is.
type InteractionType int

const (
	InteractionPing               InteractionType = 1
	InteractionApplicationCommand InteractionType = 2
)

// ResponseType identifies how an interaction is answered.
type ResponseType int

const (
	ResponsePong                     ResponseType = 1
	ResponseChannelMessageWithSource ResponseType = 4
)

// FlagEphemeral makes a message visible only to the invoking user.
const FlagEphemeral = 1 << 6

// =============================================================================
// INBOUND
// =============================================================================

// User is a platform user.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Member is a user in the context of a guild.
type Member struct {
	User        *User    `json:"user,omitempty"`
	Roles       []string `json:"roles"`
	Permissions string   `json:"permissions,omitempty"`
}

// CommandOption is one option value of a slash command.
type CommandOption struct {
	Name  string          `json:"name"`
	Type  int             `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// CommandData is the payload of an APPLICATION_COMMAND interaction.
type CommandData struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Options []CommandOption `json:"options,omitempty"`
}

// Interaction is an inbound interaction webhook.
type Interaction struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Type          InteractionType `json:"type"`
	Token         string          `json:"token"`
	GuildID       string          `json:"guild_id,omitempty"`
	Data          *CommandData    `json:"data,omitempty"`
	Member        *Member         `json:"member,omitempty"`
	User          *User           `json:"user,omitempty"`
}

// Caller extracts the invoking identity and its authorization facts.
// Malformed permission strings count as no permissions.
func (i Interaction) Caller() auth.Caller {
	var c auth.Caller

	switch {
	case i.Member != nil && i.Member.User != nil:
		c.Identity = ledger.Identity(i.Member.User.ID)
	case i.User != nil:
		c.Identity = ledger.Identity(i.User.ID)
	}

	if i.Member != nil {
		c.Roles = i.Member.Roles
		if perms, err := strconv.ParseUint(i.Member.Permissions, 10, 64); err == nil {
			c.Permissions = perms
		}
	}
	return c
}

// Request converts an APPLICATION_COMMAND interaction into a bot.Request.
// Option values that fail to decode are dropped and surface as missing
// options.
func (i Interaction) Request() bot.Request {
	req := bot.Request{
		Caller:  i.Caller(),
		GuildID: i.GuildID,
		Options: bot.Options{},
	}
	if i.Data == nil {
		return req
	}

	req.Command = i.Data.Name
	for _, opt := range i.Data.Options {
		var v any
		if err := json.Unmarshal(opt.Value, &v); err != nil {
			continue
		}
		req.Options[opt.Name] = v
	}
	return req
}

// =============================================================================
// OUTBOUND
// =============================================================================

// ResponseData is the message part of an interaction response.
type ResponseData struct {
	Content         string           `json:"content"`
	Flags           int              `json:"flags,omitempty"`
	AllowedMentions *AllowedMentions `json:"allowed_mentions,omitempty"`
}

// AllowedMentions restricts which mentions in a message ping anyone.
type AllowedMentions struct {
	Parse []string `json:"parse"`
}

// Response answers an interaction.
type Response struct {
	Type ResponseType  `json:"type"`
	Data *ResponseData `json:"data,omitempty"`
}

// Pong answers a PING.
func Pong() Response {
	return Response{Type: ResponsePong}
}

// MessageResponse answers a command with a bot reply. Mentions render but
// never notify.
func MessageResponse(reply bot.Reply) Response {
	data := &ResponseData{
		Content:         reply.Content,
		AllowedMentions: &AllowedMentions{Parse: []string{}},
	}
	if reply.Ephemeral {
		data.Flags = FlagEphemeral
	}
	return Response{Type: ResponseChannelMessageWithSource, Data: data}
}
