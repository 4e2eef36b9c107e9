package bot

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/warp/credit-bot/ledger"
)

// OptionType mirrors the chat platform's slash-command option types.
type OptionType int

const (
	OptionString  OptionType = 3
	OptionInteger OptionType = 4
	OptionUser    OptionType = 6
)

// OptionSpec declares one command option.
type OptionSpec struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
}

// OptionError reports a missing or malformed option.
type OptionError struct {
	Name string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("missing or invalid option: %s", e.Name)
}

// Options are the decoded option values of a command invocation, keyed by
// option name. Integers may arrive as any JSON number representation.
type Options map[string]any

// String returns a required string option.
func (o Options) String(name string) (string, error) {
	v, ok := o[name].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", &OptionError{Name: name}
	}
	return v, nil
}

// StringOr returns a string option, or def when it is absent.
func (o Options) StringOr(name, def string) string {
	if v, ok := o[name].(string); ok {
		return v
	}
	return def
}

// Int returns a required integer option.
func (o Options) Int(name string) (int64, error) {
	raw, ok := o[name]
	if !ok {
		return 0, &OptionError{Name: name}
	}
	n, ok := toInt64(raw)
	if !ok {
		return 0, &OptionError{Name: name}
	}
	return n, nil
}

// IntOr returns an integer option, or def when it is absent.
func (o Options) IntOr(name string, def int64) (int64, error) {
	if _, ok := o[name]; !ok {
		return def, nil
	}
	return o.Int(name)
}

// User returns a required user option as a ledger identity.
func (o Options) User(name string) (ledger.Identity, error) {
	v, err := o.String(name)
	if err != nil {
		return "", err
	}
	return ledger.Identity(v), nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
