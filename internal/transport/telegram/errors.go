package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"

	"tgrelay/internal/relay"
)

// Description fragments Telegram uses for authorization failures.
var (
	bannedMarkers = []string{
		"user_banned_in_channel",
		"banned",
		"was kicked",
	}
	forbiddenMarkers = []string{
		"chat_write_forbidden",
		"not enough rights",
		"have no rights",
		"need administrator rights",
		"bot is not a member",
		"bot was blocked by the user",
		"can't initiate conversation",
	}
)

// classify marks Telegram authorization failures with the relay sentinels
// so the dispatcher can skip its fallback for them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code := 0
	desc := strings.ToLower(err.Error())
	var te *tele.Error
	if errors.As(err, &te) {
		code = te.Code
		desc += " " + strings.ToLower(te.Description)
	}

	switch {
	case containsAny(desc, bannedMarkers):
		return fmt.Errorf("%w: %w", relay.ErrBanned, err)
	case code == http.StatusForbidden, containsAny(desc, forbiddenMarkers):
		return fmt.Errorf("%w: %w", relay.ErrWriteForbidden, err)
	default:
		return err
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
