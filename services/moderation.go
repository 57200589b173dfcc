package services

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"support-chat/moderation"
)

//go:embed wordlists/*
var wordlistsFolder embed.FS

// NewDefaultModerator loads the embedded per-language wordlists and
// builds the censoring automaton. Building is done once at startup; the
// heavy Aho-Corasick construction stays out of the send path.
func NewDefaultModerator(log *slog.Logger, mask rune) (moderation.Moderator, error) {
	lists, err := moderation.LoadWordlists(wordlistsFolder, "wordlists")
	if err != nil {
		return moderation.Moderator{}, err
	}

	log.Info(fmt.Sprintf("%d wordlist files loaded [%s]",
		len(lists.Languages), strings.Join(lists.Languages, ",")))
	log.Info(fmt.Sprintf("%d unique censored words loaded", len(lists.Words)))

	return moderation.NewModerator(lists.Words, mask)
}
