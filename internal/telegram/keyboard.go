package telegram

import (
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot/models"
)

const (
	// MaxMessageLen is the Telegram limit for a single text message.
	MaxMessageLen = 4096

	// suggestionPrefix marks callback data that carries a quick reply.
	suggestionPrefix = "s:"

	// Telegram rejects callback data longer than this many bytes.
	maxCallbackData = 64

	buttonsPerRow = 2
)

// InlineButton creates a single inline keyboard button.
func InlineButton(text, callbackData string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// SuggestionKeyboard lays quick replies out two per row. Suggestions whose
// callback data would exceed the Telegram limit are left out. It returns nil
// when there is nothing to show.
func SuggestionKeyboard(suggestions []string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton
	for _, s := range suggestions {
		data := suggestionPrefix + s
		if len(data) > maxCallbackData {
			continue
		}
		row = append(row, InlineButton(s, data))
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// SuggestionFromCallback extracts the quick reply carried by callback data.
func SuggestionFromCallback(data string) (string, bool) {
	s, ok := strings.CutPrefix(data, suggestionPrefix)
	return s, ok && s != ""
}

// SplitMessage splits text into parts of at most maxLen runes, preferring
// line breaks.
func SplitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			parts = append(parts, string(runes))
			break
		}
		cut := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	return parts
}
