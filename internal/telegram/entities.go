package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alecgard/vestibule/internal/groupdoc"
)

// fromAPIEntities converts transport entities to the stored shape.
func fromAPIEntities(entities []tgbotapi.MessageEntity) []groupdoc.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]groupdoc.MessageEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, groupdoc.MessageEntity{
			Type:     e.Type,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		})
	}
	return out
}

// toAPIEntities converts stored entities back to the transport shape.
func toAPIEntities(entities []groupdoc.MessageEntity) []tgbotapi.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]tgbotapi.MessageEntity, 0, len(entities))
	for _, e := range entities {
		out = append(out, tgbotapi.MessageEntity{
			Type:     e.Type,
			Offset:   e.Offset,
			Length:   e.Length,
			URL:      e.URL,
			Language: e.Language,
		})
	}
	return out
}
