package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event — входящее событие для активации подписок.
type Event struct {
	// ID — уникальный идентификатор события.
	ID uuid.UUID `json:"id"`

	// Topic — тема события.
	Topic string `json:"topic"`

	// Aspects — теги события; подписка подходит, если её фильтр
	// содержится в aspects.
	Aspects map[string]string `json:"aspects,omitempty"`

	// Status — pending до сопоставления с подписками.
	Status EventStatus `json:"status"`

	// Occurrence — время возникновения события.
	Occurrence time.Time `json:"occurrence"`
}

// Describe возвращает описание события для подстановки в task parameters:
// копия aspects плюс topic.
func (e *Event) Describe() map[string]string {
	description := make(map[string]string, len(e.Aspects)+1)
	for k, v := range e.Aspects {
		description[k] = v
	}
	description["topic"] = e.Topic
	return description
}
