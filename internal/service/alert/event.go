package alert

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Event is the message published to brokers when an alert fires.
type Event struct {
	ID        string    `json:"id"`
	Camera    string    `json:"camera"`
	Caption   string    `json:"caption"`
	Image     string    `json:"image"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event for a saved snapshot.
func NewEvent(camera, imagePath, caption string, at time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Camera:    camera,
		Caption:   caption,
		Image:     filepath.Base(imagePath),
		Timestamp: at.UTC(),
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
