package mutation

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// MarshalEvent serialises an Event to JSON.
func MarshalEvent(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent deserialises an Event from JSON.
func UnmarshalEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Fingerprint returns the SHA-256 hex digest of encoded image bytes. It is
// the content-equality key used for snapshot deduplication.
func Fingerprint(image []byte) string {
	h := sha256.Sum256(image)
	return fmt.Sprintf("%x", h)
}
