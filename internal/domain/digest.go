package domain

import "time"

// DateLayout is the key format for digests and digest markers.
const DateLayout = "2006-01-02"

// Digest is the compiled text for one calendar date.
type Digest struct {
	Date           string    `json:"date"`
	Text           string    `json:"text"`
	ShortText      string    `json:"shortText"`
	TranslatedText *string   `json:"translatedText,omitempty"`
	Sources        []string  `json:"sources"`
	ItemCount      int       `json:"itemCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// DateKey formats t as a digest key in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}
