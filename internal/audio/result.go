package audio

// Result describes one finished recording.
type Result struct {
	ID       string `json:"id"`
	Duration int64  `json:"duration"` // milliseconds, paused time excluded
	MIME     string `json:"mimeType"`
	URI      string `json:"uri"`
	Size     int64  `json:"size"`
	Base64   string `json:"base64,omitempty"`
}
