package weather

import "fmt"

// Result is the current-conditions response, decoded as the provider sends it.
type Result struct {
	Location Location `json:"location"`
	Current  Current  `json:"current"`
}

// Location identifies the place the provider matched the query to.
type Location struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// Current holds the observed conditions.
type Current struct {
	TempF     float64   `json:"temp_f"`
	Condition Condition `json:"condition"`
}

// Condition is the human-readable weather condition and its icon URL.
type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

// APIError is returned when the provider answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Code       int // provider error code, e.g. 1006 for an unknown location
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("weather: %d (code %d) %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("weather: %d %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
