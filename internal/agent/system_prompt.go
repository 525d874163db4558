package agent

import (
	"fmt"
	"time"
)

// SystemPrompt lists the commands the model may choose from and the reply
// shape it must produce.
const SystemPrompt = `You are a helpful AI for a smart mirror. Possible commands:
- "get_events": parameters={} => will return the next week of events to you(use if user asks for events)
- "play_song": parameters={"song":"..."} => the display will embed a YouTube link
- "add_event": parameters={"event_name":"...","date":"yyyy-mm-dd"} => adds an all-day event to Google Calendar
- "get_weather": parameters={"location":"..."} => fetches the current weather
- "none" => no special action

Important: The next command after get_events or get_weather should be none!

Always respond in strict JSON: {"command":"...","parameters":{...},"text":"..."}
Your output is given to a text to speech so please write it in a voice-friendly manner.
The text section is the only section that is given to text to speech.`

// jsonReminder is appended to every user utterance and tool result.
const jsonReminder = "REMEMBER RESPOND IN JSON ONLY"

// DateNotice tells the model the current local date and time, so relative
// dates like "next Friday" resolve.
func DateNotice(now time.Time) string {
	return fmt.Sprintf("Current Date:%s (%s)", now.Format("2006-01-02 15:04:05 -07:00"), now.Weekday())
}

// userContent is the user entry for an utterance.
func userContent(utterance string) string {
	return utterance + " \n" + jsonReminder
}

// toolResultContent is the system entry carrying a command's result.
func toolResultContent(result string) string {
	return "Returned_Value:" + result + "\n" + jsonReminder + "\n"
}
