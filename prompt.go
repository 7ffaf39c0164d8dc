package aicore

import (
	"fmt"
	"time"
)

// DefaultMimeType is assumed for images sent without one.
const DefaultMimeType = "image/jpeg"

const jsonInstruction = "Respond ONLY with a valid JSON object. Do not use markdown.\n"

// composePrompt anchors the prompt to the current year, then appends the
// input text.
func composePrompt(prompt, input string, now time.Time) string {
	return fmt.Sprintf("%s %d\n%s", prompt, now.Year(), input)
}

// modelPrompt returns the text actually sent to the model. Text-only
// structured calls get an explicit JSON instruction.
func modelPrompt(final string, structured, hasImage bool) string {
	if structured && !hasImage {
		return jsonInstruction + final
	}
	return final
}
