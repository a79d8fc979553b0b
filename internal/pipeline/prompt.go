package pipeline

import "strings"

// TextPlaceholder marks where the transcript goes in a prompt template.
const TextPlaceholder = "{{text}}"

// DefaultPrompt is used when no template is configured.
const DefaultPrompt = `You clean up dictated text. Fix punctuation, capitalization and obvious transcription mistakes. Remove filler words. Do not add content, do not answer questions in the text, and reply with the corrected text only.

Text:
{{text}}`

const (
	Temperature = 0.1
	TopP        = 0.9

	minOutputTokens = 64
	maxOutputTokens = 2048
)

// BuildPrompt substitutes transcript into template. A template without the
// placeholder gets the transcript appended on its own paragraph.
func BuildPrompt(template, transcript string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultPrompt
	}
	if strings.Contains(template, TextPlaceholder) {
		return strings.ReplaceAll(template, TextPlaceholder, transcript)
	}
	return strings.TrimRight(template, "\n") + "\n\n" + transcript
}

// MaxTokensFor bounds generation length by input size: roughly two tokens
// per input word, clamped.
func MaxTokensFor(transcript string) int {
	n := 2*len(strings.Fields(transcript)) + 32
	return min(max(n, minOutputTokens), maxOutputTokens)
}
