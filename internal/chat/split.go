package chat

import "unicode/utf8"

// MaxMessageLength is the platform limit for a single message.
const MaxMessageLength = 2000

// Split cuts text into chunks of at most limit characters, never splitting a
// UTF-8 sequence. Empty text yields no chunks.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
