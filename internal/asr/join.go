package asr

import "strings"

// attachChars are the leading characters that glue a segment to the previous
// one without a space.
const attachChars = ".,!?;:)]'\"-_"

// JoinSegments concatenates segment texts with single spaces, except that a
// segment starting with punctuation or a closing character is appended
// directly. Segments are trimmed first (whisper prefixes most of them with a
// space) and blank ones are dropped.
func JoinSegments(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if b.Len() > 0 && strings.IndexByte(attachChars, s[0]) < 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}
