package tutoragent

import (
	"context"
	"iter"
	"strings"
)

// sentenceTerminators are the characters that, when trailing the trimmed
// buffer, trigger a sentence flush (§4.3 step 2).
const sentenceTerminators = ".!?:;"

func endsWithTerminator(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	return strings.ContainsRune(sentenceTerminators, rune(trimmed[len(trimmed)-1]))
}

// AudioFrame pairs synthesized audio with any error from its sentence.
type AudioFrame struct {
	Data []byte
	Err  error
}

// InterceptSynthesis buffers incoming text chunks at sentence boundaries,
// routes each complete sentence through SynthesizeSentence, and yields audio
// frames downstream. On stream close it flushes any remaining non-empty
// partial buffer. Partial sentences are never sent to synthesis except at
// stream end (§4.3 invariant).
func (a *Agent) InterceptSynthesis(ctx context.Context, chunks iter.Seq[string]) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var buf strings.Builder

		flush := func() bool {
			text := buf.String()
			buf.Reset()
			if strings.TrimSpace(text) == "" {
				return true
			}
			audio, err := a.SynthesizeSentence(ctx, text)
			return yield(audio, err)
		}

		for chunk := range chunks {
			buf.WriteString(chunk)
			if endsWithTerminator(buf.String()) {
				if !flush() {
					return
				}
			}
		}

		if buf.Len() > 0 {
			flush()
		}
	}
}
