package store

import (
	"strings"
	"unicode"
)

// Chunking limits for long memories. Texts under the threshold are
// stored whole; longer ones are split at paragraph then sentence
// boundaries so each stored unit embeds well.
const (
	chunkThreshold = 1000
	chunkTarget    = 500
	chunkMax       = 800
	chunkOverlap   = 80
)

// chunkText splits a memory into embeddable units. Short texts come
// back as a single element.
func chunkText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkThreshold {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if current.Len()+len(para) > chunkMax {
			flush()
		}

		// A single oversized paragraph splits at sentence boundaries.
		if len(para) > chunkMax {
			flush()
			chunks = append(chunks, chunkSentences(para)...)
			continue
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return applyOverlap(chunks)
}

func chunkSentences(text string) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if current.Len()+len(sentence) > chunkTarget && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				// Skip likely abbreviations like "Dr."
				if i > 1 && unicode.IsUpper(runes[i-1]) {
					continue
				}
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

// applyOverlap prefixes each chunk with the tail of its predecessor so
// retrieval does not lose context at chunk edges.
func applyOverlap(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}

	out := make([]string, len(chunks))
	copy(out, chunks)
	for i := 1; i < len(out); i++ {
		prev := out[i-1]
		if len(prev) <= chunkOverlap {
			continue
		}
		tail := prev[len(prev)-chunkOverlap:]
		if idx := strings.LastIndex(tail, " "); idx > 0 {
			tail = tail[idx+1:]
		}
		out[i] = tail + " " + chunks[i]
	}
	return out
}
