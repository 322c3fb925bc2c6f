package services

import (
	"regexp"
	"strings"

	"knowledgebase-rag-service/models"

	"github.com/google/uuid"
)

// Chunker splits cleaned document text into overlap-free fragments sized near
// a target length, preserving paragraph and sentence boundaries.
type Chunker struct {
	targetSize     int
	minSize        int
	sentenceRegex  *regexp.Regexp
	paragraphRegex *regexp.Regexp
}

// SourceMeta is the document-level metadata every produced chunk inherits.
type SourceMeta struct {
	SourceID string
	Title    string
}

// NewChunker creates a chunker with the given target size and minimum floor.
func NewChunker(targetSize, minSize int) *Chunker {
	return &Chunker{
		targetSize:     targetSize,
		minSize:        minSize,
		sentenceRegex:  regexp.MustCompile(`[.!?]+[\s]+`),
		paragraphRegex: regexp.MustCompile(`\n\n+`),
	}
}

var (
	importLineRegex = regexp.MustCompile(`(?m)^import .*\n?`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]+>`)
	spaceRunRegex   = regexp.MustCompile(`[ \t]+`)
	blankRunRegex   = regexp.MustCompile(`\n{3,}`)
)

// CleanContent strips markup and collapses whitespace while keeping paragraph
// breaks intact, so the chunker can still split on them.
func CleanContent(text string) string {
	cleaned := importLineRegex.ReplaceAllString(text, "")
	cleaned = htmlTagRegex.ReplaceAllString(cleaned, "")
	cleaned = spaceRunRegex.ReplaceAllString(cleaned, " ")
	cleaned = blankRunRegex.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// Chunk splits text into fragments. Paragraphs are the primary unit; a
// paragraph larger than the target size is further split on sentence
// boundaries. A single sentence over the target size is kept whole rather
// than cut mid-word. Fragments shorter than the minimum floor are discarded.
// Boundaries are deterministic for identical input; only chunk ids are fresh.
func (c *Chunker) Chunk(text string, meta SourceMeta) []models.Chunk {
	units := c.splitUnits(text)
	if len(units) == 0 {
		return []models.Chunk{}
	}

	var fragments []string
	current := new(strings.Builder)

	for _, unit := range units {
		if current.Len() > 0 && current.Len()+len(unit) > c.targetSize {
			fragments = append(fragments, current.String())
			current = new(strings.Builder)
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(unit)
	}
	if current.Len() > 0 {
		fragments = append(fragments, current.String())
	}

	chunks := make([]models.Chunk, 0, len(fragments))
	order := 0
	for _, fragment := range fragments {
		fragment = strings.TrimSpace(fragment)
		if len(fragment) < c.minSize {
			continue
		}
		chunks = append(chunks, models.Chunk{
			ChunkID:  uuid.NewString(),
			Text:     fragment,
			SourceID: meta.SourceID,
			Title:    meta.Title,
			Order:    order,
		})
		order++
	}

	return chunks
}

// splitUnits yields paragraphs, breaking oversized paragraphs into sentences.
func (c *Chunker) splitUnits(text string) []string {
	paragraphs := c.paragraphRegex.Split(text, -1)

	var units []string
	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if len(paragraph) <= c.targetSize {
			units = append(units, paragraph)
			continue
		}
		for _, sentence := range c.splitSentences(paragraph) {
			units = append(units, sentence)
		}
	}
	return units
}

// splitSentences splits on terminal punctuation, keeping the punctuation with
// the preceding sentence.
func (c *Chunker) splitSentences(paragraph string) []string {
	boundaries := c.sentenceRegex.FindAllStringIndex(paragraph, -1)
	if len(boundaries) == 0 {
		return []string{paragraph}
	}

	var sentences []string
	start := 0
	for _, b := range boundaries {
		sentence := strings.TrimSpace(paragraph[start:b[1]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = b[1]
	}
	if tail := strings.TrimSpace(paragraph[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
