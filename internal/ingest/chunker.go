// Package ingest turns fetched repository files into fixed-size text
// chunks ready for embedding.
package ingest

import "github.com/koopa0/gitquery/internal/github"

const (
	// DefaultChunkSize is the chunk window in runes.
	DefaultChunkSize = 1500
	// DefaultChunkOverlap is how many runes consecutive chunks share.
	DefaultChunkOverlap = 200
)

// Candidate is a chunk of one file, positioned by its sequence number
// within that file.
type Candidate struct {
	FilePath string
	Seq      int
	Text     string
}

// Chunker splits file contents with a sliding window.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker builds a Chunker. Non-positive size or an overlap that is
// negative or >= size falls back to the defaults.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 2
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split chunks a batch of files, preserving file order and intra-file
// order. Files with empty content produce no candidates.
func (c *Chunker) Split(files []github.File) []Candidate {
	var out []Candidate
	for _, f := range files {
		out = append(out, c.splitFile(f)...)
	}
	return out
}

func (c *Chunker) splitFile(f github.File) []Candidate {
	runes := []rune(f.Content)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var out []Candidate
	for start, seq := 0, 0; start < len(runes); start, seq = start+step, seq+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, Candidate{
			FilePath: f.Path,
			Seq:      seq,
			Text:     string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return out
}
