package tts

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// SplitText cuts text on every match of pattern and drops chunks that are
// blank once whitespace is trimmed. An empty pattern yields the whole text.
func SplitText(text, pattern string) ([]string, error) {
	var parts []string
	if pattern == "" {
		parts = []string{text}
	} else {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling split pattern: %w", err)
		}
		parts = re.Split(text, -1)
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks, nil
}

// ChunkFunc synthesizes a single text chunk. A nil segment with a nil error
// means the chunk produced no audio and is skipped.
type ChunkFunc func(ctx context.Context, chunk string) (*Segment, error)

// ChunkStream lazily synthesizes one chunk per Next call. It backs the
// backends that have no native segmentation of their own.
type ChunkStream struct {
	chunks []string
	fn     ChunkFunc
	pos    int
	index  int
	closed bool
}

// NewChunkStream returns a stream over chunks.
func NewChunkStream(chunks []string, fn ChunkFunc) *ChunkStream {
	return &ChunkStream{chunks: chunks, fn: fn}
}

// Next synthesizes the next non-empty chunk.
func (s *ChunkStream) Next(ctx context.Context) (*Segment, error) {
	for !s.closed && s.pos < len(s.chunks) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk := s.chunks[s.pos]
		s.pos++

		seg, err := s.fn(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("synthesizing chunk %d: %w", s.pos-1, err)
		}
		if seg == nil || len(seg.Samples) == 0 {
			continue
		}
		seg.Index = s.index
		if seg.Graphemes == "" {
			seg.Graphemes = chunk
		}
		s.index++
		return seg, nil
	}
	return nil, io.EOF
}

// Close marks the stream exhausted.
func (s *ChunkStream) Close() error {
	s.closed = true
	return nil
}

// Collect drains a stream into a slice. It closes the stream.
func Collect(ctx context.Context, s Stream) ([]*Segment, error) {
	defer s.Close()
	var out []*Segment
	for {
		seg, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, seg)
	}
}
