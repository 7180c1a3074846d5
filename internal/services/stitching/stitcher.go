// Package stitching merges per-chunk diarized results into one transcript
// with absolute timestamps and speaker identifiers that hold across chunks.
package stitching

import (
	"fmt"
	"strings"
	"time"

	"github.com/killallgit/echonote-api/internal/models"
	apperrors "github.com/killallgit/echonote-api/pkg/errors"
)

// ChunkResult holds the recognizer output for one planned chunk
type ChunkResult struct {
	Seq      int
	Segments []models.DiarizedSegment
}

// Transcript is the stitched output for a job
type Transcript struct {
	Segments     []models.GlobalSegment
	SpeakerCount int
}

// Text renders the transcript as speaker-attributed lines
func (t *Transcript) Text() string {
	return Render(t.Segments)
}

// Stitch validates results against the planned chunks and maps every segment
// onto the recording's timeline.
//
// Speaker reconciliation: inside a chunk, local tags get global ids in order
// of first appearance. The tag of a chunk's first segment inherits the
// global id of the last segment of the immediately preceding chunk, when that
// chunk produced any segments. Every other new tag gets a fresh id.
func Stitch(planned []models.AudioChunk, results []ChunkResult) (*Transcript, error) {
	if err := validate(planned, results); err != nil {
		return nil, err
	}

	var (
		out      []models.GlobalSegment
		nextID   int
		carry    = -1
		lastTime time.Duration
	)

	for i, chunk := range planned {
		local := make(map[string]int)
		chunkCarry := -1

		for j, seg := range results[i].Segments {
			id, seen := local[seg.SpeakerTag]
			if !seen {
				if j == 0 && carry >= 0 {
					id = carry
				} else {
					id = nextID
					nextID++
				}
				local[seg.SpeakerTag] = id
			}

			start := clamp(chunk.StartOffset+seg.Start, chunk.StartOffset, chunk.End())
			end := clamp(chunk.StartOffset+seg.End, chunk.StartOffset, chunk.End())
			if start < lastTime {
				start = lastTime
			}
			if end < start {
				end = start
			}
			lastTime = start

			out = append(out, models.GlobalSegment{
				Speaker: id,
				Start:   start,
				End:     end,
				Text:    strings.TrimSpace(seg.Text),
			})
			chunkCarry = id
		}

		carry = chunkCarry
	}

	return &Transcript{Segments: out, SpeakerCount: nextID}, nil
}

func validate(planned []models.AudioChunk, results []ChunkResult) error {
	if len(planned) == 0 {
		return apperrors.StitchingError("no chunks planned")
	}
	if len(results) != len(planned) {
		return apperrors.StitchingError(fmt.Sprintf("expected %d chunk results, got %d", len(planned), len(results)))
	}

	var cursor time.Duration
	for i, chunk := range planned {
		if chunk.Seq != i {
			return apperrors.StitchingError(fmt.Sprintf("planned chunk at position %d has sequence %d", i, chunk.Seq))
		}
		if chunk.StartOffset != cursor {
			return apperrors.StitchingError(fmt.Sprintf("chunk %d starts at %s, expected %s", i, chunk.StartOffset, cursor))
		}
		cursor = chunk.End()

		if results[i].Seq != i {
			return apperrors.StitchingError(fmt.Sprintf("result at position %d belongs to chunk %d", i, results[i].Seq))
		}
		for _, seg := range results[i].Segments {
			if seg.ChunkSeq != i {
				return apperrors.StitchingError(fmt.Sprintf("segment of chunk %d found in result %d", seg.ChunkSeq, i))
			}
		}
	}

	return nil
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// Render formats segments as "Speaker N: text" lines, merging consecutive
// turns of the same speaker. Speakers are numbered from 1.
func Render(segments []models.GlobalSegment) string {
	var b strings.Builder
	current := -1
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		if seg.Speaker != current {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "Speaker %d: %s", seg.Speaker+1, seg.Text)
			current = seg.Speaker
			continue
		}
		b.WriteString(" ")
		b.WriteString(seg.Text)
	}
	return b.String()
}
