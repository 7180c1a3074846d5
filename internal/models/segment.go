package models

import "time"

// DiarizedSegment is one speaker turn returned by the recognizer for a chunk.
// Offsets are relative to the start of the chunk.
type DiarizedSegment struct {
	ChunkSeq   int           `json:"chunk_seq"`
	SpeakerTag string        `json:"speaker_tag"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Text       string        `json:"text"`
}

// GlobalSegment is a DiarizedSegment placed on the recording's timeline with
// a speaker identifier that is consistent across chunks.
type GlobalSegment struct {
	Speaker int           `json:"speaker"`
	Start   time.Duration `json:"start"`
	End     time.Duration `json:"end"`
	Text    string        `json:"text"`
}
