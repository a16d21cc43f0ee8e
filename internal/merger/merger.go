// Package merger reconciles adjacent chunk transcripts into one ordered
// transcript. The overlap mode aligns the audio the chunks share via
// longest-common-word matching; the silence-aware mode is a plain
// concatenation, since silence-planned chunks never share audio.
package merger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/streamscribe/streamscribe/internal/types"
)

// DefaultMinMatchWords is the minimum run of matching words required
// before two chunks are considered to overlap meaningfully.
const DefaultMinMatchWords = 3

// chunkWithPlan pairs an executed transcript with the plan that produced
// it, since merging needs each chunk's absolute start offset.
type chunkWithPlan struct {
	Plan       types.ChunkPlan
	Transcript types.ChunkTranscript
}

// OverlapMerger reconciles a run's chunk transcripts into one ordered
// MergedSegment sequence.
type OverlapMerger struct {
	minMatchWords int
	logger        *zap.Logger
}

// New builds an OverlapMerger. minMatchWords <= 0 uses DefaultMinMatchWords.
func New(minMatchWords int, logger *zap.Logger) *OverlapMerger {
	if minMatchWords <= 0 {
		minMatchWords = DefaultMinMatchWords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverlapMerger{minMatchWords: minMatchWords, logger: logger}
}

// MergeOverlap merges chunk transcripts produced under ModeOverlap, where
// adjacent chunks share audio: at each boundary it aligns the previous
// chunk's tail with the current chunk's head by their longest common word
// run and drops the current chunk's duplicated prefix.
func (m *OverlapMerger) MergeOverlap(plans []types.ChunkPlan, transcripts []types.ChunkTranscript) []types.MergedSegment {
	pairs := pairUp(plans, transcripts)
	if len(pairs) == 0 {
		return nil
	}

	var merged []types.MergedSegment
	merged = append(merged, absoluteSegments(pairs[0])...)

	for i := 1; i < len(pairs); i++ {
		prev, curr := pairs[i-1], pairs[i]
		if len(overlapTail(prev, curr)) == 0 {
			// prev transcribed nothing inside the shared window, so there
			// is no duplicated phrasing to cut; keep all of curr.
			merged = append(merged, absoluteSegments(curr)...)
			continue
		}
		cutoff := m.findCutoff(prev, curr)
		merged = append(merged, segmentsFrom(curr, cutoff)...)
	}

	return merged
}

// MergeSilenceAware concatenates chunk transcripts produced under
// ModeSilenceAware by absolute chunk start offset. Silence-planned chunks
// meet exactly, so any time overlap between neighbors is an anomaly; it is
// logged but the segments are still appended.
func (m *OverlapMerger) MergeSilenceAware(plans []types.ChunkPlan, transcripts []types.ChunkTranscript) []types.MergedSegment {
	pairs := pairUp(plans, transcripts)

	var merged []types.MergedSegment
	var prevEnd float64
	for i, p := range pairs {
		if i > 0 && p.Plan.StartOffset < prevEnd {
			m.logger.Warn("overlapping chunk start in silence-aware mode",
				zap.Int("chunk_index", p.Plan.Index),
				zap.Float64("start_offset", p.Plan.StartOffset),
				zap.Float64("previous_end", prevEnd))
		}
		segs := absoluteSegments(p)
		merged = append(merged, segs...)
		if len(segs) > 0 {
			prevEnd = segs[len(segs)-1].End
		}
	}
	return merged
}

func pairUp(plans []types.ChunkPlan, transcripts []types.ChunkTranscript) []chunkWithPlan {
	byIndex := make(map[int]types.ChunkTranscript, len(transcripts))
	for _, t := range transcripts {
		byIndex[t.ChunkIndex] = t
	}

	pairs := make([]chunkWithPlan, 0, len(plans))
	for _, p := range plans {
		if t, ok := byIndex[p.Index]; ok {
			pairs = append(pairs, chunkWithPlan{Plan: p, Transcript: t})
		}
	}
	return pairs
}

// absoluteSegments converts a chunk's relative segment timestamps to
// absolute timestamps (relative to file start).
func absoluteSegments(p chunkWithPlan) []types.MergedSegment {
	out := make([]types.MergedSegment, len(p.Transcript.Segments))
	for i, s := range p.Transcript.Segments {
		out[i] = types.MergedSegment{
			Start: p.Plan.StartOffset + s.Start,
			End:   p.Plan.StartOffset + s.End,
			Text:  s.Text,
		}
	}
	return out
}

// segmentsFrom returns curr's absolute segments whose absolute start is at
// or after cutoff.
func segmentsFrom(curr chunkWithPlan, cutoff float64) []types.MergedSegment {
	var out []types.MergedSegment
	for _, s := range absoluteSegments(curr) {
		if s.Start >= cutoff {
			out = append(out, s)
		}
	}
	return out
}

// findCutoff determines the absolute timestamp in curr at which its
// segments start contributing to the merged transcript, by aligning prev's
// overlap tail against curr's full body on their longest common word run.
// Falls back to prev's last segment end if no sufficiently long match is
// found. The caller guarantees the tail is non-empty.
func (m *OverlapMerger) findCutoff(prev, curr chunkWithPlan) float64 {
	tailSegments := overlapTail(prev, curr)
	prevWords, _ := tokenizeSegments(tailSegments, prev.Plan.StartOffset)
	currWords, currTimes := tokenizeSegments(curr.Transcript.Segments, curr.Plan.StartOffset)

	matchLen, _, currStart := longestCommonRun(prevWords, currWords)
	if matchLen < m.minMatchWords {
		fallback := prevFallbackEnd(prev)
		m.logger.Warn("no overlap match found, falling back to previous chunk end",
			zap.Int("prev_chunk", prev.Plan.Index),
			zap.Int("curr_chunk", curr.Plan.Index),
			zap.Float64("fallback_cutoff", fallback))
		return fallback
	}

	// The cut lands at the end of the segment holding the last matched
	// word, so everything at or after it is new material.
	lastMatched := currStart + matchLen - 1
	if lastMatched >= len(currTimes) {
		lastMatched = len(currTimes) - 1
	}
	if lastMatched < 0 {
		return prevFallbackEnd(prev)
	}
	return currTimes[lastMatched]
}

// overlapTail returns prev's segments whose relative start time falls at
// or after curr's start offset measured relative to prev's own start —
// i.e. the portion of prev that temporally overlaps with curr.
func overlapTail(prev, curr chunkWithPlan) []types.Segment {
	relativeOverlapStart := curr.Plan.StartOffset - prev.Plan.StartOffset

	var tail []types.Segment
	for _, s := range prev.Transcript.Segments {
		if s.Start >= relativeOverlapStart {
			tail = append(tail, s)
		}
	}
	return tail
}

func prevFallbackEnd(prev chunkWithPlan) float64 {
	if len(prev.Transcript.Segments) == 0 {
		return prev.Plan.EndOffset
	}
	last := prev.Transcript.Segments[len(prev.Transcript.Segments)-1]
	return prev.Plan.StartOffset + last.End
}

// tokenizeSegments lowercases and strips punctuation from every word
// across segments, returning the word list alongside each word's owning
// segment's absolute end timestamp, so a matched word index can be mapped
// back to a cut time.
func tokenizeSegments(segments []types.Segment, segmentOffset float64) ([]string, []float64) {
	var words []string
	var times []float64

	for _, s := range segments {
		for _, w := range strings.Fields(s.Text) {
			cleaned := stripPunctuation(w)
			if cleaned == "" {
				continue
			}
			words = append(words, strings.ToLower(cleaned))
			times = append(times, segmentOffset+s.End)
		}
	}
	return words, times
}

const stripChars = ".,!?;:'\""

func stripPunctuation(w string) string {
	return strings.Trim(w, stripChars)
}

// longestCommonRun finds the longest contiguous run of identical words
// shared between a and b using nested sliding windows. Ties break toward
// the earlier b-index, then the earlier a-index. Returns the run length
// and the starting indices in a and b.
func longestCommonRun(a, b []string) (length, aStart, bStart int) {
	bestLen := 0
	bestAStart, bestBStart := -1, -1

	for j := 0; j < len(b); j++ {
		for i := 0; i < len(a); i++ {
			runLen := 0
			for i+runLen < len(a) && j+runLen < len(b) && a[i+runLen] == b[j+runLen] {
				runLen++
			}
			if runLen > bestLen {
				bestLen = runLen
				bestAStart = i
				bestBStart = j
			}
		}
	}

	return bestLen, bestAStart, bestBStart
}
