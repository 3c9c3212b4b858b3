package history

import (
	"github.com/bits-and-blooms/bloom/v3"
)

const (
	minBloomCapacity       = 1024
	bloomFalsePositiveRate = 0.001
)

// index is rebuilt from the full entry list after every load. The bloom filter
// answers the common "never added" case without touching the maps.
type index struct {
	bloom          *bloom.BloomFilter
	successByTrack map[string][]int
	successByUser  map[string]int
	byID           map[string]int
	successCount   int
}

func newIndex(entries []Entry) *index {
	capacity := uint(minBloomCapacity)
	if n := uint(len(entries)) * 2; n > capacity {
		capacity = n
	}

	ix := &index{
		bloom:          bloom.NewWithEstimates(capacity, bloomFalsePositiveRate),
		successByTrack: make(map[string][]int),
		successByUser:  make(map[string]int),
		byID:           make(map[string]int, len(entries)),
	}

	for i := range entries {
		e := &entries[i]
		ix.byID[e.ID] = i
		if !e.WasSuccessful() || e.TrackID == "" {
			continue
		}
		ix.bloom.AddString(e.TrackID)
		ix.successByTrack[e.TrackID] = append(ix.successByTrack[e.TrackID], i)
		ix.successByUser[e.User]++
		ix.successCount++
	}

	return ix
}

// successful returns positions of successful entries for trackID, oldest first.
func (ix *index) successful(trackID string) []int {
	if !ix.bloom.TestString(trackID) {
		return nil
	}
	return ix.successByTrack[trackID]
}
