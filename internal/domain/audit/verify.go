package audit

import "fmt"

// VerifyChain walks entries in insertion order, recomputing every hash and
// checking linkage against the previous entry. It reports tampering as a
// value: false plus a message naming the first failing index and mode. The
// first entry must link to GenesisHash.
func VerifyChain(entries []Entry) (bool, string) {
	if len(entries) == 0 {
		return true, "0 entries verified"
	}
	return verifyFrom(GenesisHash, entries)
}

// VerifySegment verifies a contiguous slice of a longer chain, anchoring on
// the first entry's own PrevHash instead of GenesisHash. Each entry's hash
// still binds its prev_hash, so any in-segment mutation is caught; only a
// forged link to the segment's predecessor needs the full chain to detect.
// Day journals after the first day are segments in this sense.
func VerifySegment(entries []Entry) (bool, string) {
	if len(entries) == 0 {
		return true, "0 entries verified"
	}
	return verifyFrom(entries[0].PrevHash, entries)
}

func verifyFrom(anchor string, entries []Entry) (bool, string) {
	prev := anchor
	for i, e := range entries {
		want, err := e.ComputeHash()
		if err != nil {
			return false, fmt.Sprintf("entry %d: recompute failed: %v", i, err)
		}
		if e.EntryHash != want {
			return false, fmt.Sprintf("entry %d tampered: hash mismatch", i)
		}
		if e.PrevHash != prev {
			return false, fmt.Sprintf("entry %d tampered: prev_hash mismatch", i)
		}
		prev = e.EntryHash
	}
	return true, fmt.Sprintf("%d entries verified", len(entries))
}
