// Package fec implements the XOR forward-error-correction scheme of
// spec.md §4.5: video fragments are partitioned into groups of up to
// K_MAX fragments, each group's fragment bodies are XORed into one
// parity body, and any single missing fragment in a group is
// reconstructed by XORing the parity with the surviving fragments.
//
// Grounded on spec.md §4.5 directly (the filtered original_source pack
// retains only the receiver-side per-index packet slot container,
// kh_fec_packet_collection.cpp / kh_xor_packet_collection.cpp; the
// sender-side create_fec_sender_packet_bytes_set call site is named in
// video_packet_sender.h but its body was not part of the retrieval set),
// and on the call shape in
// _examples/original_source/cpp/app/sender/video_packet_sender.h, which
// invokes FEC with (session_id, frame_id, XOR_MAX_GROUP_SIZE, packets)
// per frame.
package fec

// MaxGroupSize is XOR_MAX_GROUP_SIZE from spec.md §4.5/§6.
const MaxGroupSize = 5

// Group describes one parity group: fragments [Start, Start+len(Bodies))
// of a frame. The parity body XORing them is passed to Recover
// separately.
type Group struct {
	Start  int
	Bodies [][]byte // nil entry at its slot means "missing"; non-nil means "present"
}

// Encode partitions fragments into groups of at most MaxGroupSize and
// returns one parity body per group, each zero-padded to the group's
// max fragment length before XORing, per spec.md §4.5's Encode
// procedure. fragments must all be non-nil and already split at the
// sender (no reconstruction is attempted here).
func Encode(fragments [][]byte) [][]byte {
	var parities [][]byte
	for start := 0; start < len(fragments); start += MaxGroupSize {
		end := start + MaxGroupSize
		if end > len(fragments) {
			end = len(fragments)
		}
		parities = append(parities, xorGroup(fragments[start:end]))
	}
	return parities
}

// xorGroup XORs bodies into a zero-padded buffer sized to the longest
// body in the group.
func xorGroup(bodies [][]byte) []byte {
	maxLen := 0
	for _, b := range bodies {
		if len(b) > maxLen {
			maxLen = len(b)
		}
	}
	out := make([]byte, maxLen)
	for _, b := range bodies {
		for i, v := range b {
			out[i] ^= v
		}
	}
	return out
}

// Recover attempts to reconstruct the single missing fragment in group
// per spec.md §4.5's Decode procedure. group.Bodies holds present
// fragments (nil at the missing slot); parity is the group's parity
// body; length is the byte length the reconstructed fragment should be
// truncated to (the caller knows this from context only when the
// missing fragment is the frame's last fragment — otherwise it equals
// the group's max fragment length, i.e. len(parity)).
//
// Recover returns (reconstructed, true) if and only if exactly one
// fragment in group.Bodies is nil; otherwise it returns (nil, false)
// without modifying anything, per spec.md's "groups with >= 2 missing
// fragments require retransmission" rule.
func Recover(group Group, parity []byte, length int) ([]byte, bool) {
	missing := -1
	for i, b := range group.Bodies {
		if b == nil {
			if missing != -1 {
				return nil, false // second miss in this group
			}
			missing = i
		}
	}
	if missing == -1 {
		return nil, false // nothing missing, nothing to recover
	}

	out := make([]byte, len(parity))
	copy(out, parity)
	for i, b := range group.Bodies {
		if i == missing {
			continue
		}
		for j, v := range b {
			out[j] ^= v
		}
	}

	if length < len(out) {
		out = out[:length]
	} else if length > len(out) {
		grown := make([]byte, length)
		copy(grown, out)
		out = grown
	}
	return out, true
}
