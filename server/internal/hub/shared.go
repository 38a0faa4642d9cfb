package hub

import (
	"sort"

	"github.com/vrhub/collab/plugin"
)

// sharedByBase indexes a shared-entry list by message-id base, for O(1)
// lookups when intersecting two clients' negotiated plug-in lists.
func sharedByBase(list []sharedEntry) map[uint16]sharedEntry {
	out := make(map[uint16]sharedEntry, len(list))
	for _, e := range list {
		out[e.messageIDBase] = e
	}
	return out
}

// peerEntriesSharedWith returns, in ascending registry-index order, peer's
// shared entries whose plug-in is also present in with (used to pick which
// of a peer's verbatim CONNECT_REQUEST payloads to replay into a new
// client's CLIENT_CONNECT block).
func peerEntriesSharedWith(peer, with []sharedEntry) []sharedEntry {
	withByBase := sharedByBase(with)
	var out []sharedEntry
	for _, e := range peer {
		if _, ok := withByBase[e.messageIDBase]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// pairedEntry is one plug-in two clients both negotiated, carrying each
// side's own opaque per-client state so SendServerUpdate can compare them.
type pairedEntry struct {
	index         int
	messageIDBase uint16
	plug          plugin.ServerPlugin
	srcState      any
	destState     any
}

// pairShared returns, in ascending registry-index order, every plug-in
// present in both src and dest's shared lists (P6: relay only over the
// shared-protocol intersection).
func pairShared(src, dest []sharedEntry) []pairedEntry {
	destByBase := sharedByBase(dest)
	var out []pairedEntry
	for _, se := range src {
		if de, ok := destByBase[se.messageIDBase]; ok {
			out = append(out, pairedEntry{
				index:         se.index,
				messageIDBase: se.messageIDBase,
				plug:          se.plug,
				srcState:      se.state,
				destState:     de.state,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}
