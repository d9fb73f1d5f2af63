package bufcache

// overlapResult is the outcome of resolveOverlaps: the minimal span that
// covers the request and every buffer transitively touching it, plus the
// ids absorbed along the way.
type overlapResult struct {
	begin         uint64
	end           uint64
	absorbedIds   []BufferId
	streamScore   int
	hasStreamLeap bool
}

// resolveOverlaps implements the base design's overlap resolution (§4.2):
// it scans pages from cpuAddr to the (possibly growing) end of the
// requested range, absorbing every buffer it finds along the way, and
// applies the stream-leap heuristic once the accumulated stream score of
// absorbed buffers crosses StreamLeapThreshold.
func (c *Cache) resolveOverlaps(cpuAddr uint64, wantedSize int) overlapResult {
	res := overlapResult{
		begin: cpuAddr,
		end:   cpuAddr + uint64(wantedSize),
	}

	page := pageOf(cpuAddr)
	for page < pageOf(res.end-1)+1 {
		id := c.directory.at(page)
		if id == NullBufferID {
			page++
			continue
		}

		buf := c.slots.get(id)
		if buf.IsPicked() {
			page++
			continue
		}

		buf.Pick()
		res.absorbedIds = append(res.absorbedIds, id)

		if buf.CPUAddr() < res.begin {
			res.begin = buf.CPUAddr()
		}
		if buf.End() > res.end {
			res.end = buf.End()
		}
		res.streamScore += buf.StreamScore()

		if !res.hasStreamLeap && res.streamScore > StreamLeapThreshold {
			res.hasStreamLeap = true
			res.end += uint64(StreamLeapExtraPages) * PageSize
		}

		page++
	}

	return res
}
