// Package bufferstats holds the buffer cache's small pieces of derived
// state: the rolling-window fast-uniform-buffer hit/shot tracker that
// drives the skip-cache heuristic, and a JSON debug dump of cache
// occupancy.
package bufferstats

// WindowFrames is the width of the rolling window the skip-cache heuristic
// sums hits and shots across.
const WindowFrames = 16

// UniformCacheStats tracks, per frame, how many times the cached uniform
// buffer bind path ran ("shots") and how many of those runs found nothing
// left to upload ("hits") because a previous draw already staged the
// range. Ticking the window sums the last WindowFrames frames and decides
// whether the fast uniform buffer path should stay enabled at its default
// size threshold.
type UniformCacheStats struct {
	hits  [WindowFrames]uint64
	shots [WindowFrames]uint64
}

// RecordCachedBind records one invocation of the cached uniform bind path.
// hit should be true when synchronize_buffer found no upload range pending
// (the range was already resident on the host).
func (s *UniformCacheStats) RecordCachedBind(hit bool) {
	s.shots[0]++
	if hit {
		s.hits[0]++
	}
}

// Tick sums the current window, decides the skip-cache policy, and rotates
// the window forward by one frame. It returns the skip-cache size that
// should be used going forward: defaultSize if the heuristic decides to
// keep the fast path enabled, or 0 to disable it (forcing every uniform
// buffer through the cached path).
func (s *UniformCacheStats) Tick(defaultSize int) int {
	var hits, shots uint64
	for i := 0; i < WindowFrames; i++ {
		hits += s.hits[i]
		shots += s.shots[i]
	}

	enabled := shots == 0 || hits*256 < shots*251

	for i := WindowFrames - 1; i > 0; i-- {
		s.hits[i] = s.hits[i-1]
		s.shots[i] = s.shots[i-1]
	}
	s.hits[0] = 0
	s.shots[0] = 0

	if enabled {
		return defaultSize
	}
	return 0
}

// HitRatio returns the current window's aggregate hit ratio, for debug
// dumps; it does not rotate the window.
func (s *UniformCacheStats) HitRatio() float64 {
	var hits, shots uint64
	for i := 0; i < WindowFrames; i++ {
		hits += s.hits[i]
		shots += s.shots[i]
	}
	if shots == 0 {
		return 1
	}
	return float64(hits) / float64(shots)
}
