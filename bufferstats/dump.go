package bufferstats

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Snapshot is a point-in-time view of cache occupancy, handed to DumpJSON.
// It exists so Cache doesn't need to import an encoding format directly
// into its hot-path types; only the debug dump path touches jsonstream,
// mirroring how only vam.Allocation.printParameters and
// dedicatedAllocationList.BuildStatsString touch it in the teacher.
type Snapshot struct {
	RegisteredBuffers int
	DirectoryPages    int
	UncommittedCount  int
	CommittedBatches  int
	SkipCacheSize     int
	UniformHitRatio   float64
}

// DumpJSON renders a Snapshot as a JSON object, in the style of
// vam.dedicatedAllocationList.BuildStatsString: build one jwriter.Writer,
// fill in an ObjectState, flush.
func DumpJSON(s Snapshot) ([]byte, error) {
	writer := jwriter.NewWriter()

	obj := writer.Object()
	obj.Name("RegisteredBuffers").Int(s.RegisteredBuffers)
	obj.Name("DirectoryPages").Int(s.DirectoryPages)
	obj.Name("UncommittedDownloads").Int(s.UncommittedCount)
	obj.Name("CommittedBatches").Int(s.CommittedBatches)
	obj.Name("SkipCacheSize").Int(s.SkipCacheSize)
	obj.Name("UniformHitRatio").Float64(s.UniformHitRatio)
	obj.End()

	if err := writer.Flush(); err != nil {
		return nil, err
	}
	return writer.Bytes(), nil
}
