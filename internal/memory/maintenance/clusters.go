package maintenance

import (
	"context"

	"github.com/wardenai/warden/internal/memory/coretrieval"
)

const clusterCandidateThreshold = 5

// detectClusters implements spec.md §4.8's cluster-candidate detection:
// pairs observed co-occurring at least clusterCandidateThreshold times in
// the co-retrieval log are promoted and written back.
func (m *Maintenance) detectClusters(ctx context.Context, colog coretrieval.Log) ([][2]string, error) {
	if colog == nil {
		return nil, nil
	}
	counts, err := colog.PairCounts(ctx)
	if err != nil {
		return nil, err
	}
	var candidates [][2]string
	for pair, count := range counts {
		if count >= clusterCandidateThreshold {
			candidates = append(candidates, pair)
		}
	}
	if err := colog.StoreClusterCandidates(ctx, candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}
