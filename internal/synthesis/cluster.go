package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"deepscholar/internal/llm"
	"deepscholar/internal/logging"
	"deepscholar/internal/types"
)

const (
	maxClusters     = 5
	kmeansMaxRounds = 25
)

// Clusterer partitions papers into themes by K-means over embeddings, then
// asks the LLM to name each cluster from its titles.
type Clusterer struct {
	llm      types.LLMClient
	embedder types.Embedder
	rng      *rand.Rand
}

// NewClusterer builds a clusterer. The rng seed is fixed so centroid
// initialization is reproducible.
func NewClusterer(llmClient types.LLMClient, embedder types.Embedder) *Clusterer {
	return &Clusterer{
		llm:      llmClient,
		embedder: embedder,
		rng:      rand.New(rand.NewSource(42)),
	}
}

// Cluster partitions the papers. K = min(ceil(n/2)+1, 5). Fewer than two
// papers yield a single catch-all cluster.
func (c *Clusterer) Cluster(ctx context.Context, planID, topic string, papers []*types.Paper) ([]*types.Cluster, error) {
	if len(papers) == 0 {
		return nil, nil
	}
	if len(papers) == 1 {
		cluster := c.singleCluster(planID, topic, papers)
		papers[0].ClusterID = cluster.ID
		return []*types.Cluster{cluster}, nil
	}

	vectors := make([][]float32, len(papers))
	for i, p := range papers {
		vec, err := c.embedder.Embed(ctx, p.Title+"\n"+p.Abstract)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", p.ID, err)
		}
		vectors[i] = vec
	}

	k := (len(papers)+1)/2 + 1
	if k > maxClusters {
		k = maxClusters
	}
	if k > len(papers) {
		k = len(papers)
	}

	assignments := c.kmeans(vectors, k)

	clusters := make([]*types.Cluster, 0, k)
	for ki := 0; ki < k; ki++ {
		var members []*types.Paper
		for i, a := range assignments {
			if a == ki {
				members = append(members, papers[i])
			}
		}
		if len(members) == 0 {
			continue
		}

		cluster := &types.Cluster{
			ID:     uuid.NewString(),
			PlanID: planID,
		}
		for _, m := range members {
			cluster.PaperIDs = append(cluster.PaperIDs, m.ID)
			m.ClusterID = cluster.ID
		}
		cluster.Name, cluster.Description = c.label(ctx, topic, members)
		clusters = append(clusters, cluster)
	}
	logging.Get(logging.CategoryCluster).Info("clustered %d papers into %d themes", len(papers), len(clusters))
	return clusters, nil
}

func (c *Clusterer) singleCluster(planID, topic string, papers []*types.Paper) *types.Cluster {
	cluster := &types.Cluster{
		ID:          uuid.NewString(),
		Name:        topic,
		Description: "All collected papers.",
		PlanID:      planID,
	}
	for _, p := range papers {
		cluster.PaperIDs = append(cluster.PaperIDs, p.ID)
	}
	return cluster
}

// kmeans runs Lloyd's algorithm with random initial centroids drawn from
// the points.
func (c *Clusterer) kmeans(vectors [][]float32, k int) []int {
	n := len(vectors)
	dims := len(vectors[0])

	centroids := make([][]float64, k)
	for i, pick := range c.rng.Perm(n)[:k] {
		centroids[i] = toFloat64(vectors[pick])
	}

	assignments := make([]int, n)
	for round := 0; round < kmeansMaxRounds; round++ {
		changed := false
		for i, vec := range vectors {
			best, bestDist := 0, math.MaxFloat64
			for ki, centroid := range centroids {
				if d := sqDist(vec, centroid); d < bestDist {
					best, bestDist = ki, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for ki := range sums {
			sums[ki] = make([]float64, dims)
		}
		for i, vec := range vectors {
			ki := assignments[i]
			counts[ki]++
			for d, v := range vec {
				sums[ki][d] += float64(v)
			}
		}
		for ki := range centroids {
			if counts[ki] == 0 {
				continue
			}
			for d := range centroids[ki] {
				centroids[ki][d] = sums[ki][d] / float64(counts[ki])
			}
		}
	}
	return assignments
}

// label asks the LLM for a cluster name and description from member titles.
func (c *Clusterer) label(ctx context.Context, topic string, members []*types.Paper) (string, string) {
	fallback := fmt.Sprintf("%s (%d papers)", topic, len(members))
	if c.llm == nil {
		return fallback, ""
	}

	var b strings.Builder
	for _, m := range members {
		fmt.Fprintf(&b, "- %s\n", m.Title)
	}

	system := "You name a theme for a group of related academic papers in a review on: " + topic + "\n" +
		"Return one JSON object {\"name\": short theme name, \"description\": one sentence}."

	reply, err := c.llm.CompleteJSON(ctx, system, b.String())
	if err != nil {
		logging.Get(logging.CategoryCluster).Warn("cluster labeling failed: %v", err)
		return fallback, ""
	}

	var label struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(reply)), &label); err != nil || label.Name == "" {
		return fallback, ""
	}
	return label.Name, label.Description
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func sqDist(a []float32, b []float64) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - b[i]
		sum += d * d
	}
	return sum
}
