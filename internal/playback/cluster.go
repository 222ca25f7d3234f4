package playback

import (
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/franz/media-librarian/internal/normalize"
	"github.com/franz/media-librarian/internal/store"
)

// DefaultEstimatedDuplicates sizes k when no cluster count is given
const DefaultEstimatedDuplicates = 3

const kmeansIterations = 100

// ClusterOptions configures ClusterRows
type ClusterOptions struct {
	Clusters            int // 0 derives k from EstimatedDuplicates
	EstimatedDuplicates int
	Seed                int64
}

// Group is one cluster, named by the common prefix of its members
type Group struct {
	Name string
	Rows []store.Row
}

// ClusterRows groups rows by TF-IDF similarity of their paths
func ClusterRows(rows []store.Row, opts ClusterOptions) []Group {
	if len(rows) == 0 {
		return nil
	}
	k := opts.Clusters
	if k <= 0 {
		est := opts.EstimatedDuplicates
		if est <= 0 {
			est = DefaultEstimatedDuplicates
		}
		k = (len(rows) + est - 1) / est
	}
	if k > len(rows) {
		k = len(rows)
	}

	docs := make([][]string, len(rows))
	for i, r := range rows {
		docs[i] = normalize.ExtractWords(normalize.PathToSentence(r.String("path")))
	}
	vectors := tfidf(docs)
	labels := kmeans(vectors, k, rand.New(rand.NewSource(opts.Seed)))

	byLabel := make(map[int][]store.Row)
	for i, l := range labels {
		byLabel[l] = append(byLabel[l], rows[i])
	}
	groups := make([]Group, 0, len(byLabel))
	for _, members := range byLabel {
		paths := make([]string, len(members))
		for i, r := range members {
			paths[i] = r.String("path")
		}
		sort.Strings(paths)
		name := strings.TrimSpace(normalize.CommonPrefix(paths))
		if len(members) == 1 {
			name = paths[0]
		}
		groups = append(groups, Group{Name: name, Rows: members})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Rows) != len(groups[j].Rows) {
			return len(groups[i].Rows) > len(groups[j].Rows)
		}
		return groups[i].Name < groups[j].Name
	})
	return groups
}

// tfidf returns L2-normalized dense vectors over the shared vocabulary
func tfidf(docs [][]string) [][]float64 {
	vocab := make(map[string]int)
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, w := range doc {
			if _, ok := vocab[w]; !ok {
				vocab[w] = len(vocab)
			}
			if !seen[w] {
				seen[w] = true
				df[w]++
			}
		}
	}

	n := float64(len(docs))
	vectors := make([][]float64, len(docs))
	for i, doc := range docs {
		v := make([]float64, len(vocab))
		for _, w := range doc {
			v[vocab[w]]++
		}
		var norm float64
		for w, idx := range vocab {
			if v[idx] == 0 {
				continue
			}
			idf := math.Log((1+n)/(1+float64(df[w]))) + 1
			v[idx] = v[idx] / float64(len(doc)) * idf
			norm += v[idx] * v[idx]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range v {
				v[j] /= norm
			}
		}
		vectors[i] = v
	}
	return vectors
}

// kmeans runs Lloyd iterations from a seeded farthest-first start
func kmeans(vectors [][]float64, k int, rng *rand.Rand) []int {
	labels := make([]int, len(vectors))
	if k <= 1 || len(vectors) == 0 {
		return labels
	}

	// random first centroid, then farthest-first
	centroids := [][]float64{clone(vectors[rng.Intn(len(vectors))])}
	dist := make([]float64, len(vectors))
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		next, far := -1, 0.0
		for i, v := range vectors {
			dist[i] = math.Min(dist[i], sqDist(v, last))
			if dist[i] > far {
				next, far = i, dist[i]
			}
		}
		if next < 0 {
			break
		}
		centroids = append(centroids, clone(vectors[next]))
	}

	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				if d := sqDist(v, centroid); d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, len(centroids[c]))
		}
		for i, v := range vectors {
			c := labels[i]
			counts[c]++
			for j, x := range v {
				sums[c][j] += x
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for j := range sums[c] {
				sums[c][j] /= float64(counts[c])
			}
			centroids[c] = sums[c]
		}
	}
	return labels
}

func sqDist(a, b []float64) float64 {
	var d float64
	for i := range a {
		d += (a[i] - b[i]) * (a[i] - b[i])
	}
	return d
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
