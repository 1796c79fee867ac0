// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/latisnere/suplementia/internal/apierrors"
)

// hnsw layer/connection parameters, following the usual HNSW defaults.
const (
	defaultM              = 16
	defaultMaxM0          = 32
	defaultEfConstruction = 200
	defaultEfSearch       = 64
	levelMultiplier       = 1.0 / 0.693147 // 1/ln(2)
)

type hnswNode struct {
	id        string
	vector    []float32
	level     int
	neighbors [][]string // neighbors[l] = neighbor ids at layer l
}

// hnswGraph is a minimal multi-layer HNSW index over cosine similarity.
// Because every stored vector is already unit-normalized, cosine
// similarity reduces to a plain dot product, so no separate distance
// transform is needed.
type hnswGraph struct {
	mu             sync.RWMutex
	nodes          map[string]*hnswNode
	entryPoint     string
	maxLevel       int
	m              int
	maxM0          int
	efConstruction int
	rng            *rand.Rand
}

func newHNSWGraph(seed int64) *hnswGraph {
	return &hnswGraph{
		nodes:          make(map[string]*hnswNode),
		m:              defaultM,
		maxM0:          defaultMaxM0,
		efConstruction: defaultEfConstruction,
		rng:            rand.New(rand.NewSource(seed)),
		maxLevel:       -1,
	}
}

func (g *hnswGraph) selectLevel() int {
	level := 0
	for g.rng.Float64() < 0.5 && level < 16 {
		level++
	}
	return level
}

func cosineSim(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// insert adds id/vector to the graph using a layered
// greedy-descent-then-link algorithm: walk down from the current entry
// point's top layer to level+1 with ef=1 greedy search, then from level
// down to 0 run a wider candidate search and link up to maxM0 (layer 0)
// / m (upper layers) closest neighbors bidirectionally, pruning any
// neighbor list that overflows the same bound.
func (g *hnswGraph) insert(id string, vector []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	level := g.selectLevel()
	node := &hnswNode{id: id, vector: vector, level: level, neighbors: make([][]string, level+1)}
	for l := range node.neighbors {
		node.neighbors[l] = nil
	}
	g.nodes[id] = node

	if g.entryPoint == "" {
		g.entryPoint = id
		g.maxLevel = level
		return
	}

	cur := g.entryPoint
	for l := g.maxLevel; l > level; l-- {
		cur = g.greedyClosest(cur, vector, l)
	}

	for l := min(level, g.maxLevel); l >= 0; l-- {
		candidates := g.searchLayer(vector, cur, g.efConstruction, l)
		maxConn := g.m
		if l == 0 {
			maxConn = g.maxM0
		}
		selected := selectNeighbors(candidates, maxConn, id)
		node.neighbors[l] = selected
		for _, nb := range selected {
			g.addConnection(nb, id, l, maxConn)
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entryPoint = id
	}
}

func (g *hnswGraph) addConnection(from, to string, layer, maxConn int) {
	n, ok := g.nodes[from]
	if !ok || layer >= len(n.neighbors) {
		return
	}
	n.neighbors[layer] = append(n.neighbors[layer], to)
	if len(n.neighbors[layer]) <= maxConn {
		return
	}
	type scored struct {
		id  string
		sim float64
	}
	scoredNbrs := make([]scored, 0, len(n.neighbors[layer]))
	for _, nb := range n.neighbors[layer] {
		if other, ok := g.nodes[nb]; ok {
			scoredNbrs = append(scoredNbrs, scored{nb, cosineSim(n.vector, other.vector)})
		}
	}
	sort.Slice(scoredNbrs, func(i, j int) bool { return scoredNbrs[i].sim > scoredNbrs[j].sim })
	if len(scoredNbrs) > maxConn {
		scoredNbrs = scoredNbrs[:maxConn]
	}
	pruned := make([]string, len(scoredNbrs))
	for i, s := range scoredNbrs {
		pruned[i] = s.id
	}
	n.neighbors[layer] = pruned
}

func (g *hnswGraph) greedyClosest(from string, query []float32, layer int) string {
	best := from
	bestSim := cosineSim(g.nodes[from].vector, query)
	improved := true
	for improved {
		improved = false
		node := g.nodes[best]
		if layer >= len(node.neighbors) {
			break
		}
		for _, nb := range node.neighbors[layer] {
			other, ok := g.nodes[nb]
			if !ok {
				continue
			}
			sim := cosineSim(other.vector, query)
			if sim > bestSim {
				bestSim = sim
				best = nb
				improved = true
			}
		}
	}
	return best
}

type candidate struct {
	id  string
	sim float64
}

// searchLayer runs a best-first search bounded to ef candidates. Closest-
// node tracking and candidate expansion are collapsed into one pass since
// this index is rebuilt from scratch on every process start rather than
// persisted.
func (g *hnswGraph) searchLayer(query []float32, entry string, ef, layer int) []candidate {
	visited := map[string]bool{entry: true}
	entrySim := cosineSim(g.nodes[entry].vector, query)
	candidates := []candidate{{entry, entrySim}}
	results := []candidate{{entry, entrySim}}

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
		c := candidates[0]
		candidates = candidates[1:]

		sort.Slice(results, func(i, j int) bool { return results[i].sim > results[j].sim })
		if len(results) >= ef && c.sim < results[len(results)-1].sim {
			break
		}

		node, ok := g.nodes[c.id]
		if !ok || layer >= len(node.neighbors) {
			continue
		}
		for _, nb := range node.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			other, ok := g.nodes[nb]
			if !ok {
				continue
			}
			sim := cosineSim(other.vector, query)
			candidates = append(candidates, candidate{nb, sim})
			results = append(results, candidate{nb, sim})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].sim > results[j].sim })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

// selectNeighbors picks up to maxConn ids from candidates, excluding self.
func selectNeighbors(candidates []candidate, maxConn int, self string) []string {
	out := make([]string, 0, maxConn)
	for _, c := range candidates {
		if c.id == self {
			continue
		}
		out = append(out, c.id)
		if len(out) == maxConn {
			break
		}
	}
	return out
}

// search returns up to k (id, similarity) pairs for query, searching with
// efSearch candidates at layer 0 after a greedy descent from the entry
// point.
func (g *hnswGraph) search(query []float32, k int) []candidate {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.entryPoint == "" {
		return nil
	}
	cur := g.entryPoint
	for l := g.maxLevel; l > 0; l-- {
		cur = g.greedyClosest(cur, query, l)
	}
	ef := defaultEfSearch
	if ef < k {
		ef = k
	}
	results := g.searchLayer(query, cur, ef, 0)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// MemoryVectorStore is an in-process VectorStore backed by an hnswGraph,
// used in tests and as the degrade-to path when no external vector
// database is configured. Not persisted across process restarts.
type MemoryVectorStore struct {
	mu       sync.RWMutex
	graph    *hnswGraph
	byID     map[string]*Supplement
	byName   map[string]string // canonical name (lowercased) -> id
	nextSeq  int
}

// NewMemoryVectorStore constructs an empty in-memory ANN store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		graph:  newHNSWGraph(42),
		byID:   make(map[string]*Supplement),
		byName: make(map[string]string),
	}
}

func (m *MemoryVectorStore) GetByCanonicalName(name string) (*Supplement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[normalizeKey(name)]
	if !ok {
		return nil, nil
	}
	s := *m.byID[id]
	return &s, nil
}

func (m *MemoryVectorStore) ANN(queryVec []float32, k int, minSimilarity float64) ([]ScoredSupplement, error) {
	if len(queryVec) != 384 {
		return nil, apierrors.New("vectorstore.ANN", apierrors.KindInvalidEmbedding,
			errInvalidEmbeddingDim(len(queryVec)))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	raw := m.graph.search(queryVec, k*4+k) // over-fetch to survive the minSimilarity filter
	out := make([]ScoredSupplement, 0, k)
	for _, c := range raw {
		if c.sim < minSimilarity {
			continue
		}
		s, ok := m.byID[c.id]
		if !ok {
			continue
		}
		out = append(out, ScoredSupplement{Supplement: *s, Similarity: c.sim})
	}

	sort.SliceStable(out, func(i, j int) bool {
		si := math.Round(out[i].Similarity*1000) / 1000
		sj := math.Round(out[j].Similarity*1000) / 1000
		if si != sj {
			return si > sj
		}
		return out[i].Supplement.ID < out[j].Supplement.ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *MemoryVectorStore) Insert(s Supplement) (string, error) {
	if len(s.Embedding) != 384 {
		return "", apierrors.New("vectorstore.Insert", apierrors.KindInvalidEmbedding,
			errInvalidEmbeddingDim(len(s.Embedding)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeKey(s.CanonicalName)
	if _, exists := m.byName[key]; exists {
		return "", apierrors.New("vectorstore.Insert", apierrors.KindDuplicate,
			errDuplicateCanonicalName(s.CanonicalName))
	}

	if s.ID == "" {
		m.nextSeq++
		s.ID = generateID(m.nextSeq)
	}
	stored := s
	m.byID[stored.ID] = &stored
	m.byName[key] = stored.ID
	m.graph.insert(stored.ID, stored.Embedding)
	return stored.ID, nil
}

func (m *MemoryVectorStore) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID), nil
}
