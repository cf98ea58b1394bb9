package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/klauspost/compress/zstd"

	"github.com/kozaktomas/facegate/internal/match"
)

// HNSW parameters for face embeddings.
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	hnswMaxNeighbors = 16

	// hnswSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure enough remain after filtering out replaced nodes.
	hnswSearchMultiplier = 3

	// hnswMinSearch is the minimum candidate pool size for better recall.
	hnswMinSearch = 100
)

const indexMetaVersion = 1

// Candidate is one identification result from the index. Score is the cosine
// distance between the normalized query and the normalized stored vector;
// it ranks candidates but is not the decision distance.
type Candidate struct {
	EmployeeID string
	Score      float64
}

// Index provides approximate nearest-neighbor search over enrolled
// embeddings. Vectors are L2-normalized before insertion and compared with
// cosine distance; on unit vectors that ranking is identical to euclidean,
// so one graph serves both metrics. Callers recompute exact decision
// distances from the raw stored embeddings.
//
// Node keys are a growing int64 sequence. Re-enrollment inserts a new node
// and drops the old one from the id mapping; stale graph nodes are filtered
// out of search results and reclaimed on the next rebuild.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[int64]
	byID   map[int64]string // node id -> employee id, active nodes only
	active map[string]int64 // employee id -> current node id
	nextID int64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		byID:   make(map[int64]string),
		active: make(map[string]int64),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Rebuild replaces the index contents with the given identities.
func (x *Index) Rebuild(identities []Identity) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.graph = nil
	x.byID = make(map[int64]string, len(identities))
	x.active = make(map[string]int64, len(identities))
	x.nextID = 0

	for i := range identities {
		x.upsertLocked(&identities[i])
	}
}

// Upsert adds or replaces the searchable vector for one employee.
func (x *Index) Upsert(identity *Identity) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.upsertLocked(identity)
}

func (x *Index) upsertLocked(identity *Identity) {
	normalized, ok := match.NormalizeL2(identity.Embedding)
	if !ok {
		// A zero-magnitude vector cannot be ranked; drop any previous node.
		x.removeLocked(identity.EmployeeID)
		return
	}

	if x.graph == nil {
		x.graph = newGraph()
	}

	x.removeLocked(identity.EmployeeID)

	x.nextID++
	id := x.nextID
	x.graph.Add(hnsw.MakeNode(id, normalized))
	x.byID[id] = identity.EmployeeID
	x.active[identity.EmployeeID] = id
}

// Remove drops an employee from search results. The graph node stays until
// the next rebuild; searches filter it out.
func (x *Index) Remove(employeeID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(employeeID)
}

func (x *Index) removeLocked(employeeID string) {
	if id, ok := x.active[employeeID]; ok {
		delete(x.byID, id)
		delete(x.active, employeeID)
	}
}

// Count returns the number of searchable identities.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.active)
}

// Search returns up to k distinct employees nearest to the query embedding,
// nearest first. A zero-magnitude query returns no candidates.
func (x *Index) Search(query []float32, k int) []Candidate {
	if k <= 0 {
		return nil
	}

	normalized, ok := match.NormalizeL2(query)
	if !ok {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.active) == 0 {
		return nil
	}

	// Request more candidates than needed so replaced nodes can be skipped.
	searchK := k * hnswSearchMultiplier
	searchK = max(searchK, hnswMinSearch)

	neighbors := x.graph.Search(normalized, searchK)

	candidates := make([]Candidate, 0, k)
	for _, n := range neighbors {
		employeeID, ok := x.byID[n.Key]
		if !ok {
			continue // replaced or removed node
		}

		dist, err := match.CosineDistance(normalized, n.Value)
		if err != nil {
			continue
		}

		candidates = append(candidates, Candidate{EmployeeID: employeeID, Score: dist})
		if len(candidates) >= k {
			break
		}
	}

	return candidates
}

// IndexMeta validates a snapshot against the current store contents.
type IndexMeta struct {
	Count     int       `json:"count"`
	MaxID     int64     `json:"max_id"`
	Model     string    `json:"model"`
	Dim       int       `json:"dim"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

// indexIDs is the gob-encoded sidecar mapping graph node ids to employee ids.
type indexIDs struct {
	ByID   map[int64]string
	NextID int64
}

// LoadIndexMeta reads the snapshot metadata sidecar.
func LoadIndexMeta(path string) (IndexMeta, error) {
	var meta IndexMeta

	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return meta, nil
}

// Save persists the graph (zstd-compressed) plus the id mapping and metadata
// sidecars. An empty index removes any previous snapshot files.
func (x *Index) Save(path, model string, dim int) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if path == "" {
		return nil
	}

	if x.graph == nil || len(x.active) == 0 {
		// Best-effort cleanup of a previous snapshot.
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".ids")
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	if err := x.graph.Export(zw); err != nil {
		zw.Close()
		return fmt.Errorf("exporting graph: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing compressed graph: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(indexIDs{ByID: x.byID, NextID: x.nextID}); err != nil {
		return fmt.Errorf("failed to encode id mapping: %w", err)
	}
	if err := os.WriteFile(path+".ids", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write id mapping: %w", err)
	}

	meta := IndexMeta{
		Count:     len(x.active),
		MaxID:     x.nextID,
		Model:     model,
		Dim:       dim,
		BuildTime: time.Now().UTC(),
		Version:   indexMetaVersion,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load restores a snapshot written by Save. Callers should validate the
// snapshot metadata against the store before trusting the result.
func (x *Index) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	g := newGraph()
	if err := g.Import(zr); err != nil {
		return fmt.Errorf("importing graph: %w", err)
	}

	data, err := os.ReadFile(path + ".ids")
	if err != nil {
		return fmt.Errorf("failed to read id mapping: %w", err)
	}

	var ids indexIDs
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ids); err != nil {
		return fmt.Errorf("failed to decode id mapping: %w", err)
	}

	active := make(map[string]int64, len(ids.ByID))
	for id, employeeID := range ids.ByID {
		active[employeeID] = id
	}

	x.graph = g
	x.byID = ids.ByID
	x.active = active
	x.nextID = ids.NextID

	return nil
}

// LoadOrRebuildIndex restores the snapshot at path when its metadata matches
// the store contents and configuration, and rebuilds from the store otherwise.
// An empty path always rebuilds.
func LoadOrRebuildIndex(ctx context.Context, reader IdentityReader, path, model string, dim int) (*Index, error) {
	idx := NewIndex()

	count, err := reader.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting identities: %w", err)
	}

	if path != "" && count > 0 {
		meta, err := LoadIndexMeta(path)
		fresh := err == nil &&
			meta.Version == indexMetaVersion &&
			meta.Count == count &&
			meta.Model == model &&
			(dim == 0 || meta.Dim == 0 || meta.Dim == dim)
		if fresh {
			if err := idx.Load(path); err == nil && idx.Count() == count {
				return idx, nil
			}
		}
	}

	identities, err := reader.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}

	idx.Rebuild(identities)
	return idx, nil
}
