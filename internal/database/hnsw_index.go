package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// ErrDimensionMismatch is returned when a query does not match the index dimension.
var ErrDimensionMismatch = errors.New("descriptor dimension does not match index")

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	UserCount    int64     `json:"user_count"`
	LastEnrolled time.Time `json:"last_enrolled"`
	BuildTime    time.Time `json:"build_time"`
	Version      int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 1

// HNSWIndex wraps an HNSW graph of enrolled face descriptors keyed by user ID.
// It is only used to shortlist lookalikes; distances are re-scored exactly.
type HNSWIndex struct {
	graph *hnsw.Graph[string]
	dim   int
	mu    sync.RWMutex
	path  string // Path to save/load index
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{}
}

func newUserGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromUsers builds the index from the enrolled users in the slice.
// Users whose descriptor length differs from the first enrolled one are skipped.
func (h *HNSWIndex) BuildFromUsers(users []StoredUser) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.dim = 0

	for i := range users {
		u := &users[i]
		if !u.HasDescriptor() {
			continue
		}
		if h.graph == nil {
			h.graph = newUserGraph()
			h.dim = len(u.Descriptor)
		}
		if len(u.Descriptor) != h.dim {
			continue
		}
		h.graph.Add(hnsw.MakeNode(u.ID, u.Descriptor))
	}
	return nil
}

// Add inserts or replaces the descriptor for a user.
func (h *HNSWIndex) Add(id string, descriptor []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(descriptor) == 0 {
		return nil
	}

	if h.graph == nil || h.graph.Len() == 0 {
		h.graph = newUserGraph()
		h.dim = len(descriptor)
	}
	if len(descriptor) != h.dim {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(descriptor), h.dim)
	}

	h.graph.Delete(id)
	h.graph.Add(hnsw.MakeNode(id, descriptor))
	return nil
}

// Delete removes a user from the index.
func (h *HNSWIndex) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		return
	}
	h.graph.Delete(id)
	if h.graph.Len() == 0 {
		h.graph = nil
		h.dim = 0
	}
}

// Neighbor is a search hit with its exact Euclidean distance.
type Neighbor struct {
	UserID   string
	Distance float64
}

// Search finds up to k approximate nearest neighbors of query, ordered by
// exact distance.
func (h *HNSWIndex) Search(query []float32, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 {
		return nil, nil
	}
	if len(query) != h.dim {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(query), h.dim)
	}

	nodes := h.graph.Search(query, k)
	neighbors := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		neighbors = append(neighbors, Neighbor{
			UserID:   n.Key,
			Distance: facematch.EuclideanDistance(query, n.Value),
		})
	}
	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	return neighbors, nil
}

// Within returns the neighbors of query strictly closer than maxDistance,
// excluding excludeID.
func (h *HNSWIndex) Within(query []float32, maxDistance float64, limit int, excludeID string) ([]Neighbor, error) {
	neighbors, err := h.Search(query, (limit+1)*HNSWSearchMultiplier)
	if err != nil {
		return nil, err
	}
	var out []Neighbor
	for _, n := range neighbors {
		if n.UserID == excludeID || n.Distance >= maxDistance {
			continue
		}
		out = append(out, n)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of indexed users.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.graph == nil {
		return 0
	}
	return h.graph.Len()
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	return h.Count() == 0
}

// SetPath sets the path for saving/loading the index.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the index and its metadata to the configured path.
func (h *HNSWIndex) Save(metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	path := h.path
	h.mu.RUnlock()

	if path == "" {
		return nil // No path set
	}
	return h.SaveWithMetadata(path, metadata)
}

// Load loads the index from disk. A missing file leaves the index empty.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path

	// Check if file exists.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // No index file, will build from users
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.graph = saved.Graph
	h.dim = 0
	if h.graph != nil && h.graph.Len() > 0 {
		h.dim = h.graph.Dims()
	}
	return nil
}

// SaveWithMetadata persists the index to disk along with metadata for staleness detection.
func (h *HNSWIndex) SaveWithMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	// Write graph to file.
	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	// Write metadata to separate file.
	metadata.Version = hnswMetadataVersion
	if metadata.BuildTime.IsZero() {
		metadata.BuildTime = time.Now()
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return metadata, nil
}

// Matches reports whether the cached metadata describes the given database state.
func (m HNSWIndexMetadata) Matches(userCount int64, lastEnrolled time.Time) bool {
	return m.Version == hnswMetadataVersion &&
		m.UserCount == userCount &&
		m.LastEnrolled.Equal(lastEnrolled)
}
