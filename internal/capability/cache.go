package capability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentdb/memory/internal/memerr"
)

const cacheFormatVersion = 1

// embeddingsFile mirrors spec.md §6's embeddings.json layout.
type embeddingsFile struct {
	Version             string           `json:"version"`
	GeneratedAt         int64            `json:"generatedAt"`
	EmbeddingDimension  int              `json:"embeddingDimension"`
	AgentCount          int              `json:"agentCount"`
	Entries             map[string]Entry `json:"entries"`
}

// metadataFile mirrors spec.md §6's metadata.json layout.
type metadataFile struct {
	Version            string            `json:"version"`
	CacheFormatVersion int               `json:"cacheFormatVersion"`
	CreatedAt          int64             `json:"createdAt"`
	LastValidatedAt    int64             `json:"lastValidatedAt"`
	ContentHash        string            `json:"contentHash"`
	AgentCount         int               `json:"agentCount"`
	EmbeddingDimension int               `json:"embeddingDimension"`
	EmbeddingProvider  string            `json:"embeddingProvider"`
	AgentsPath         string            `json:"agentsPath"`
	BuildDurationMs    int64             `json:"buildDurationMs"`
	FileHashes         map[string]string `json:"fileHashes"`
}

// MissReason classifies why Load fell back to CACHE_MISS (spec.md §4.4
// "Any mismatch returns CACHE_MISS with a typed reason").
type MissReason string

const (
	MissNoSentinel       MissReason = "no_sentinel"
	MissHashMismatch     MissReason = "hash_mismatch"
	MissMetadataInvalid  MissReason = "metadata_invalid"
	MissEmbeddingsCorrupt MissReason = "embeddings_corrupt"
	MissDimensionInvalid MissReason = "dimension_invalid"
	MissCountMismatch    MissReason = "count_mismatch"
)

// CacheMissError wraps a MissReason as a memerr.CacheInvalid.
type CacheMissError struct {
	Reason MissReason
}

func (e *CacheMissError) Error() string {
	return fmt.Sprintf("capability: cache miss: %s", e.Reason)
}

// DiskCache implements the three-file atomic layout from spec.md §4.4/§6.
type DiskCache struct {
	dir               string
	embeddingProvider string
	agentsPath        string
}

func NewDiskCache(dir, embeddingProvider, agentsPath string) *DiskCache {
	return &DiskCache{dir: dir, embeddingProvider: embeddingProvider, agentsPath: agentsPath}
}

func (c *DiskCache) hashPath() string       { return filepath.Join(c.dir, "hash.txt") }
func (c *DiskCache) embeddingsPath() string { return filepath.Join(c.dir, "embeddings.json") }
func (c *DiskCache) metadataPath() string   { return filepath.Join(c.dir, "metadata.json") }

// Load follows spec.md §4.4's six-step load path, returning a typed
// *CacheMissError (wrapped as memerr.CacheInvalid) on any mismatch so the
// caller can rebuild.
func (c *DiskCache) Load(dimension int, currentContentHash string) (map[string]Entry, error) {
	if _, err := os.Stat(c.hashPath()); err != nil {
		return nil, memerr.Wrap(memerr.CacheInvalid, "no sentinel", &CacheMissError{Reason: MissNoSentinel})
	}
	hashBytes, err := os.ReadFile(c.hashPath())
	if err != nil {
		return nil, memerr.Wrap(memerr.CacheInvalid, "read sentinel", &CacheMissError{Reason: MissNoSentinel})
	}
	if string(hashBytes) != currentContentHash {
		return nil, memerr.Wrap(memerr.CacheInvalid, "hash mismatch", &CacheMissError{Reason: MissHashMismatch})
	}

	var meta metadataFile
	if err := readJSON(c.metadataPath(), &meta); err != nil {
		return nil, memerr.Wrap(memerr.CacheInvalid, "metadata unreadable", &CacheMissError{Reason: MissMetadataInvalid})
	}
	if meta.CacheFormatVersion != cacheFormatVersion {
		return nil, memerr.Wrap(memerr.CacheInvalid, "metadata version", &CacheMissError{Reason: MissMetadataInvalid})
	}

	var emb embeddingsFile
	if err := readJSON(c.embeddingsPath(), &emb); err != nil {
		return nil, memerr.Wrap(memerr.CacheInvalid, "embeddings unreadable", &CacheMissError{Reason: MissEmbeddingsCorrupt})
	}
	if emb.EmbeddingDimension != dimension {
		return nil, memerr.Wrap(memerr.CacheInvalid, "dimension mismatch", &CacheMissError{Reason: MissDimensionInvalid})
	}
	if emb.AgentCount != len(emb.Entries) {
		return nil, memerr.Wrap(memerr.CacheInvalid, "count mismatch", &CacheMissError{Reason: MissCountMismatch})
	}

	sampled := 0
	for _, e := range emb.Entries {
		if sampled >= 5 {
			break
		}
		if len(e.Embedding) != dimension {
			return nil, memerr.Wrap(memerr.CacheInvalid, "sample dimension mismatch", &CacheMissError{Reason: MissDimensionInvalid})
		}
		sampled++
	}

	return emb.Entries, nil
}

// Save writes embeddings.json, metadata.json, then hash.txt, each via a
// uniquely-named temp file + rename, so hash.txt's presence is the sole
// proof of a complete cache (spec.md §4.4 "Save path (atomic)").
func (c *DiskCache) Save(entries map[string]Entry, dimension int, contentHash string, buildDuration int64) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	now := nowMillis()

	emb := embeddingsFile{
		Version:            "1",
		GeneratedAt:        now,
		EmbeddingDimension: dimension,
		AgentCount:         len(entries),
		Entries:            entries,
	}
	meta := metadataFile{
		Version:            "1",
		CacheFormatVersion: cacheFormatVersion,
		CreatedAt:          now,
		LastValidatedAt:    now,
		ContentHash:        contentHash,
		AgentCount:         len(entries),
		EmbeddingDimension: dimension,
		EmbeddingProvider:  c.embeddingProvider,
		AgentsPath:         c.agentsPath,
		BuildDurationMs:    buildDuration,
		FileHashes:         map[string]string{},
	}

	if err := atomicWriteJSON(c.embeddingsPath(), emb); err != nil {
		return err
	}
	if err := atomicWriteJSON(c.metadataPath(), meta); err != nil {
		return err
	}
	if err := atomicWrite(c.hashPath(), []byte(contentHash)); err != nil {
		return err
	}
	return nil
}

// SweepOrphans removes any leftover *.tmp files from a prior interrupted
// save (spec.md §4.4 "on restart, any orphaned *.tmp files are swept").
func (c *DiskCache) SweepOrphans() error {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			_ = os.Remove(filepath.Join(c.dir, e.Name()))
		}
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, data)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
