package compression

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/agentdb/memory/internal/codec"
	"github.com/agentdb/memory/internal/memerr"
	"github.com/agentdb/memory/internal/vectorutil"
)

// CompressedEmbedding is the stored form of a vector (spec.md §3).
type CompressedEmbedding struct {
	VectorID      string
	Tier          Tier
	Data          []byte
	OriginalDim   int
	CompressedAt  int64 // ms since epoch
	CodebookIndex int   // -1 when not applicable (Hot/Warm)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Dimension int
	// AccessWindow bounds the AccessRecord timestamp deque.
	AccessWindow time.Duration
	// HeatDecayRate parameterizes the recency term.
	HeatDecayRate float64
	// RetainOriginals keeps a copy of every stored vector for
	// reconstruction-error measurement (memory-expensive; off by default).
	RetainOriginals bool
	Logger          *slog.Logger
	// Now is overridable for deterministic tests.
	Now func() time.Time
}

// Manager owns {vectorId -> CompressedEmbedding}, {vectorId -> AccessRecord},
// trained codebooks, and (optionally) original vectors, per spec.md §4.3.
// Every method serializes on one manager-wide mutex, so concurrent callers
// (the auto-transition timer, eviction reactions, readers) are safe; there
// is no per-vector-id lock, and a tier transition holds the whole manager
// for the duration of its decompress/recompress.
type Manager struct {
	mu sync.Mutex

	opts    ManagerOptions
	configs []TierConfig
	logger  *slog.Logger
	now     func() time.Time

	embeddings map[string]*CompressedEmbedding
	access     map[string]*AccessRecord
	originals  map[string][]float32

	trainingBuffer [][]float32

	pq8    *codec.PQCodebook
	pq4    *codec.PQCodebook
	binary *codec.BinaryCodebook
}

// New creates a Manager for the given dimension.
func New(opts ManagerOptions) *Manager {
	if opts.AccessWindow <= 0 {
		opts.AccessWindow = 24 * time.Hour
	}
	if opts.HeatDecayRate <= 0 {
		opts.HeatDecayRate = 0.05
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	configs := DefaultTierConfigs(opts.Dimension)
	cool := configs[Cool]
	cold := configs[Cold]
	return &Manager{
		opts:       opts,
		configs:    configs,
		logger:     opts.Logger,
		now:        opts.Now,
		embeddings: make(map[string]*CompressedEmbedding),
		access:     make(map[string]*AccessRecord),
		originals:  make(map[string][]float32),
		pq8:        codec.NewPQ8Codebook(opts.Dimension, cool.BytesAtD1536),
		pq4:        codec.NewPQ4Codebook(opts.Dimension, cold.BytesAtD1536),
		binary:     codec.NewBinaryCodebook(opts.Dimension),
	}
}

// Store records a new vector at Hot tier with heat 1.0 (spec.md §4.3
// "store").
func (m *Manager) Store(id string, vector []float32) error {
	if err := vectorutil.Validate(vector, m.opts.Dimension); err != nil {
		return memerr.Wrap(memerr.Validation, "compression: store", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	data := encodeFloat32(vector)
	m.embeddings[id] = &CompressedEmbedding{
		VectorID:      id,
		Tier:          Hot,
		Data:          data,
		OriginalDim:   m.opts.Dimension,
		CompressedAt:  now.UnixMilli(),
		CodebookIndex: -1,
	}
	rec := newAccessRecord(id, now)
	rec.AccessTimestamps = append(rec.AccessTimestamps, now)
	rec.TotalAccesses = 1
	m.access[id] = rec

	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.trainingBuffer = append(m.trainingBuffer, cp)
	if m.opts.RetainOriginals {
		m.originals[id] = cp
	}
	return nil
}

// Retrieve decodes the current tier's form back to float32, updating access
// bookkeeping (spec.md §4.3 "retrieve"). Returns (nil, false) if absent.
func (m *Manager) Retrieve(id string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	emb, ok := m.embeddings[id]
	if !ok {
		return nil, false
	}
	now := m.now()
	rec := m.access[id]
	if rec == nil {
		rec = newAccessRecord(id, now)
		m.access[id] = rec
	}
	rec.touch(now, m.opts.AccessWindow, m.opts.HeatDecayRate)

	vec, err := m.decode(emb)
	if err != nil {
		m.logger.Error("compression: decode failed", "vector_id", id, "tier", emb.Tier, "err", err)
		return nil, false
	}
	return vec, true
}

// Heat returns the current heat score for id, or 0 if unknown.
func (m *Manager) Heat(id string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.access[id]; ok {
		return r.HeatScore
	}
	return 0
}

// Tier returns the current tier for id.
func (m *Manager) Tier(id string) (Tier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.embeddings[id]
	if !ok {
		return 0, false
	}
	return e.Tier, true
}

// TransitionTier moves id to target, which must be strictly later in tier
// order (spec.md §4.3 "transitionTier"). Returns memerr.InvalidTier
// otherwise, and memerr.CodecNotTrained if the target codec isn't ready.
func (m *Manager) TransitionTier(id string, target Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, target)
}

func (m *Manager) transitionLocked(id string, target Tier) error {
	emb, ok := m.embeddings[id]
	if !ok {
		return memerr.New(memerr.NotFound, fmt.Sprintf("compression: unknown vector %q", id))
	}
	if target <= emb.Tier {
		return memerr.Wrap(memerr.InvalidTier, "compression: tier must advance", ErrInvalidTier)
	}
	vec, err := m.decode(emb)
	if err != nil {
		return memerr.Wrap(memerr.Internal, "compression: decode before transition", err)
	}
	data, codebookGen, err := m.encodeForTier(vec, target)
	if err != nil {
		return err
	}
	emb.Tier = target
	emb.Data = data
	emb.CompressedAt = m.now().UnixMilli()
	emb.CodebookIndex = codebookGen
	m.logger.Info("compression: tier transition", "vector_id", id, "tier", target.String())
	return nil
}

// CheckTransitions walks every access record and advances any vector whose
// current heat-band tier is later than its stored tier, skipping silently
// if the target codebook isn't trained yet (spec.md §4.3 "checkTransitions").
func (m *Manager) CheckTransitions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.access {
		emb, ok := m.embeddings[id]
		if !ok {
			continue
		}
		target := TierForHeat(m.configs, rec.HeatScore)
		if target <= emb.Tier {
			continue
		}
		if err := m.transitionLocked(id, target); err != nil {
			if codeOf(err) == memerr.CodecNotTrained {
				continue
			}
			m.logger.Warn("compression: auto-transition skipped", "vector_id", id, "err", err)
		}
	}
}

// DecayAll applies time-based heat decay to every access record without
// touching access counts, the first half of the auto-transition scheduler
// tick (spec.md §4.3).
func (m *Manager) DecayAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, rec := range m.access {
		rec.decay(now, m.opts.HeatDecayRate)
	}
}

// TrainingBufferSize reports how many raw vectors are buffered for codebook
// training.
func (m *Manager) TrainingBufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trainingBuffer)
}

// TrainAll trains the PQ8, PQ4, and binary codebooks from the current
// training buffer (spec.md §4.2 "Training requires a minimum sample
// count").
func (m *Manager) TrainAll(iterations int, seed int64) error {
	m.mu.Lock()
	samples := make([][]float32, len(m.trainingBuffer))
	copy(samples, m.trainingBuffer)
	m.mu.Unlock()

	if err := m.pq8.Train(samples, iterations, seed); err != nil {
		return err
	}
	if err := m.pq4.Train(samples, iterations, seed+1); err != nil {
		return err
	}
	if err := m.binary.Train(samples, "median"); err != nil {
		return err
	}
	m.logger.Info("compression: codebooks trained", "samples", len(samples))
	return nil
}

// ReconstructionError returns the MSE between id's original vector (if
// retained) and its current decompressed form, for the invariant bound
// checks in spec.md §8.
func (m *Manager) ReconstructionError(id string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orig, ok := m.originals[id]
	if !ok {
		return 0, false
	}
	emb, ok := m.embeddings[id]
	if !ok {
		return 0, false
	}
	dec, err := m.decode(emb)
	if err != nil {
		return 0, false
	}
	return vectorutil.MSE(orig, dec), true
}

func (m *Manager) decode(emb *CompressedEmbedding) ([]float32, error) {
	switch emb.Tier {
	case Hot, Warm:
		if emb.Tier == Hot {
			return decodeFloat32(emb.Data, emb.OriginalDim), nil
		}
		return codec.DecodeFloat16(emb.Data), nil
	case Cool:
		return m.pq8.DecodePQ8(emb.Data)
	case Cold:
		return m.pq4.DecodePQ4(emb.Data, numPQ4Codes(m.pq4, emb.OriginalDim))
	case Frozen:
		return m.binary.Decode(emb.Data)
	default:
		return nil, fmt.Errorf("compression: unknown tier %v", emb.Tier)
	}
}

func (m *Manager) encodeForTier(vec []float32, target Tier) ([]byte, int, error) {
	switch target {
	case Warm:
		return codec.EncodeFloat16(vec), -1, nil
	case Cool:
		if !m.pq8.Trained() {
			return nil, 0, memerr.New(memerr.CodecNotTrained, "compression: pq8 codebook not trained")
		}
		data, err := m.pq8.EncodePQ8(vec)
		return data, m.pq8.Generation(), err
	case Cold:
		if !m.pq4.Trained() {
			return nil, 0, memerr.New(memerr.CodecNotTrained, "compression: pq4 codebook not trained")
		}
		data, err := m.pq4.EncodePQ4(vec)
		return data, m.pq4.Generation(), err
	case Frozen:
		if !m.binary.Trained() {
			return nil, 0, memerr.New(memerr.CodecNotTrained, "compression: binary codebook not trained")
		}
		data, err := m.binary.Encode(vec)
		return data, m.binary.Generation(), err
	default:
		return nil, 0, memerr.New(memerr.InvalidTier, "compression: unsupported target tier")
	}
}

func numPQ4Codes(cb *codec.PQCodebook, _ int) int {
	// PQ4 packs two 16-centroid codes per byte; the code count is exactly
	// the subvector count configured at construction.
	return cb.NumSubvectors()
}

func encodeFloat32(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, x := range v {
		bits := math.Float32bits(x)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

func decodeFloat32(data []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim && i*4+3 < len(data); i++ {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func codeOf(err error) memerr.Code {
	if me, ok := err.(*memerr.Error); ok {
		return me.Code
	}
	return ""
}
