package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"collision-batcher/internal/collision"
	"collision-batcher/internal/journal"
	"collision-batcher/internal/sim"
)

const (
	// DefaultPairLimit is how many pairs /api/pairs returns without ?limit
	DefaultPairLimit = 1000

	// MaxPairLimit bounds ?limit so one request cannot serialize a whole tick
	MaxPairLimit = 10000

	maxRequestBody = 1 << 10
)

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

type routerHandlers struct {
	engine   EngineInterface
	journal  *journal.Journal
	limits   *IPRateLimiter
	renderMu sync.Mutex
	renderer FrameRenderer
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"detector": h.engine.DetectorName(),
	})
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"stats":  h.engine.Stats(),
		"latest": h.engine.Snapshot(),
	}
	if h.journal != nil {
		stats["journal"] = h.journal.GetStats()
	}
	if h.limits != nil {
		stats["rateLimits"] = h.limits.Stats()
	}
	writeJSON(w, stats)
}

func (h *routerHandlers) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultPairLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = min(n, MaxPairLimit)
	}

	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "no tick has completed yet", http.StatusServiceUnavailable)
		return
	}

	pairs := snap.Pairs
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	if pairs == nil {
		pairs = []collision.CollidingPair{}
	}

	writeJSON(w, map[string]any{
		"tick":      snap.Tick,
		"pairCount": snap.PairCount,
		"returned":  len(pairs),
		"truncated": snap.Truncated,
		"error":     snap.Error,
		"pairs":     pairs,
	})
}

func (h *routerHandlers) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := map[string]any{
		"detector":   h.engine.DetectorName(),
		"scale":      h.engine.Scale(),
		"population": h.engine.PopulationSize(),
	}
	if snap := h.engine.Snapshot(); snap != nil {
		cfg["maxBatchSize"] = snap.MaxBatchSize
		cfg["jobs"] = snap.Jobs
	}
	writeJSON(w, cfg)
}

// scaleRequest is the body of POST /api/scale
type scaleRequest struct {
	Scale float32 `json:"scale"`
}

func (h *routerHandlers) handleSetScale(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var req scaleRequest
	if err := sonnet.Unmarshal(body, &req); err != nil {
		writeError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	from := h.engine.Scale()
	if err := h.engine.SetScale(req.Scale); err != nil {
		if errors.Is(err, collision.ErrInvalidScale) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, map[string]any{
		"success": true,
		"from":    from,
		"scale":   h.engine.Scale(),
	})
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "rendering disabled", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")

	// The renderer reuses one drawing context
	h.renderMu.Lock()
	defer h.renderMu.Unlock()
	if err := h.renderer.WritePNG(w, h.engine.Snapshot()); err != nil {
		log.Printf("⚠️ Frame render failed: %v", err)
	}
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data any) {
	body, err := sonnet.Marshal(data)
	if err != nil {
		writeError(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func writeError(w http.ResponseWriter, message string, code int) {
	body, _ := sonnet.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

var _ EngineInterface = (*sim.Engine)(nil)
