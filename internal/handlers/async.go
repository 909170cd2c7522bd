package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/tendant/product-snapshot-pipeline/internal/runs"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// AsyncHandler handles asynchronous snapshot run requests backed by the
// DBOS queue
type AsyncHandler struct {
	runner *runs.Runner
}

// NewAsyncHandler creates a new async handler
func NewAsyncHandler(runner *runs.Runner) *AsyncHandler {
	return &AsyncHandler{runner: runner}
}

// Register attaches routes to the mux
func (h *AsyncHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/runs", h.HandleEnqueue)
	mux.HandleFunc("/v1/runs/", h.HandleStatus)
}

// HandleEnqueue handles POST /v1/runs - enqueues a snapshot run and returns
// immediately
func (h *AsyncHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pipeline.SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if req.ProductID == "" {
		http.Error(w, "product_id is required", http.StatusBadRequest)
		return
	}

	log.Printf("Enqueueing snapshot run: product_id=%s image_url=%s", req.ProductID, req.ImageURL)

	runID, err := h.runner.Enqueue(r.Context(), req)
	if err != nil {
		if errors.Is(err, runs.ErrNoImage) {
			http.Error(w, "image_url is required", http.StatusBadRequest)
			return
		}
		log.Printf("Failed to enqueue snapshot run: %v", err)
		http.Error(w, fmt.Sprintf("Failed to enqueue run: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("Snapshot run enqueued: run_id=%s", runID)

	writeJSON(w, http.StatusAccepted, pipeline.SnapshotResponse{RunID: runID})
}

// HandleStatus handles GET /v1/runs/{runID} - returns run status
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := r.URL.Path[len("/v1/runs/"):]
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	status, err := h.runner.GetStatus(r.Context(), runID)
	if err != nil {
		log.Printf("Failed to get run status: %v", err)
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
