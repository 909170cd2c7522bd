package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/tendant/product-snapshot-pipeline/internal/normalize"
	"github.com/tendant/product-snapshot-pipeline/internal/orchestrator"
	"github.com/tendant/product-snapshot-pipeline/internal/snapshot"
	"github.com/tendant/product-snapshot-pipeline/internal/upload"
	"github.com/tendant/product-snapshot-pipeline/internal/vision"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// SnapshotHandler serves the synchronous snapshot API
type SnapshotHandler struct {
	orch  *orchestrator.Orchestrator
	store *snapshot.Store
}

// NewSnapshotHandler creates the snapshot API handler
func NewSnapshotHandler(orch *orchestrator.Orchestrator, store *snapshot.Store) *SnapshotHandler {
	return &SnapshotHandler{orch: orch, store: store}
}

// Register attaches routes to the mux
func (h *SnapshotHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/products/", h.route)
	mux.HandleFunc("/v1/stats", h.handleStats)
}

// route dispatches /v1/products/{id}/snapshot and /v1/products/{id}/snapshots
func (h *SnapshotHandler) route(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/products/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "product id is required", http.StatusBadRequest)
		return
	}
	productID, action := parts[0], parts[1]

	switch {
	case action == "snapshot" && r.Method == http.MethodPost:
		h.handleCreate(w, r, productID)
	case action == "snapshot" && r.Method == http.MethodGet:
		h.handleLatest(w, r, productID)
	case action == "snapshots" && r.Method == http.MethodGet:
		h.handleHistory(w, r, productID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreate handles POST /v1/products/{id}/snapshot - runs the pipeline
// on an uploaded image
func (h *SnapshotHandler) handleCreate(w http.ResponseWriter, r *http.Request, productID string) {
	payload, err := readImagePayload(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid upload: %v", err), http.StatusBadRequest)
		return
	}

	opts := parseOptions(r)

	result, err := h.orch.Run(r.Context(), productID, payload, opts)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		RunID     string             `json:"run_id"`
		Duplicate bool               `json:"duplicate"`
		Snapshot  *snapshot.Snapshot `json:"snapshot"`
	}{result.RunID, result.Duplicate, result.Snapshot})
}

// handleLatest handles GET /v1/products/{id}/snapshot - latest completed
func (h *SnapshotHandler) handleLatest(w http.ResponseWriter, r *http.Request, productID string) {
	snap, err := h.store.LatestCompleted(r.Context(), productID)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	if snap == nil {
		http.Error(w, "No completed snapshot for product", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHistory handles GET /v1/products/{id}/snapshots
func (h *SnapshotHandler) handleHistory(w http.ResponseWriter, r *http.Request, productID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	snaps, err := h.store.History(r.Context(), productID, limit, offset)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	if snaps == nil {
		snaps = []*snapshot.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleStats handles GET /v1/stats
func (h *SnapshotHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// readImagePayload extracts the image from a multipart form ("file" field)
// or a raw request body
func readImagePayload(r *http.Request) (upload.Payload, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return upload.Payload{}, fmt.Errorf("missing file field: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return upload.Payload{}, fmt.Errorf("failed to read file: %w", err)
		}
		return upload.Payload{
			Data:         data,
			ContentType:  header.Header.Get("Content-Type"),
			DeclaredSize: header.Size,
		}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return upload.Payload{}, fmt.Errorf("failed to read body: %w", err)
	}
	return upload.Payload{
		Data:         data,
		ContentType:  contentType,
		DeclaredSize: r.ContentLength,
	}, nil
}

// parseOptions reads the features query parameter (comma-separated).
// Absent means all features.
func parseOptions(r *http.Request) pipeline.Options {
	raw := r.URL.Query().Get("features")
	if raw == "" {
		return pipeline.DefaultOptions()
	}
	var opts pipeline.Options
	for _, f := range strings.Split(raw, ",") {
		switch strings.TrimSpace(f) {
		case pipeline.FeatureTags:
			opts.Tags = true
		case pipeline.FeatureDescription:
			opts.Description = true
		case pipeline.FeatureColor:
			opts.Color = true
		}
	}
	return opts
}

// writePipelineError maps the pipeline error taxonomy onto HTTP statuses:
// validation → 4xx, analysis → 502/504, normalization → 502, store → 503
func writePipelineError(w http.ResponseWriter, err error) {
	var validationErr *upload.ValidationError
	if errors.As(err, &validationErr) {
		status := http.StatusBadRequest
		switch validationErr.Reason {
		case upload.ReasonTooLarge:
			status = http.StatusRequestEntityTooLarge
		case upload.ReasonUnsupportedType:
			status = http.StatusUnsupportedMediaType
		}
		writeErrorJSON(w, status, string(validationErr.Reason), validationErr.Detail)
		return
	}

	var analysisErr *vision.AnalysisError
	if errors.As(err, &analysisErr) {
		status := http.StatusBadGateway
		if analysisErr.Kind == vision.KindTransientExhausted {
			status = http.StatusGatewayTimeout
		}
		writeErrorJSON(w, status, string(analysisErr.Kind), analysisErr.Error())
		return
	}

	var normErr *normalize.NormalizationError
	if errors.As(err, &normErr) {
		writeErrorJSON(w, http.StatusBadGateway, "normalization_failed", normErr.Error())
		return
	}

	var persistErr *snapshot.PersistenceError
	if errors.As(err, &persistErr) {
		writeErrorJSON(w, http.StatusServiceUnavailable, "store_unavailable", persistErr.Error())
		return
	}

	log.Printf("Unclassified pipeline error: %v", err)
	writeErrorJSON(w, http.StatusInternalServerError, "internal", err.Error())
}

func writeErrorJSON(w http.ResponseWriter, status int, reason, detail string) {
	writeJSON(w, status, map[string]string{
		"error":  reason,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
