package chi

import (
	"bufio"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Streaming uses NDJSON: one JSON document per line. Upserts stream in,
// search results stream out.

// maxStreamLine bounds one NDJSON chunk; vectors are wide but bounded by
// the device dimension cap, so this is generous.
const maxStreamLine = 8 << 20

// upsertPointsStream handles PUT /collections/{name}/points/stream. The
// body is a sequence of upsert chunks; the response is one aggregated
// completion. Chunks apply in order and the stream stops at the first
// failing chunk.
func (s *Server) upsertPointsStream(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "name")

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 64<<10), maxStreamLine)

	written := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk upsertPointsRequest
		if err := json.Unmarshal(line, &chunk); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid stream chunk: "+err.Error())
			return
		}
		if len(chunk.Points) == 0 {
			continue
		}
		n, err := s.points.Upsert(r.Context(), collection, inputsFromWire(chunk.Points))
		written += n
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Broken stream: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{Status: "ok", Upserted: written})
}

// searchPointsStream handles POST /collections/{name}/points/search/stream.
// The request is a regular search; results stream back one per line as
// they are serialized, flushed eagerly so slow consumers see progress.
func (s *Server) searchPointsStream(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validateSearchRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	opts, err := searchOptionsFromWire(req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	hits, err := s.search.Search(r.Context(), chi.URLParam(r, "name"), req.Vector, req.Limit, opts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for _, hit := range hits {
		if err := enc.Encode(scoredPointToWire(hit)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
