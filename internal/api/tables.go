package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/litemodel/internal/schema"
)

// TableResponse describes one created table.
type TableResponse struct {
	*schema.TableSchema
	Rows *int64 `json:"rows,omitempty"`
}

// TableListResponse is the body of GET /tables.
type TableListResponse struct {
	Tables []TableResponse `json:"tables"`
	Count  int             `json:"count"`
}

// handleListTables returns the schema of every registered model, by name.
func (s *Server) handleListTables(w http.ResponseWriter, _ *http.Request) {
	models := s.registry.Models()

	tables := make([]TableResponse, 0, len(models))
	for _, m := range models {
		tables = append(tables, TableResponse{TableSchema: m.Schema()})
	}

	writeJSON(w, http.StatusOK, TableListResponse{
		Tables: tables,
		Count:  len(tables),
	})
}

// handleGetTable returns one table's schema and its current row count.
func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	m, ok := s.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("table %q is not registered", name))
		return
	}

	rows, err := m.Count(r.Context())
	if err != nil {
		s.logger.Error("counting rows", "table", name, "error", err,
			"request_id", requestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to count rows")
		return
	}

	writeJSON(w, http.StatusOK, TableResponse{
		TableSchema: m.Schema(),
		Rows:        &rows,
	})
}
