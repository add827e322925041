package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/wildidbackend/database"
)

// TableHandler exposes the generic whitelisted property accessors, mainly
// for tooling and batch scripts.
type TableHandler struct {
	DB *sql.DB
}

func (th *TableHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := database.ListTables(th.DB)
	if err != nil {
		log.Printf("Error listing tables: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list tables"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": tables})
}

func (th *TableHandler) ListColumns(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	columns, pkColumn, err := database.ListColumns(th.DB, table)
	if err != nil {
		var unsafeErr *database.UnsafeIdentifierError
		if errors.As(err, &unsafeErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": unsafeErr.Error()})
		} else {
			log.Printf("Error listing columns for %s: %v", table, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to list columns"})
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"columns": columns, "primary_key": pkColumn})
}

// GetProperty reads one column for a batch of row ids. Unknown ids yield
// null entries.
func (th *TableHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	column := chi.URLParam(r, "column")

	var req struct {
		IDs []interface{} `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	values, err := database.GetTableProperty(th.DB, table, column, req.IDs)
	if err != nil {
		var unsafeErr *database.UnsafeIdentifierError
		if errors.As(err, &unsafeErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": unsafeErr.Error()})
		} else {
			log.Printf("Error reading %s.%s: %v", table, column, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read property"})
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"values": values})
}

// SetProperty writes one column for a batch of row ids.
func (th *TableHandler) SetProperty(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	column := chi.URLParam(r, "column")

	var req struct {
		IDs    []interface{} `json:"ids"`
		Values []interface{} `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}

	err := database.SetTableProperty(th.DB, table, column, req.IDs, req.Values)
	if err != nil {
		var unsafeErr *database.UnsafeIdentifierError
		switch {
		case errors.As(err, &unsafeErr):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": unsafeErr.Error()})
		case errors.Is(err, database.ErrInvalidArity):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("Error writing %s.%s: %v", table, column, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to write property"})
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Property updated successfully"})
}
