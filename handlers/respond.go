package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// writeJSON writes data as a JSON response with the given status. A nil data
// value writes the status header only.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}
