package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleAPIScreen(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookupScreen(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sc.View())
}
