package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/engine"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")

	var nodes []*store.Node
	var err error
	if topic != "" {
		nodes, err = s.store.ListTopic(topic)
	} else {
		nodes, err = s.store.ListAll()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type nodeView struct {
		ID       string     `json:"id"`
		Topic    string     `json:"topic"`
		Title    string     `json:"title"`
		Abstract string     `json:"abstract"`
		Tier     store.Tier `json:"tier"`
		Score    float64    `json:"score"`
	}

	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, nodeView{
			ID:       n.ID,
			Topic:    n.Topic,
			Title:    n.Title,
			Abstract: n.Abstract,
			Tier:     n.Tier,
			Score:    s.engine.Score(n),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic      string `json:"topic"`
		Title      string `json:"title"`
		Content    string `json:"content"`
		Abstract   string `json:"abstract"`
		Overview   string `json:"overview"`
		Provenance string `json:"provenance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Topic == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "topic and title required")
		return
	}

	node, merged, err := s.engine.Encode(r.Context(), engine.EncodeRequest{
		Topic:      req.Topic,
		Title:      req.Title,
		Content:    req.Content,
		Abstract:   req.Abstract,
		Overview:   req.Overview,
		Provenance: store.Provenance(req.Provenance),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"id":     node.ID,
		"topic":  node.Topic,
		"title":  node.Title,
		"tier":   node.Tier,
		"merged": merged,
	})
}

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Execute bool `json:"execute"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	report, err := s.engine.RunGC(r.Context(), req.Execute)
	if errors.Is(err, engine.ErrCycleRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var err error
	var results any
	if r.URL.Query().Get("mode") == "vector" {
		results, err = s.index.VSearch(r.Context(), q, limit)
	} else {
		results, err = s.index.Query(r.Context(), q, limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	id := r.URL.Query().Get("id")
	if topic == "" || id == "" {
		writeError(w, http.StatusBadRequest, "topic and id required")
		return
	}

	proj, err := s.engine.ProjectContext(topic, id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, proj)
}
