// Package remoteserver is an in-memory implementation of the notes HTTP API.
// It backs `gophnotes serve` and the client tests.
package remoteserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
)

type Server struct {
	mu      sync.Mutex
	notes   map[string]models.Note
	nextID  int
	failure int
	calls   []string
	log     *slog.Logger
	now     func() time.Time
}

func New(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		notes:  make(map[string]models.Note),
		nextID: 1,
		log:    log,
		now:    time.Now,
	}
}

// Handler returns the routed API with access logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			s.log.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Use(s.record)

	r.Methods(http.MethodGet).Path("/notes").HandlerFunc(s.listNotes)
	r.Methods(http.MethodPost).Path("/notes").HandlerFunc(s.createNote)
	r.Methods(http.MethodPut).Path("/notes/{id}").HandlerFunc(s.updateNote)
	r.Methods(http.MethodDelete).Path("/notes/{id}").HandlerFunc(s.deleteNote)
	return r
}

// SetFailure makes every request answer with status until it is reset with 0.
func (s *Server) SetFailure(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = status
}

// Calls lists handled requests as "METHOD path" in arrival order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Notes returns the stored notes ordered by id.
func (s *Server) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

// Put stores n as is, advancing the id counter past numeric ids.
func (s *Server) Put(n models.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.Synced = true
	s.notes[n.ID] = n
	if id, err := strconv.Atoi(n.ID); err == nil && id >= s.nextID {
		s.nextID = id + 1
	}
}

func (s *Server) sorted() []models.Note {
	notes := make([]models.Note, 0, len(s.notes))
	for _, n := range s.notes {
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool {
		a, errA := strconv.Atoi(notes[i].ID)
		b, errB := strconv.Atoi(notes[j].ID)
		if errA == nil && errB == nil {
			return a < b
		}
		return notes[i].ID < notes[j].ID
	})
	return notes
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		status := s.failure
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listNotes(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	notes := s.sorted()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var in models.Note
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid note: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	n := s.stamp(in)
	n.ID = strconv.Itoa(s.nextID)
	s.nextID++
	s.notes[n.ID] = n
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in models.Note
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid note: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if _, ok := s.notes[id]; !ok {
		s.mu.Unlock()
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}
	n := s.stamp(in)
	n.ID = id
	s.notes[id] = n
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, n)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	_, ok := s.notes[id]
	delete(s.notes, id)
	s.mu.Unlock()

	if !ok {
		http.Error(w, "note not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stamp keeps the client's updatedAt when given, otherwise the server clock.
func (s *Server) stamp(in models.Note) models.Note {
	n := models.Note{
		Title:     in.Title,
		Content:   in.Content,
		UpdatedAt: models.Timestamp(in.UpdatedAt),
		Synced:    true,
	}
	if in.UpdatedAt.IsZero() {
		n.UpdatedAt = models.Timestamp(s.now())
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
