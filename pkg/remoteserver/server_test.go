package remoteserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/gophnotes-client/pkg/models"
)

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_CreateAssignsSequentialIDs(t *testing.T) {
	s := New(nil)
	h := s.Handler()

	for _, want := range []string{"1", "2"} {
		rec := do(t, h, http.MethodPost, "/notes", models.Note{Title: "t"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var n models.Note
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
		assert.Equal(t, want, n.ID)
		assert.False(t, n.UpdatedAt.IsZero(), "server stamps missing updatedAt")
	}
}

func TestServer_UpdateAndDelete(t *testing.T) {
	s := New(nil)
	s.Put(models.Note{ID: "7", Title: "seed"})
	h := s.Handler()
	stamp := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	rec := do(t, h, http.MethodPut, "/notes/7", models.Note{Title: "changed", UpdatedAt: stamp})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "changed", s.Notes()[0].Title)
	assert.True(t, stamp.Equal(s.Notes()[0].UpdatedAt))

	rec = do(t, h, http.MethodPut, "/notes/8", models.Note{Title: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/notes/7", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/notes/7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Ids continue after seeded ones.
	rec = do(t, h, http.MethodPost, "/notes", models.Note{Title: "next"})
	var n models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, "8", n.ID)
}

func TestServer_FailureAndCalls(t *testing.T) {
	s := New(nil)
	h := s.Handler()

	s.SetFailure(http.StatusBadGateway)
	rec := do(t, h, http.MethodGet, "/notes", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	s.SetFailure(0)
	rec = do(t, h, http.MethodGet, "/notes", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, []string{"GET /notes", "GET /notes"}, s.Calls())
}
