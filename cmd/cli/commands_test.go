package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw     string
		want    bracket.Score
		wantErr bool
	}{
		{raw: "2-1", want: bracket.Score{A: 2, B: 1}},
		{raw: " 0 - 3 ", want: bracket.Score{A: 0, B: 3}},
		{raw: "2:1", wantErr: true},
		{raw: "x-1", wantErr: true},
		{raw: "2-", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseScore(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPerformRequestSendsActorAndBody(t *testing.T) {
	var gotActor, gotRole string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = r.Header.Get(middleware.ActorHeader)
		gotRole = r.Header.Get(middleware.RoleHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	host, actor, role = srv.URL, "org-1", "organizer"
	t.Cleanup(func() { host, actor, role = "http://localhost:8080", "", "participant" })

	require.NoError(t, performRequest(http.MethodPost, "/tournaments", map[string]string{"name": "Cup"}))
	assert.Equal(t, "org-1", gotActor)
	assert.Equal(t, "organizer", gotRole)
	assert.Equal(t, map[string]string{"name": "Cup"}, gotBody)
}

func TestPerformRequestFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	host = srv.URL
	t.Cleanup(func() { host = "http://localhost:8080" })

	assert.Error(t, performRequest(http.MethodGet, "/health", nil))
}
