package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notelock/core/internal/models"
	"github.com/notelock/core/internal/store"
)

func TestDeriveAuth(t *testing.T) {
	a1 := DeriveAuth("alice", "hunter2")
	a2 := DeriveAuth("alice", "hunter2")
	assert.Equal(t, a1, a2, "derivation must be deterministic")
	assert.Len(t, a1, 64, "hex-encoded sha256 mac")

	assert.NotEqual(t, a1, DeriveAuth("alice", "other"))
	assert.NotEqual(t, a1, DeriveAuth("bob", "hunter2"))
}

func TestLoginSendsDerivedAuth(t *testing.T) {
	var got authRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Session{UserID: "u1", Token: "tok-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	session, err := c.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, "u1", session.UserID)
	assert.Equal(t, "tok-1", session.Token)
	assert.Equal(t, "alice", got.Username)
	// The password itself never goes over the wire.
	assert.Equal(t, DeriveAuth("alice", "hunter2"), got.Auth)
	assert.NotEqual(t, "hunter2", got.Auth)
}

func TestLogoutSendsBearerToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.Logout(context.Background(), "tok-1"))
	assert.Equal(t, "Bearer tok-1", auth)
}

func TestErrorCarriesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "bad credentials")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad credentials")
}

func TestPushSync(t *testing.T) {
	var got struct {
		Items []*store.OutgoingItem `json:"items"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/push", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	items := []*store.OutgoingItem{
		{Seq: 1, Action: "create", Type: models.TypeNote, RecordID: "n1", Data: json.RawMessage(`{"id":"n1"}`)},
		{Seq: 2, Action: "delete", Type: models.TypeBoard, RecordID: "b1"},
	}

	c := NewClient(srv.URL)
	require.NoError(t, c.PushSync(context.Background(), "tok", items))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "n1", got.Items[0].RecordID)
	assert.Equal(t, "delete", got.Items[1].Action)
}

func TestPullSync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sync/pull", r.URL.Path)
		var req struct {
			Since int64 `json:"since"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(42), req.Since)

		_ = json.NewEncoder(w).Encode(SyncBatch{
			Items: []*store.OutgoingItem{
				{Action: "update", Type: models.TypeNote, RecordID: "n9"},
			},
			Until: 99,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	batch, err := c.PullSync(context.Background(), "tok", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(99), batch.Until)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, "n9", batch.Items[0].RecordID)
}

func TestSetEndpoint(t *testing.T) {
	c := NewClient("https://old.example.com")
	assert.Equal(t, "https://old.example.com", c.Endpoint())
	c.SetEndpoint("https://new.example.com")
	assert.Equal(t, "https://new.example.com", c.Endpoint())
}
