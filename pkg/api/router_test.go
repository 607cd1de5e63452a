package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fioncat/csync/pkg/api/handlers"
	"github.com/fioncat/csync/pkg/auth"
	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/models"
	"github.com/fioncat/csync/pkg/revision"
	"github.com/fioncat/csync/pkg/secret"
	"github.com/fioncat/csync/pkg/store"
)

const (
	testAdminPassword = "admin-secret"

	// remoteAddr is the default peer; loopbackAddr grants admin access.
	remoteAddr   = "192.0.2.10:50000"
	loopbackAddr = "127.0.0.1:50000"
)

type testServer struct {
	router   http.Handler
	store    *store.Store
	tokens   *auth.TokenService
	register *revision.Register
	bus      *events.Bus
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerConfig(t, APIConfig{}, testAdminPassword)
}

func newTestServerConfig(t *testing.T, config APIConfig, adminPassword string) *testServer {
	t.Helper()

	s, err := store.New(&store.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	tokens := auth.NewTokenService(key, time.Hour)

	register := revision.NewRegister()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	router := NewRouter(config, Services{
		Store:         s,
		Register:      register,
		Bus:           bus,
		Tokens:        tokens,
		AdminPassword: adminPassword,
		RecycleTTL:    time.Hour,
		SaltLength:    16,
		Version:       "test",
	})

	return &testServer{
		router:   router,
		store:    s,
		tokens:   tokens,
		register: register,
		bus:      bus,
	}
}

// createUser inserts a user directly into the store.
func (ts *testServer) createUser(t *testing.T, name, password string, admin bool) {
	t.Helper()

	salt, err := secret.NewSalt(16)
	if err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}
	err = ts.store.Transaction(context.Background(), func(tx *store.Tx) error {
		_, err := tx.CreateUser(store.CreateUserParams{
			Name:  name,
			Hash:  secret.PasswordHash(password, salt),
			Salt:  salt,
			Admin: admin,
		}, time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
}

type requestOption func(*http.Request)

// basicAuth builds the Authorization value for the basic scheme:
// the name stays readable, only the password is base64.
func basicAuth(name, password string) string {
	return "Basic " + name + ":" + base64.StdEncoding.EncodeToString([]byte(password))
}

func withAuth(value string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", value) }
}

func withHeader(name, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func fromLoopback(r *http.Request) {
	r.RemoteAddr = loopbackAddr
}

// do serves one request through the full router. The peer is remote
// unless fromLoopback is passed.
func (ts *testServer) do(t *testing.T, method, target string, body []byte, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = remoteAddr
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// putText uploads a text blob and fails the test on any rejection.
func (ts *testServer) putText(t *testing.T, name, password, content string) {
	t.Helper()

	w := ts.do(t, http.MethodPut, "/v1/blob", []byte(content),
		withAuth(basicAuth(name, password)),
		withHeader(handlers.HeaderBlobType, "text"),
		withHeader(handlers.HeaderSha256, secret.Sha256Hex([]byte(content))),
	)
	if w.Code != http.StatusOK {
		t.Fatalf("put blob failed: status %d, body %s", w.Code, w.Body.String())
	}
}

type testEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeEnvelope asserts the HTTP status and the mirrored envelope code.
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, wantStatus int) testEnvelope {
	t.Helper()

	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, wantStatus, w.Body.String())
	}
	var env testEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode envelope: %v (body: %s)", err, w.Body.String())
	}
	if env.Code != wantStatus {
		t.Errorf("envelope code = %d, want %d", env.Code, wantStatus)
	}
	return env
}

func decodeData(t *testing.T, env testEnvelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("failed to decode data payload: %v", err)
	}
}

type metadataList struct {
	Items []models.Metadata `json:"items"`
	Total int64             `json:"total"`
}

func (ts *testServer) listMetadata(t *testing.T, target string, opts ...requestOption) metadataList {
	t.Helper()

	w := ts.do(t, http.MethodGet, target, nil, opts...)
	env := decodeEnvelope(t, w, http.StatusOK)
	var list metadataList
	decodeData(t, env, &list)
	return list
}

type userList struct {
	Items []models.User `json:"items"`
	Total int64         `json:"total"`
}

func recvEvent(t *testing.T, sub *events.Subscriber) models.Event {
	t.Helper()

	select {
	case event, ok := <-sub.C():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return models.Event{}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	// No credentials, remote peer.
	w := ts.do(t, http.MethodGet, "/v1/healthz", nil)
	env := decodeEnvelope(t, w, http.StatusOK)

	var data handlers.HealthData
	decodeData(t, env, &data)
	if data.Version != "test" {
		t.Errorf("version = %q, want %q", data.Version, "test")
	}
	if data.Timestamp == 0 {
		t.Error("expected a timestamp")
	}
}

func TestAuthRejections(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"scheme only", "Basic"},
		{"too many fields", "Basic a b"},
		{"unsupported scheme", "Digest abc"},
		{"basic without colon", "Basic alice"},
		{"basic with empty name", "Basic :" + base64.StdEncoding.EncodeToString([]byte("pw"))},
		{"basic with bad base64", "Basic alice:%%%"},
		{"unknown user", basicAuth("nobody", "pw")},
		{"wrong password", basicAuth("alice", "wrong")},
		{"garbage bearer", "Bearer not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []requestOption
			if tt.header != "" {
				opts = append(opts, withAuth(tt.header))
			}
			w := ts.do(t, http.MethodGet, "/v1/metadata", nil, opts...)
			decodeEnvelope(t, w, http.StatusUnauthorized)
		})
	}

	t.Run("valid credentials pass", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth(basicAuth("alice", "alice-pw")))
		decodeEnvelope(t, w, http.StatusOK)
	})

	t.Run("scheme is case-insensitive", func(t *testing.T) {
		header := "BASIC alice:" + base64.StdEncoding.EncodeToString([]byte("alice-pw"))
		w := ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth(header))
		decodeEnvelope(t, w, http.StatusOK)
	})
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t)
	adminHeader := basicAuth(models.AdminUserName, testAdminPassword)

	t.Run("loopback with password", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth(adminHeader), fromLoopback)
		decodeEnvelope(t, w, http.StatusOK)
	})

	t.Run("remote peer is rejected", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth(adminHeader))
		env := decodeEnvelope(t, w, http.StatusUnauthorized)
		if !strings.Contains(env.Message, "remote") {
			t.Errorf("message = %q, want a remote rejection", env.Message)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/metadata", nil,
			withAuth(basicAuth(models.AdminUserName, "wrong")), fromLoopback)
		decodeEnvelope(t, w, http.StatusUnauthorized)
	})

	t.Run("disabled when no password is configured", func(t *testing.T) {
		disabled := newTestServerConfig(t, APIConfig{}, "")
		w := disabled.do(t, http.MethodGet, "/v1/metadata", nil,
			withAuth(basicAuth(models.AdminUserName, "")), fromLoopback)
		decodeEnvelope(t, w, http.StatusUnauthorized)
	})
}

func TestTokenFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)

	w := ts.do(t, http.MethodGet, "/v1/token", nil, withAuth(basicAuth("alice", "alice-pw")))
	env := decodeEnvelope(t, w, http.StatusOK)

	var data handlers.TokenData
	decodeData(t, env, &data)
	if data.Token == "" {
		t.Fatal("expected a token")
	}
	want := time.Now().Add(time.Hour).Unix()
	if data.ExpireTime < want-5 || data.ExpireTime > want+5 {
		t.Errorf("expire_time = %d, want about %d", data.ExpireTime, want)
	}

	t.Run("token authenticates", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth("Bearer "+data.Token))
		decodeEnvelope(t, w, http.StatusOK)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		expired, _, err := ts.tokens.Generate("alice", false, time.Now().Add(-2*time.Hour))
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		w := ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth("Bearer "+expired))
		decodeEnvelope(t, w, http.StatusUnauthorized)
	})

	t.Run("admin token only from loopback", func(t *testing.T) {
		token, _, err := ts.tokens.Generate(models.AdminUserName, true, time.Now())
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		w := ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth("Bearer "+token))
		decodeEnvelope(t, w, http.StatusUnauthorized)

		w = ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth("Bearer "+token), fromLoopback)
		decodeEnvelope(t, w, http.StatusOK)
	})
}

func TestBlobLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))

	content := []byte("hello clipboard")
	digest := secret.Sha256Hex(content)

	w := ts.do(t, http.MethodPut, "/v1/blob", content, asAlice,
		withHeader(handlers.HeaderBlobType, "text"),
		withHeader(handlers.HeaderSha256, digest))
	decodeEnvelope(t, w, http.StatusOK)

	list := ts.listMetadata(t, "/v1/metadata", asAlice)
	if list.Total != 1 {
		t.Fatalf("total = %d, want 1", list.Total)
	}
	meta := list.Items[0]
	if meta.Sha256 != digest {
		t.Errorf("sha256 = %q, want %q", meta.Sha256, digest)
	}
	if meta.Owner != "alice" {
		t.Errorf("owner = %q, want %q", meta.Owner, "alice")
	}
	if meta.BlobType != models.BlobTypeText {
		t.Errorf("blob_type = %q, want %q", meta.BlobType, models.BlobTypeText)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", meta.Size, len(content))
	}

	t.Run("download", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, fmt.Sprintf("/v1/blob?id=%d", meta.ID), nil, asAlice)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if !bytes.Equal(w.Body.Bytes(), content) {
			t.Errorf("body = %q, want %q", w.Body.Bytes(), content)
		}
		if got := w.Header().Get(handlers.HeaderBlobType); got != "text" {
			t.Errorf("%s = %q, want %q", handlers.HeaderBlobType, got, "text")
		}
		if got := w.Header().Get(handlers.HeaderSha256); got != digest {
			t.Errorf("%s = %q, want %q", handlers.HeaderSha256, got, digest)
		}
		if got := w.Header().Get("Content-Type"); got != "application/octet-stream" {
			t.Errorf("content type = %q, want octet-stream", got)
		}
	})

	t.Run("pin and unpin", func(t *testing.T) {
		w := ts.do(t, http.MethodPatch, fmt.Sprintf("/v1/blob?id=%d&pin=true", meta.ID), nil, asAlice)
		decodeEnvelope(t, w, http.StatusOK)

		pinned := ts.listMetadata(t, "/v1/metadata", asAlice).Items[0]
		if !pinned.Pin {
			t.Error("expected the blob to be pinned")
		}
		if pinned.RecycleTime != 0 {
			t.Errorf("recycle_time = %d, want 0 while pinned", pinned.RecycleTime)
		}

		w = ts.do(t, http.MethodPatch, fmt.Sprintf("/v1/blob?id=%d&pin=false", meta.ID), nil, asAlice)
		decodeEnvelope(t, w, http.StatusOK)

		unpinned := ts.listMetadata(t, "/v1/metadata", asAlice).Items[0]
		if unpinned.Pin {
			t.Error("expected the blob to be unpinned")
		}
		if unpinned.RecycleTime <= unpinned.UpdateTime {
			t.Errorf("recycle_time = %d, want re-armed past update_time %d",
				unpinned.RecycleTime, unpinned.UpdateTime)
		}
	})

	t.Run("delete", func(t *testing.T) {
		w := ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/blob?id=%d", meta.ID), nil, asAlice)
		decodeEnvelope(t, w, http.StatusOK)

		if list := ts.listMetadata(t, "/v1/metadata", asAlice); list.Total != 0 {
			t.Errorf("total = %d, want 0 after delete", list.Total)
		}

		w = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/blob?id=%d", meta.ID), nil, asAlice)
		decodeEnvelope(t, w, http.StatusNotFound)
	})
}

func TestFileBlob(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))

	content := []byte("#!/bin/sh\necho hi\n")
	digest := secret.Sha256Hex(content)

	w := ts.do(t, http.MethodPut, "/v1/blob", content, asAlice,
		withHeader(handlers.HeaderBlobType, "file"),
		withHeader(handlers.HeaderSha256, digest),
		withHeader(handlers.HeaderFileName, "run.sh"),
		withHeader(handlers.HeaderFileMode, "493"))
	decodeEnvelope(t, w, http.StatusOK)

	meta := ts.listMetadata(t, "/v1/metadata", asAlice).Items[0]
	if meta.BlobType != models.BlobTypeFile {
		t.Fatalf("blob_type = %q, want file", meta.BlobType)
	}
	if meta.FileName != "run.sh" {
		t.Errorf("file_name = %q, want run.sh", meta.FileName)
	}
	if meta.FileMode != 493 {
		t.Errorf("file_mode = %d, want 493", meta.FileMode)
	}

	t.Run("download carries file headers", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, fmt.Sprintf("/v1/blob?id=%d", meta.ID), nil, asAlice)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		if got := w.Header().Get(handlers.HeaderFileName); got != "run.sh" {
			t.Errorf("%s = %q, want run.sh", handlers.HeaderFileName, got)
		}
		if got := w.Header().Get(handlers.HeaderFileMode); got != "493" {
			t.Errorf("%s = %q, want 493", handlers.HeaderFileMode, got)
		}
	})
}

func TestPutValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))

	content := []byte("payload")
	digest := secret.Sha256Hex(content)

	tests := []struct {
		name     string
		blobType string
		sha      string
		fileName string
		fileMode string
	}{
		{"missing type", "", digest, "", ""},
		{"invalid type", "zip", digest, "", ""},
		{"missing sha", "text", "", "", ""},
		{"file without name", "file", digest, "", "420"},
		{"file without mode", "file", digest, "notes.txt", ""},
		{"file with bad mode", "file", digest, "notes.txt", "rw-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []requestOption{asAlice}
			if tt.blobType != "" {
				opts = append(opts, withHeader(handlers.HeaderBlobType, tt.blobType))
			}
			if tt.sha != "" {
				opts = append(opts, withHeader(handlers.HeaderSha256, tt.sha))
			}
			if tt.fileName != "" {
				opts = append(opts, withHeader(handlers.HeaderFileName, tt.fileName))
			}
			if tt.fileMode != "" {
				opts = append(opts, withHeader(handlers.HeaderFileMode, tt.fileMode))
			}
			w := ts.do(t, http.MethodPut, "/v1/blob", content, opts...)
			decodeEnvelope(t, w, http.StatusBadRequest)
		})
	}

	t.Run("sha mismatch reports the body digest", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/blob", content, asAlice,
			withHeader(handlers.HeaderBlobType, "text"),
			withHeader(handlers.HeaderSha256, strings.Repeat("0", 64)))
		env := decodeEnvelope(t, w, http.StatusBadRequest)
		if !strings.Contains(env.Message, "sha256 mismatch") {
			t.Errorf("message = %q, want a sha256 mismatch", env.Message)
		}
		if !strings.Contains(env.Message, digest) {
			t.Errorf("message = %q, want the actual digest %s", env.Message, digest)
		}

		// The rejected upload must not leave a row behind.
		if list := ts.listMetadata(t, "/v1/metadata", asAlice); list.Total != 0 {
			t.Errorf("total = %d, want 0 after rejected upload", list.Total)
		}
	})
}

func TestPutDedup(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))

	ts.putText(t, "alice", "alice-pw", "hello")
	first := ts.listMetadata(t, "/v1/metadata", asAlice).Items[0]

	ts.putText(t, "alice", "alice-pw", "hello")
	list := ts.listMetadata(t, "/v1/metadata", asAlice)
	if list.Total != 1 {
		t.Fatalf("total = %d, want 1 after re-upload", list.Total)
	}
	if list.Items[0].ID <= first.ID {
		t.Errorf("replacement id = %d, want greater than %d", list.Items[0].ID, first.ID)
	}

	t.Run("dedup crosses owners", func(t *testing.T) {
		ts.createUser(t, "bob", "bob-pw", false)
		ts.putText(t, "bob", "bob-pw", "hello")

		if list := ts.listMetadata(t, "/v1/metadata", asAlice); list.Total != 0 {
			t.Errorf("alice total = %d, want 0 after bob re-uploaded the payload", list.Total)
		}
		bobList := ts.listMetadata(t, "/v1/metadata", withAuth(basicAuth("bob", "bob-pw")))
		if bobList.Total != 1 {
			t.Errorf("bob total = %d, want 1", bobList.Total)
		}
	})
}

func TestOwnershipIsolation(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	ts.createUser(t, "bob", "bob-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))
	asBob := withAuth(basicAuth("bob", "bob-pw"))
	asAdmin := withAuth(basicAuth(models.AdminUserName, testAdminPassword))

	ts.putText(t, "alice", "alice-pw", "alice private")
	id := ts.listMetadata(t, "/v1/metadata", asAlice).Items[0].ID

	// Another user's blob must look missing, not forbidden.
	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			target := fmt.Sprintf("/v1/blob?id=%d", id)
			if method == http.MethodPatch {
				target += "&pin=true"
			}
			w := ts.do(t, method, target, nil, asBob)
			decodeEnvelope(t, w, http.StatusNotFound)
		})
	}

	t.Run("owner filter cannot widen the view", func(t *testing.T) {
		list := ts.listMetadata(t, "/v1/metadata?owner=alice", asBob)
		if list.Total != 0 {
			t.Errorf("total = %d, want 0 for another user's rows", list.Total)
		}
	})

	t.Run("admin reaches everything", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, fmt.Sprintf("/v1/blob?id=%d", id), nil, asAdmin, fromLoopback)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}

		list := ts.listMetadata(t, "/v1/metadata?owner=alice", asAdmin, fromLoopback)
		if list.Total != 1 {
			t.Errorf("total = %d, want 1", list.Total)
		}
	})

	// The blob survived bob's delete attempt.
	if list := ts.listMetadata(t, "/v1/metadata", asAlice); list.Total != 1 {
		t.Errorf("total = %d, want the blob to survive", list.Total)
	}
}

func TestQueryValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))

	tests := []struct {
		name   string
		method string
		target string
	}{
		{"blob get without id", http.MethodGet, "/v1/blob"},
		{"blob get with bad id", http.MethodGet, "/v1/blob?id=abc"},
		{"blob get with negative id", http.MethodGet, "/v1/blob?id=-1"},
		{"blob patch with bad pin", http.MethodPatch, "/v1/blob?id=1&pin=maybe"},
		{"metadata with bad limit", http.MethodGet, "/v1/metadata?limit=ten"},
		{"metadata with negative offset", http.MethodGet, "/v1/metadata?offset=-5"},
		{"metadata with bad id", http.MethodGet, "/v1/metadata?id=xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.target, nil, asAlice)
			decodeEnvelope(t, w, http.StatusBadRequest)
		})
	}

	t.Run("unknown parameters are ignored", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/metadata?frobnicate=1", nil, asAlice)
		decodeEnvelope(t, w, http.StatusOK)
	})
}

func TestMetadataPagination(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))

	for i := 0; i < 12; i++ {
		ts.putText(t, "alice", "alice-pw", fmt.Sprintf("item-%d", i))
	}

	t.Run("default limit is 10", func(t *testing.T) {
		list := ts.listMetadata(t, "/v1/metadata", asAlice)
		if len(list.Items) != 10 {
			t.Errorf("items = %d, want 10", len(list.Items))
		}
		if list.Total != 12 {
			t.Errorf("total = %d, want 12", list.Total)
		}
	})

	t.Run("limit=0 lifts the cap", func(t *testing.T) {
		list := ts.listMetadata(t, "/v1/metadata?limit=0", asAlice)
		if len(list.Items) != 12 {
			t.Errorf("items = %d, want 12", len(list.Items))
		}
	})

	t.Run("offset pages through", func(t *testing.T) {
		list := ts.listMetadata(t, "/v1/metadata?offset=10&limit=5", asAlice)
		if len(list.Items) != 2 {
			t.Errorf("items = %d, want the last 2", len(list.Items))
		}
		if list.Total != 12 {
			t.Errorf("total = %d, want 12 regardless of paging", list.Total)
		}
	})

	t.Run("search filters by summary", func(t *testing.T) {
		list := ts.listMetadata(t, "/v1/metadata?search=item-7", asAlice)
		if list.Total != 1 {
			t.Errorf("total = %d, want 1", list.Total)
		}
	})
}

func TestUserCreate(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))
	asAdmin := withAuth(basicAuth(models.AdminUserName, testAdminPassword))

	t.Run("requires admin", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/user?name=carol&password=pw", nil, asAlice)
		decodeEnvelope(t, w, http.StatusForbidden)
	})

	t.Run("admin creates a user", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/user?name=carol&password=carol-pw", nil, asAdmin, fromLoopback)
		env := decodeEnvelope(t, w, http.StatusOK)

		var user models.User
		decodeData(t, env, &user)
		if user.Name != "carol" {
			t.Errorf("name = %q, want carol", user.Name)
		}
		if user.Admin {
			t.Error("expected a regular user")
		}
		if strings.Contains(string(env.Data), "hash") || strings.Contains(string(env.Data), "salt") {
			t.Errorf("data = %s, credential fields must not leak", env.Data)
		}

		// The new user can authenticate right away.
		w = ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth(basicAuth("carol", "carol-pw")))
		decodeEnvelope(t, w, http.StatusOK)
	})

	t.Run("duplicate name", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/user?name=carol&password=x", nil, asAdmin, fromLoopback)
		decodeEnvelope(t, w, http.StatusBadRequest)
	})

	t.Run("reserved name", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/user?name=admin&password=x", nil, asAdmin, fromLoopback)
		decodeEnvelope(t, w, http.StatusBadRequest)
	})

	t.Run("invalid name", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/user?name=bad%20name&password=x", nil, asAdmin, fromLoopback)
		decodeEnvelope(t, w, http.StatusBadRequest)
	})

	t.Run("missing password", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/user?name=dave", nil, asAdmin, fromLoopback)
		decodeEnvelope(t, w, http.StatusBadRequest)
	})

	t.Run("admin flag", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/user?name=operator&password=x&admin=true", nil, asAdmin, fromLoopback)
		env := decodeEnvelope(t, w, http.StatusOK)

		var user models.User
		decodeData(t, env, &user)
		if !user.Admin {
			t.Error("expected an admin user")
		}
	})
}

func TestUserList(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	ts.createUser(t, "bob", "bob-pw", false)

	t.Run("non-admin sees only itself", func(t *testing.T) {
		// The name filter cannot widen the view.
		w := ts.do(t, http.MethodGet, "/v1/user?name=bob", nil, withAuth(basicAuth("alice", "alice-pw")))
		env := decodeEnvelope(t, w, http.StatusOK)

		var list userList
		decodeData(t, env, &list)
		if list.Total != 1 {
			t.Fatalf("total = %d, want 1", list.Total)
		}
		if list.Items[0].Name != "alice" {
			t.Errorf("name = %q, want alice", list.Items[0].Name)
		}
	})

	t.Run("admin sees everyone", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/v1/user", nil,
			withAuth(basicAuth(models.AdminUserName, testAdminPassword)), fromLoopback)
		env := decodeEnvelope(t, w, http.StatusOK)

		var list userList
		decodeData(t, env, &list)
		if list.Total != 2 {
			t.Errorf("total = %d, want 2", list.Total)
		}
	})
}

func TestUserPatch(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	ts.createUser(t, "bob", "bob-pw", false)
	asAdmin := withAuth(basicAuth(models.AdminUserName, testAdminPassword))

	t.Run("own password change", func(t *testing.T) {
		w := ts.do(t, http.MethodPatch, "/v1/user?name=alice&password=new-pw", nil,
			withAuth(basicAuth("alice", "alice-pw")))
		decodeEnvelope(t, w, http.StatusOK)

		w = ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth(basicAuth("alice", "alice-pw")))
		decodeEnvelope(t, w, http.StatusUnauthorized)

		w = ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth(basicAuth("alice", "new-pw")))
		decodeEnvelope(t, w, http.StatusOK)
	})

	t.Run("cannot update another user", func(t *testing.T) {
		w := ts.do(t, http.MethodPatch, "/v1/user?name=bob&password=hacked", nil,
			withAuth(basicAuth("alice", "new-pw")))
		decodeEnvelope(t, w, http.StatusForbidden)
	})

	t.Run("admin flag requires admin", func(t *testing.T) {
		w := ts.do(t, http.MethodPatch, "/v1/user?name=alice&admin=true", nil,
			withAuth(basicAuth("alice", "new-pw")))
		decodeEnvelope(t, w, http.StatusForbidden)
	})

	t.Run("admin grants the flag", func(t *testing.T) {
		w := ts.do(t, http.MethodPatch, "/v1/user?name=bob&admin=true", nil, asAdmin, fromLoopback)
		env := decodeEnvelope(t, w, http.StatusOK)

		var user models.User
		decodeData(t, env, &user)
		if !user.Admin {
			t.Error("expected the admin flag to be set")
		}
	})

	t.Run("missing user", func(t *testing.T) {
		w := ts.do(t, http.MethodPatch, "/v1/user?name=ghost&password=x", nil, asAdmin, fromLoopback)
		decodeEnvelope(t, w, http.StatusNotFound)
	})

	t.Run("name is required", func(t *testing.T) {
		w := ts.do(t, http.MethodPatch, "/v1/user", nil, asAdmin, fromLoopback)
		decodeEnvelope(t, w, http.StatusBadRequest)
	})
}

func TestUserDelete(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	ts.createUser(t, "bob", "bob-pw", false)
	asAdmin := withAuth(basicAuth(models.AdminUserName, testAdminPassword))

	ts.putText(t, "bob", "bob-pw", "bob data 1")
	ts.putText(t, "bob", "bob-pw", "bob data 2")

	t.Run("cannot delete another user", func(t *testing.T) {
		w := ts.do(t, http.MethodDelete, "/v1/user?name=bob", nil, withAuth(basicAuth("alice", "alice-pw")))
		decodeEnvelope(t, w, http.StatusForbidden)
	})

	t.Run("admin delete cascades to blobs", func(t *testing.T) {
		sub, err := ts.bus.Subscribe("bob")
		if err != nil {
			t.Fatalf("failed to subscribe: %v", err)
		}
		defer sub.Close()

		w := ts.do(t, http.MethodDelete, "/v1/user?name=bob", nil, asAdmin, fromLoopback)
		decodeEnvelope(t, w, http.StatusOK)

		w = ts.do(t, http.MethodGet, "/v1/user?name=bob", nil, asAdmin, fromLoopback)
		env := decodeEnvelope(t, w, http.StatusOK)
		var list userList
		decodeData(t, env, &list)
		if list.Total != 0 {
			t.Errorf("user total = %d, want 0", list.Total)
		}

		if blobs := ts.listMetadata(t, "/v1/metadata?owner=bob", asAdmin, fromLoopback); blobs.Total != 0 {
			t.Errorf("blob total = %d, want 0 after cascade", blobs.Total)
		}

		event := recvEvent(t, sub)
		if event.Type != models.EventDelete {
			t.Errorf("event type = %q, want %q", event.Type, models.EventDelete)
		}
		if len(event.Items) != 2 {
			t.Errorf("event items = %d, want 2", len(event.Items))
		}
	})

	t.Run("self delete", func(t *testing.T) {
		w := ts.do(t, http.MethodDelete, "/v1/user?name=alice", nil, withAuth(basicAuth("alice", "alice-pw")))
		decodeEnvelope(t, w, http.StatusOK)

		w = ts.do(t, http.MethodGet, "/v1/metadata", nil, withAuth(basicAuth("alice", "alice-pw")))
		decodeEnvelope(t, w, http.StatusUnauthorized)
	})

	t.Run("missing user", func(t *testing.T) {
		w := ts.do(t, http.MethodDelete, "/v1/user?name=ghost", nil, asAdmin, fromLoopback)
		decodeEnvelope(t, w, http.StatusNotFound)
	})
}

func TestChangeFeed(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))

	sub, err := ts.bus.Subscribe("alice")
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	defer sub.Close()

	ts.putText(t, "alice", "alice-pw", "hello")

	event := recvEvent(t, sub)
	if event.Type != models.EventPut {
		t.Fatalf("event type = %q, want %q", event.Type, models.EventPut)
	}
	if len(event.Items) != 1 {
		t.Fatalf("event items = %d, want 1", len(event.Items))
	}

	rev, latest := ts.register.Snapshot()
	if rev == 0 {
		t.Error("expected the revision to grow")
	}
	if latest == nil || latest.ID != event.Items[0].ID {
		t.Errorf("latest = %+v, want the stored blob", latest)
	}

	// Replacing the payload emits a single Put; the replaced row
	// disappears without its own event.
	ts.putText(t, "alice", "alice-pw", "hello")
	event = recvEvent(t, sub)
	if event.Type != models.EventPut {
		t.Fatalf("event type = %q, want %q", event.Type, models.EventPut)
	}
	if len(event.Items) != 1 {
		t.Fatalf("event items = %d, want 1", len(event.Items))
	}
	id := event.Items[0].ID

	w := ts.do(t, http.MethodPatch, fmt.Sprintf("/v1/blob?id=%d&pin=true", id), nil, asAlice)
	decodeEnvelope(t, w, http.StatusOK)
	event = recvEvent(t, sub)
	if event.Type != models.EventUpdate {
		t.Errorf("event type = %q, want %q", event.Type, models.EventUpdate)
	}

	w = ts.do(t, http.MethodDelete, fmt.Sprintf("/v1/blob?id=%d", id), nil, asAlice)
	decodeEnvelope(t, w, http.StatusOK)
	event = recvEvent(t, sub)
	if event.Type != models.EventDelete {
		t.Errorf("event type = %q, want %q", event.Type, models.EventDelete)
	}
	if len(event.Items) != 1 || event.Items[0].ID != id {
		t.Errorf("event items = %+v, want the deleted blob", event.Items)
	}

	rev2, _ := ts.register.Snapshot()
	if rev2 <= rev {
		t.Errorf("revision = %d, want greater than %d", rev2, rev)
	}
}

func TestPayloadCap(t *testing.T) {
	ts := newTestServerConfig(t, APIConfig{MaxPayloadSize: 16}, testAdminPassword)
	ts.createUser(t, "alice", "alice-pw", false)
	asAlice := withAuth(basicAuth("alice", "alice-pw"))

	content := []byte("this body is longer than sixteen bytes")

	t.Run("declared length over the cap", func(t *testing.T) {
		w := ts.do(t, http.MethodPut, "/v1/blob", content, asAlice,
			withHeader(handlers.HeaderBlobType, "text"),
			withHeader(handlers.HeaderSha256, secret.Sha256Hex(content)))
		env := decodeEnvelope(t, w, http.StatusBadRequest)
		if !strings.Contains(env.Message, "too large") {
			t.Errorf("message = %q, want a size rejection", env.Message)
		}
	})

	t.Run("undeclared length hits the reader cap", func(t *testing.T) {
		// Hide the body type so httptest leaves ContentLength unset.
		req := httptest.NewRequest(http.MethodPut, "/v1/blob", struct{ io.Reader }{bytes.NewReader(content)})
		req.RemoteAddr = remoteAddr
		req.Header.Set("Authorization", basicAuth("alice", "alice-pw"))
		req.Header.Set(handlers.HeaderBlobType, "text")
		req.Header.Set(handlers.HeaderSha256, secret.Sha256Hex(content))

		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		env := decodeEnvelope(t, w, http.StatusBadRequest)
		if !strings.Contains(env.Message, "too large") {
			t.Errorf("message = %q, want a size rejection", env.Message)
		}
	})

	t.Run("small bodies pass", func(t *testing.T) {
		small := []byte("ok")
		w := ts.do(t, http.MethodPut, "/v1/blob", small, asAlice,
			withHeader(handlers.HeaderBlobType, "text"),
			withHeader(handlers.HeaderSha256, secret.Sha256Hex(small)))
		decodeEnvelope(t, w, http.StatusOK)
	})
}
