package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/vitrine/internal/checksum"
	"github.com/starford/vitrine/internal/lock"
	"github.com/starford/vitrine/internal/models"
	"github.com/starford/vitrine/internal/publish"
	"github.com/starford/vitrine/internal/site"
	"github.com/starford/vitrine/internal/siteservice"
	"github.com/starford/vitrine/internal/testutil"
)

const introCard = `<div class="card"><div class="card-head"><h2>Intro</h2></div><div class="inner"><p>Welcome to the carved collection</p></div></div>`

type copyGenerator struct{}

func (copyGenerator) Generate(_ context.Context, _ models.SourceKind, src, dst string, _ int) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// testEnv sets up a temp site, SQLite DB, service, and router for testing.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string, folders ...string) (http.Handler, site.Layout) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil, folders...)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler, folders ...string) (http.Handler, site.Layout) {
	t.Helper()
	layout, store := testutil.TestSite(t, folders...)
	db := testutil.TestDB(t)
	svc := siteservice.NewService(layout, publish.DefaultOptions(), store, db, nil, copyGenerator{}, testutil.Logger())
	return NewRouter(svc, authEnabled, token, sseHandler), layout
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSaveAndGetMaster(t *testing.T) {
	router, _ := testEnv(t, "", "Intro")

	w := do(t, router, http.MethodPut, "/master", map[string]string{"content": introCard})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/master", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var m MasterDetail
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if len(m.Cards) != 1 || m.Cards[0].Title != "Intro" {
		t.Errorf("cards = %+v", m.Cards)
	}
	if got := w.Header().Get("ETag"); got != `"`+checksum.Sum([]byte(introCard))+`"` {
		t.Errorf("etag = %q", got)
	}
}

func TestSaveMasterWithOptimisticLocking(t *testing.T) {
	router, _ := testEnv(t, "", "Intro")

	w := do(t, router, http.MethodPut, "/master", map[string]string{"content": introCard})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d", w.Code)
	}
	etag := w.Header().Get("ETag")

	w = do(t, router, http.MethodPut, "/master", map[string]string{"content": introCard + "\n"}, "If-Match", `"deadbeef"`)
	if w.Code != http.StatusConflict {
		t.Errorf("stale If-Match = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPut, "/master", map[string]string{"content": introCard + "\n"}, "If-Match", etag)
	if w.Code != http.StatusOK {
		t.Errorf("matching If-Match = %d, want 200, body = %s", w.Code, w.Body.String())
	}
}

func TestSaveMasterValidation(t *testing.T) {
	router, _ := testEnv(t, "")

	w := do(t, router, http.MethodPut, "/master", map[string]string{"content": "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty content = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/master", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestGetMaster_NotFound(t *testing.T) {
	router, _ := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/master", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPublishEndpoint(t *testing.T) {
	router, layout := testEnv(t, "", "Intro", "Masks")

	w := do(t, router, http.MethodPost, "/publish", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("publish status = %d, body = %s", w.Code, w.Body.String())
	}
	var res PublishResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Success || res.CardsProcessed != 2 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(layout.AggregatePath()); err != nil {
		t.Errorf("aggregate page missing: %v", err)
	}

	w = do(t, router, http.MethodGet, "/registry", nil)
	var reg RegistryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &reg)
	if len(reg.Items) != 2 {
		t.Fatalf("registry items = %d, want 2", len(reg.Items))
	}

	w = do(t, router, http.MethodGet, "/cards/"+reg.Items[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("card status = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/cards/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing card = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodGet, "/runs?kind=publish", nil)
	var runs RunsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &runs)
	if len(runs.Runs) != 1 || !runs.Runs[0].Success {
		t.Errorf("runs = %+v", runs.Runs)
	}
}

func TestPublishLocked(t *testing.T) {
	router, layout := testEnv(t, "", "Intro")
	l, err := lock.Acquire(layout.LockPath(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	w := do(t, router, http.MethodPost, "/publish", nil)
	if w.Code != http.StatusLocked {
		t.Errorf("publish = %d, want 423", w.Code)
	}
	w = do(t, router, http.MethodGet, "/lock", nil)
	var st LockStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if !st.Held || st.Holder == nil || st.Holder.PID != os.Getpid() {
		t.Errorf("lock status = %+v", st)
	}
	if w := do(t, router, http.MethodPost, "/prune", nil); w.Code != http.StatusLocked {
		t.Errorf("prune = %d, want 423", w.Code)
	}
}

func TestDiffAndPrune(t *testing.T) {
	router, layout := testEnv(t, "", "Intro", "Masks")
	if w := do(t, router, http.MethodPost, "/publish", nil); w.Code != http.StatusOK {
		t.Fatalf("publish = %d", w.Code)
	}
	if err := os.RemoveAll(layout.FolderDir("Masks")); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/diff", nil)
	var rep PruneReport
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if len(rep.CardsWithNoFolder) != 1 || rep.CardsWithNoFolder[0] != "Masks" {
		t.Errorf("cards with no folder = %v", rep.CardsWithNoFolder)
	}

	w = do(t, router, http.MethodPost, "/prune?delete_thumbs=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("prune = %d, body = %s", w.Code, w.Body.String())
	}
	var out PruneOutcome
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Result.RemovedFromMaster != 1 {
		t.Errorf("removed = %d, want 1", out.Result.RemovedFromMaster)
	}

	w = do(t, router, http.MethodGet, "/diff", nil)
	rep = PruneReport{}
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if !rep.Empty() {
		t.Errorf("second diff not empty: %+v", rep)
	}
}

func TestRefreshThumbnailEndpoint(t *testing.T) {
	router, layout := testEnv(t, "", "Bone Carving", "Empty")
	testutil.WriteFile(t, layout.FolderDir("Bone Carving")+"/cover.jpg", "jpeg")

	w := do(t, router, http.MethodPost, "/thumbs/Bone%20Carving", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ThumbnailResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Folder != "Bone Carving" || resp.SourceKind != string(models.SourceImage) {
		t.Errorf("resp = %+v", resp)
	}

	if w := do(t, router, http.MethodPost, "/thumbs/Empty", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no source = %d, want 503", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/thumbs/Nowhere", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing folder = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/thumbs/..", nil); w.Code != http.StatusBadRequest && w.Code != http.StatusNotFound {
		t.Errorf("dot folder = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, _ := testEnv(t, "", "Intro")
	do(t, router, http.MethodPut, "/master", map[string]string{"content": introCard})
	do(t, router, http.MethodPost, "/publish", nil)

	w := do(t, router, http.MethodGet, "/search?q=carved", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Folder != "Intro" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	router, _ := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router, _ := testEnv(t, "secret123", "Intro")
	w := do(t, router, http.MethodPost, "/publish", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed publish = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/registry", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router, _ := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/registry", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router, _ := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/registry", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router, _ := testEnvWithSSE(t, true, "secret", blockingSSE)
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router, _ := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
