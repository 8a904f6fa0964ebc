package http_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	api "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/api/http"
	auth "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/auth/middleware"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/db"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/hydrate"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/importer"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/logging"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/parse"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/question"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/rbac"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/storage"
	syncx "github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/sync"
	"github.com/66HUIGE66/PaperMakerOLDev-sub000/internal/taxonomy"
)

type testServer struct {
	*httptest.Server
	authSvc *auth.AuthService
	store   *question.SQLStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	log := logging.Discard()
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	ts := &testServer{authSvc: auth.NewAuthService("test"), store: question.NewSQLStore(conn)}
	r := chi.NewRouter()
	ts.Server = httptest.NewServer(r)
	t.Cleanup(ts.Close)

	images := storage.NewImageStore(blobs, ts.URL+"/assets", 0, log)
	im := importer.New(parse.NewExtractor(log), taxonomy.NewReconciler(taxonomy.NewSQLCatalog(conn), log, ""),
		hydrate.New(images, log), ts.store, log)
	events := syncx.NewEventRepo(conn)
	im.Events = events

	r.Route("/assets", func(ar chi.Router) { api.MountAssets(ar, blobs) })
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(ts.authSvc))
		pr.Route("/imports", func(ir chi.Router) {
			api.MountImports(ir, api.ImportDeps{Importer: im, Sessions: importer.NewRegistry(), Log: log})
		})
		pr.Get("/events", api.ListEventsHandler(events))
	})
	return ts
}

func (ts *testServer) do(t *testing.T, role, method, path, contentType string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	return ts.doAs(t, "u-"+role, role, method, path, contentType, body)
}

func (ts *testServer) doAs(t *testing.T, sub, role, method, path, contentType string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if role != "" {
		tok, err := ts.authSvc.IssueJWT(sub, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, b
}

func (ts *testServer) status(t *testing.T, role, method, path string, body string, wantCode int) importer.Status {
	t.Helper()
	var rd io.Reader
	ct := ""
	if body != "" {
		rd, ct = strings.NewReader(body), "application/json"
	}
	res, b := ts.do(t, role, method, path, ct, rd)
	require.Equal(t, wantCode, res.StatusCode, string(b))
	var st importer.Status
	require.NoError(t, json.Unmarshal(b, &st))
	return st
}

func pngDataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG fake"))
}

func TestImportWorkflow(t *testing.T) {
	ts := newTestServer(t)
	doc := "1.看图判断 ![图](" + pngDataURI() + ")【判断题】【简单】【物理】【力学】\n答案：(正确)\n" +
		"2.缺少答案【简答题】【中等】【物理】【力学】\n"
	body, _ := json.Marshal(map[string]string{"source": "paste", "text": doc})

	st := ts.status(t, "editor", http.MethodPost, "/imports", string(body), http.StatusCreated)
	assert.Equal(t, importer.StateAwaitingInvalidConfirmation, st.State)
	assert.Equal(t, 1, st.ValidCount)
	assert.Equal(t, "u-editor", st.Owner)
	require.Len(t, st.Invalid, 1)
	base := "/imports/" + st.ID

	res, _ := ts.do(t, "editor", http.MethodPost, base+"/run", "", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	st = ts.status(t, "editor", http.MethodPost, base+"/invalid", `{"proceed":true}`, http.StatusOK)
	assert.Equal(t, importer.StateParsed, st.State)

	st = ts.status(t, "editor", http.MethodPost, base+"/reconcile", "", http.StatusOK)
	assert.Equal(t, importer.StateAwaitingTaxonomyConfirmation, st.State)
	assert.Equal(t, []string{"物理"}, st.MissingSubjects)

	res, _ = ts.do(t, "viewer", http.MethodPost, base+"/taxonomy", "", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	st = ts.status(t, "editor", http.MethodPost, base+"/taxonomy", "", http.StatusOK)
	assert.Equal(t, []string{"物理"}, st.CreatedSubjects)

	st = ts.status(t, "editor", http.MethodPost, base+"/run", "", http.StatusOK)
	assert.Equal(t, importer.StateCompleted, st.State)
	require.NotNil(t, st.Result)
	assert.Equal(t, 1, st.Result.SuccessCount)
	assert.Equal(t, 100, st.Progress)

	st = ts.status(t, "viewer", http.MethodGet, base, "", http.StatusOK)
	assert.Equal(t, importer.StateCompleted, st.State)

	// the image was hydrated into the blob store and is served back
	dups, err := ts.store.CheckDuplicateTitles(context.Background(), []string{"看图判断 ![图](" + pngDataURI() + ")"})
	require.NoError(t, err)
	assert.Empty(t, dups, "stored title no longer carries inline data")

	res, b := ts.do(t, "viewer", http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var events []syncx.Event
	require.NoError(t, json.Unmarshal(b, &events))
	require.Len(t, events, 1)
	assert.Equal(t, st.ID, events[0].Key)
}

func TestImportWorkbookUpload(t *testing.T) {
	ts := newTestServer(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"题目", "题型", "难度", "学科", "知识点", "答案", "解析", "选项", "标签"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"2+2=?", "单选题", "简单", "数学", "加法", "B", "", "3|4|5", "口算"}))
	xlsx, err := f.WriteToBuffer()
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "bank.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	res, b := ts.do(t, "editor", http.MethodPost, "/imports", mw.FormDataContentType(), &buf)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(b))
	var st importer.Status
	require.NoError(t, json.Unmarshal(b, &st))
	assert.Equal(t, "bank.xlsx", st.Source)
	assert.Equal(t, 1, st.ValidCount)
	assert.Equal(t, importer.StateParsed, st.State)
}

func TestImportErrors(t *testing.T) {
	ts := newTestServer(t)

	res, _ := ts.do(t, "", http.MethodPost, "/imports", "application/json", strings.NewReader(`{"text":"x"}`))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = ts.do(t, "viewer", http.MethodPost, "/imports", "application/json", strings.NewReader(`{"text":"x"}`))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = ts.do(t, "editor", http.MethodPost, "/imports", "application/json", strings.NewReader(`{"text":"  "}`))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = ts.do(t, "editor", http.MethodGet, "/imports/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "paper.pdf")
	_, _ = fw.Write([]byte("%PDF"))
	_ = mw.Close()
	res, _ = ts.do(t, "editor", http.MethodPost, "/imports", mw.FormDataContentType(), &buf)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestSessionOwnership(t *testing.T) {
	ts := newTestServer(t)
	doc := "1.HashMap 线程安全吗？【判断题】【简单】【Java】【集合】\n答案：(×)\n"
	body, _ := json.Marshal(map[string]string{"text": doc})
	res, b := ts.doAs(t, "alice", "editor", http.MethodPost, "/imports", "application/json", bytes.NewReader(body))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(b))
	var st importer.Status
	require.NoError(t, json.Unmarshal(b, &st))
	assert.Equal(t, "alice", st.Owner)
	base := "/imports/" + st.ID

	res, _ = ts.doAs(t, "bob", "editor", http.MethodPost, base+"/reconcile", "", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res, _ = ts.doAs(t, "bob", "editor", http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	// viewing is not restricted to the owner
	res, _ = ts.doAs(t, "bob", "viewer", http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = ts.doAs(t, "root", "admin", http.MethodPost, base+"/reconcile", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	res, _ = ts.doAs(t, "alice", "editor", http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestAssets(t *testing.T) {
	ts := newTestServer(t)
	res, _ := ts.do(t, "", http.MethodGet, "/assets/images/missing.png", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

// cancelOnCreate cancels the request after the n-th stored question.
type cancelOnCreate struct {
	*question.SQLStore
	n      int
	calls  int
	cancel context.CancelFunc
}

func (c *cancelOnCreate) Create(ctx context.Context, p question.Payload) (string, error) {
	c.calls++
	if c.calls == c.n {
		c.cancel()
	}
	return c.SQLStore.Create(ctx, p)
}

func TestRunSurvivesRequestCancellation(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	catalog := taxonomy.NewSQLCatalog(conn)
	sub, err := catalog.CreateSubject(ctx, taxonomy.NewSubject{Name: "Java", IsActive: true})
	require.NoError(t, err)
	_, err = catalog.CreateKnowledgePoint(ctx, taxonomy.NewKnowledgePoint{Name: "集合", SubjectID: sub.ID, Status: "ACTIVE", DifficultyLevel: "MEDIUM"})
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(rbac.WithRole(ctx, "editor"))
	defer cancel()
	repo := &cancelOnCreate{SQLStore: question.NewSQLStore(conn), n: 2, cancel: cancel}

	log := logging.Discard()
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	im := importer.New(parse.NewExtractor(log), taxonomy.NewReconciler(catalog, log, ""),
		hydrate.New(storage.NewImageStore(blobs, "/assets", 0, log), log), repo, log)
	var doc strings.Builder
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&doc, "%d.第%d题【判断题】【简单】【Java】【集合】\n答案：(正确)\n", i, i)
	}
	s := im.ParseText("paste", doc.String())
	require.Equal(t, importer.StateParsed, s.State())
	reg := importer.NewRegistry()
	reg.Put(s)

	r := chi.NewRouter()
	r.Route("/imports", func(ir chi.Router) {
		api.MountImports(ir, api.ImportDeps{Importer: im, Sessions: reg, Timeout: time.Minute, Log: log})
	})
	req := httptest.NewRequest(http.MethodPost, "/imports/"+s.ID+"/run", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st importer.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.Result)
	assert.Equal(t, 5, st.Result.SuccessCount)
	assert.Zero(t, st.Result.FailedCount)
	assert.Equal(t, 5, repo.calls)
}
