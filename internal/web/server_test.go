package web

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/josephlewis42/magpie/internal/checks"
	"github.com/josephlewis42/magpie/internal/config"
	"github.com/josephlewis42/magpie/internal/core"
	"github.com/josephlewis42/magpie/internal/db"
	"github.com/josephlewis42/magpie/internal/submission"
)

type testEnv struct {
	server  *Server
	magpie  *core.Magpie
	store   *submission.Store
	db      *db.DB
	cfgPath string
}

func newTestEnv(t *testing.T, withDB bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Title = "Test Magpie"
	cfg.Server.MessageOfTheDay = "**Due Friday**"
	cfg.Server.ResultsHeader = "Thanks for submitting"
	cfg.Tests["intro"] = config.Test{Description: "Intro", Checkers: map[string]checks.Settings{
		"Basic Upload": {Enabled: true},
	}}

	var database *db.DB
	if withDB {
		var err error
		database, err = db.Open(":memory:")
		require.NoError(t, err)
		require.NoError(t, database.Migrate())
		t.Cleanup(func() { database.Close() })
	}

	cfgPath := filepath.Join(dir, "magpie.yaml")
	m, err := core.New(core.Options{
		Config:     cfg,
		ConfigPath: cfgPath,
		DB:         database,
		Logger:     zap.NewNop(),
		Checkers:   []checks.Checker{&checks.BasicUpload{}},
	})
	require.NoError(t, err)

	store := submission.NewStore(filepath.Join(dir, "uploads"))
	return &testEnv{
		server:  NewServer(m, store, database, zap.NewNop()),
		magpie:  m,
		store:   store,
		db:      database,
		cfgPath: cfgPath,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, test string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("upfile", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("test", test))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Test Magpie</title>")
	assert.Contains(t, body, "<strong>Due Friday</strong>")
	assert.Contains(t, body, `name="upfile"`)
	assert.Contains(t, body, `<option value="intro">intro</option>`)
}

func TestUnknownPath(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(uploadRequest(t, "intro", map[string]string{"game.sb2": "zip"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, "Thanks for submitting")
	assert.Contains(t, body, "Basic Upload")
	assert.Contains(t, body, "Is a scratch file?")
	assert.Contains(t, body, "2 passed, 0 failed")
	assert.Contains(t, body, "<strong>intro</strong>")

	subs, err := env.db.ListSubmissions(0)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "HTTP", subs[0].Frontend)
	assert.Equal(t, "intro", subs[0].Test)
	assert.True(t, subs[0].Passed)

	doc, err := env.store.Get(subs[0].ID)
	require.NoError(t, err)
	require.Len(t, doc.Files, 1)
	assert.Equal(t, "game.sb2", filepath.Base(doc.Files[0]))
}

func TestUpload_WrongFileType(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(uploadRequest(t, "", map[string]string{"essay.docx": "x"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "didn&#39;t upload a scratch file")
	assert.Contains(t, rec.Body.String(), "1 passed, 1 failed")
}

func TestUpload_NoFile(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(uploadRequest(t, "intro", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no file uploaded")

	form := strings.NewReader(url.Values{"test": {"intro"}}.Encode())
	req := httptest.NewRequest(http.MethodPost, "/", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no file uploaded")
}

func TestSubmissionPage(t *testing.T) {
	for _, withDB := range []bool{true, false} {
		env := newTestEnv(t, withDB)
		doc := submission.New("erin", "SMTP", "")
		doc.Files = []string{"/x/game.sb2"}
		require.NoError(t, env.magpie.Submit(context.Background(), doc))
		require.NoError(t, env.store.Save(doc))

		rec := env.do(httptest.NewRequest(http.MethodGet, "/submission/"+doc.ID, nil))
		require.Equal(t, http.StatusOK, rec.Code, "db=%v", withDB)
		assert.Contains(t, rec.Body.String(), "Has at least one file")

		rec = env.do(httptest.NewRequest(http.MethodGet, "/submission/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "db=%v", withDB)
	}
}

func TestConfigPage(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h3>intro</h3>")
	assert.Contains(t, body, "Basic Upload:")
	assert.Contains(t, body, `href="/edit/intro"`)
	assert.Contains(t, body, `href="/delete/intro"`)
}

func TestEdit_NewTestShowsDefaults(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/edit/week%202", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Edit test: week 2")
	assert.Contains(t, rec.Body.String(), "enabled: true")
}

func TestEdit_Save(t *testing.T) {
	env := newTestEnv(t, false)
	form := url.Values{"test": {"description: Week two\ncheckers:\n  Basic Upload:\n    enabled: false\n"}}
	req := httptest.NewRequest(http.MethodPost, "/edit/week2", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/config", rec.Header().Get("Location"))

	got, ok := env.magpie.TestConfiguration("week2")
	require.True(t, ok)
	assert.Equal(t, "Week two", got.Description)
	assert.False(t, got.Checkers["Basic Upload"].Enabled)

	saved, err := config.Load(env.cfgPath)
	require.NoError(t, err)
	assert.Contains(t, saved.Tests, "week2")
}

func TestEdit_InvalidYAML(t *testing.T) {
	env := newTestEnv(t, false)
	form := url.Values{"test": {"checkers: [oops"}}
	req := httptest.NewRequest(http.MethodPost, "/edit/intro", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not read the configuration")
	assert.Contains(t, rec.Body.String(), "checkers: [oops")

	got, _ := env.magpie.TestConfiguration("intro")
	assert.Equal(t, "Intro", got.Description, "invalid edit leaves the test unchanged")
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/delete/intro", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	_, ok := env.magpie.TestConfiguration("intro")
	assert.False(t, ok)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/delete/intro", nil))
	assert.Equal(t, http.StatusFound, rec.Code, "deleting a missing test still redirects")
}

func TestNewTest(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodPost, "/newtest", strings.NewReader("name=Week+3"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/edit/Week%203", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodPost, "/newtest", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = env.do(req)
	assert.Equal(t, "/edit/New%20Test", rec.Header().Get("Location"))
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(uploadRequest(t, "", map[string]string{"a.sb2": "x"}))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "magpie_submissions_total")
}

func TestDisplayURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", displayURL(":8080"))
	assert.Equal(t, "http://10.0.0.2:80", displayURL("10.0.0.2:80"))
}

func TestUserFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", userFor(req))
	req.RemoteAddr = ""
	assert.Equal(t, "No User", userFor(req))
}
