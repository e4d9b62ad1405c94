package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docbridge/docbridge/internal/config"
	"github.com/docbridge/docbridge/internal/files"
	"github.com/docbridge/docbridge/internal/hashtoken"
	"github.com/docbridge/docbridge/internal/jobs"
	"github.com/docbridge/docbridge/internal/jwtsign"
	"github.com/docbridge/docbridge/internal/links"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFiles struct {
	nodes   map[string]*files.Node
	created []string
}

func (f *fakeFiles) NodeByID(ctx context.Context, userID string, fileID int64) (*files.Node, error) {
	if n, ok := f.nodes[fmt.Sprintf("%s/%d", userID, fileID)]; ok {
		return n, nil
	}
	return nil, files.ErrNotFound
}

func (f *fakeFiles) Create(ctx context.Context, userID, filePath string, data []byte) (*files.Node, error) {
	f.created = append(f.created, filePath)
	return &files.Node{ID: 100, UserID: userID, Path: filePath, Name: filePath}, nil
}

type fakeConverter struct {
	convertCalls int
	fetchCalls   int
	resultURL    string
	resultData   []byte
	convertErr   error
}

func (f *fakeConverter) RequestConversion(ctx context.Context, sourceURL, fromExt, toExt, key string) (string, error) {
	f.convertCalls++
	if f.convertErr != nil {
		return "", f.convertErr
	}
	return f.resultURL, nil
}

func (f *fakeConverter) FetchContent(ctx context.Context, url string) ([]byte, error) {
	f.fetchCalls++
	return f.resultData, nil
}

func newTestHandler(t *testing.T, signer jwtsign.Signer) (*Handler, *fakeFiles, *fakeConverter, *gin.Engine) {
	t.Helper()
	codec, err := hashtoken.NewCodec("editor-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Settings{
		BaseURL:           "https://cloud.example",
		DocumentServerURL: "https://ds.example",
		ConvertTimeout:    time.Minute,
		RequestTimeout:    10 * time.Second,
	}
	fakeFs := &fakeFiles{nodes: map[string]*files.Node{}}
	conv := &fakeConverter{resultURL: "https://ds.example/conv/out", resultData: []byte("converted")}
	h := NewHandler(fakeFs, links.NewBuilder(codec, cfg), signer, conv, jobs.NewStore(), cfg)

	router := gin.New()
	// test routes pre-set the session user the way auth middleware does
	asUser := func(fn gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set("user", "alice")
			fn(c)
		}
	}
	router.GET("/api/editor/config", asUser(h.Config))
	router.POST("/api/editor/convert", asUser(h.Convert))
	router.GET("/api/editor/convert/:id", asUser(h.ConvertStatus))
	return h, fakeFs, conv, router
}

func TestConfig(t *testing.T) {
	_, fakeFs, _, router := newTestHandler(t, jwtsign.New("", 0))
	fakeFs.nodes["alice/42"] = &files.Node{
		ID: 42, UserID: "alice", Path: "/docs/a.docx", Name: "a.docx",
		Version: 3, MTime: time.Unix(1700000000, 0),
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/editor/config?fileId=42", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Config struct {
			DocumentType string `json:"documentType"`
			Document     struct {
				FileType string `json:"fileType"`
				Key      string `json:"key"`
				Title    string `json:"title"`
				URL      string `json:"url"`
			} `json:"document"`
			EditorConfig struct {
				CallbackURL string `json:"callbackUrl"`
			} `json:"editorConfig"`
			Token string `json:"token"`
		} `json:"config"`
		DocumentServerURL string `json:"documentServerUrl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Config.DocumentType != "word" || resp.Config.Document.FileType != "docx" {
		t.Fatalf("config %+v", resp.Config)
	}
	if len(resp.Config.Document.Key) != 64 {
		t.Fatalf("document key %q", resp.Config.Document.Key)
	}
	if resp.Config.Document.URL == "" || resp.Config.EditorConfig.CallbackURL == "" {
		t.Fatal("links missing from config")
	}
	if resp.Config.Token != "" {
		t.Fatal("unsigned mode must not emit a token")
	}
	if resp.DocumentServerURL != "https://ds.example" {
		t.Fatalf("documentServerUrl %q", resp.DocumentServerURL)
	}
}

func TestConfigKeyTracksContent(t *testing.T) {
	_, fakeFs, _, router := newTestHandler(t, jwtsign.New("", 0))
	node := &files.Node{ID: 42, UserID: "alice", Path: "/a.docx", Name: "a.docx", MTime: time.Unix(1700000000, 0)}
	fakeFs.nodes["alice/42"] = node

	keyFor := func() string {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/editor/config?fileId=42", nil))
		var resp struct {
			Config struct {
				Document struct {
					Key string `json:"key"`
				} `json:"document"`
			} `json:"config"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		return resp.Config.Document.Key
	}

	before := keyFor()
	node.MTime = node.MTime.Add(time.Second)
	after := keyFor()
	if before == after {
		t.Fatal("key must change when content changes")
	}
}

func TestConfigSigned(t *testing.T) {
	signer := jwtsign.New("shared-secret", 0)
	_, fakeFs, _, router := newTestHandler(t, signer)
	fakeFs.nodes["alice/42"] = &files.Node{ID: 42, UserID: "alice", Path: "/a.docx", Name: "a.docx"}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/editor/config?fileId=42", nil))

	var resp struct {
		Config map[string]interface{} `json:"config"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	token, _ := resp.Config["token"].(string)
	if token == "" {
		t.Fatal("signed mode must emit a token")
	}
	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("config token does not verify: %v", err)
	}
	if claims["documentType"] != "word" {
		t.Fatalf("claims %+v", claims)
	}
}

func TestConfigErrors(t *testing.T) {
	_, fakeFs, _, router := newTestHandler(t, jwtsign.New("", 0))
	fakeFs.nodes["alice/7"] = &files.Node{ID: 7, UserID: "alice", Path: "/a.bin", Name: "a.bin"}

	cases := []struct {
		name string
		url  string
		want int
	}{
		{"missing_file_id", "/api/editor/config", http.StatusBadRequest},
		{"unknown_file", "/api/editor/config?fileId=99", http.StatusNotFound},
		{"unsupported_format", "/api/editor/config?fileId=7", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.url, nil))
			if w.Code != tc.want {
				t.Fatalf("status %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func waitForJob(t *testing.T, router *gin.Engine, jobID string) jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/editor/convert/"+jobID, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status endpoint %d: %s", w.Code, w.Body.String())
		}
		var job jobs.Job
		if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
			t.Fatal(err)
		}
		if job.Status == "success" || job.Status == "error" {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish")
	return jobs.Job{}
}

func TestConvert(t *testing.T) {
	_, fakeFs, conv, router := newTestHandler(t, jwtsign.New("", 0))
	fakeFs.nodes["alice/42"] = &files.Node{ID: 42, UserID: "alice", Path: "/docs/a.docx", Name: "a.docx"}

	body, _ := json.Marshal(map[string]interface{}{"fileId": 42, "targetExt": "odt"})
	req := httptest.NewRequest(http.MethodPost, "/api/editor/convert", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	job := waitForJob(t, router, resp.JobID)
	if job.Status != "success" {
		t.Fatalf("job %+v", job)
	}
	if job.Data["path"] != "/docs/a.odt" {
		t.Fatalf("job data %+v", job.Data)
	}
	if conv.convertCalls != 1 || conv.fetchCalls != 1 {
		t.Fatalf("converter calls: %d convert, %d fetch", conv.convertCalls, conv.fetchCalls)
	}
	if len(fakeFs.created) != 1 || fakeFs.created[0] != "/docs/a.odt" {
		t.Fatalf("created %v", fakeFs.created)
	}
}

func TestConvertFailure(t *testing.T) {
	_, fakeFs, conv, router := newTestHandler(t, jwtsign.New("", 0))
	fakeFs.nodes["alice/42"] = &files.Node{ID: 42, UserID: "alice", Path: "/a.docx", Name: "a.docx"}
	conv.convertErr = fmt.Errorf("conversion backend down")

	body, _ := json.Marshal(map[string]interface{}{"fileId": 42, "targetExt": "odt"})
	req := httptest.NewRequest(http.MethodPost, "/api/editor/convert", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	job := waitForJob(t, router, resp.JobID)
	if job.Status != "error" {
		t.Fatalf("job %+v", job)
	}
	if len(fakeFs.created) != 0 {
		t.Fatal("failed conversion must not create files")
	}
}

func TestConvertRejectsSameFormat(t *testing.T) {
	_, fakeFs, _, router := newTestHandler(t, jwtsign.New("", 0))
	fakeFs.nodes["alice/42"] = &files.Node{ID: 42, UserID: "alice", Path: "/a.docx", Name: "a.docx"}

	body, _ := json.Marshal(map[string]interface{}{"fileId": 42, "targetExt": "docx"})
	req := httptest.NewRequest(http.MethodPost, "/api/editor/convert", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestConvertStatusUnknownJob(t *testing.T) {
	_, _, _, router := newTestHandler(t, jwtsign.New("", 0))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/editor/convert/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}
