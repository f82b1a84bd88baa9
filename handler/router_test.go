package handler

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/alimoorreza/segbuilder-v1/config"
	"github.com/alimoorreza/segbuilder-v1/model"
	"github.com/alimoorreza/segbuilder-v1/service"
	"github.com/gin-gonic/gin"
)

const base = "/api/v1/users/alice/projects"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	cfg.Lock.Wait = 200 * time.Millisecond
	cfg.Storage.RootDir = t.TempDir()

	blobs, err := service.NewFileBlobStore(cfg.Storage.RootDir)
	if err != nil {
		t.Fatal(err)
	}
	redis := service.NewRedisService(&cfg.Redis, &cfg.Lock)
	t.Cleanup(func() { redis.Close() })

	projects := service.NewProjectService(redis)
	files := service.NewFileService(&cfg.Upload, blobs, redis, redis)
	annotations := service.NewAnnotationService(&cfg.Render, blobs, redis, redis, projects)

	return NewRouter(Handlers{
		Projects:    NewProjectHandler(projects),
		Uploads:     NewUploadHandler(cfg, files),
		Annotations: NewAnnotationHandler(annotations),
	}, BuildInfo{Version: "test"})
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) {
	t.Helper()
	resp := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response %q: %v", w.Body.String(), err)
	}
	if data != nil {
		if err := json.Unmarshal(resp.Data, data); err != nil {
			t.Fatal(err)
		}
	}
}

func uploadPNG(t *testing.T, r http.Handler, name string) {
	t.Helper()
	img := model.NewImage(8, 6)
	data, err := service.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, base+"/p/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", w.Code, w.Body.String())
	}

	var results []model.UploadedFile
	decode(t, w, &results)
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("upload results = %+v", results)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}

	w = do(t, r, http.MethodOptions, base, nil)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight status = %d, headers = %v", w.Code, w.Header())
	}
}

func TestProjectRoutes(t *testing.T) {
	r := newTestRouter(t)

	if w := do(t, r, http.MethodPost, base, gin.H{"name": "p"}); w.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, base, gin.H{"name": "p"}); w.Code != http.StatusBadRequest {
		t.Errorf("duplicate create status = %d", w.Code)
	}

	var projects []string
	decode(t, do(t, r, http.MethodGet, base, nil), &projects)
	if len(projects) != 1 || projects[0] != "p" {
		t.Errorf("projects = %v", projects)
	}

	if w := do(t, r, http.MethodPost, base+"/p/classes", gin.H{"name": "car", "color": "#ff0000"}); w.Code != http.StatusOK {
		t.Fatalf("add class status = %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPost, base+"/p/classes", gin.H{"name": "car", "color": "red"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad color status = %d", w.Code)
	}

	w := do(t, r, http.MethodGet, base+"/p/classes/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	var classes []model.ClassEntry
	if err := json.Unmarshal(w.Body.Bytes(), &classes); err != nil {
		t.Fatal(err)
	}
	if len(classes) != 2 || classes[1].Name != "car" {
		t.Errorf("classes = %+v", classes)
	}

	if w := do(t, r, http.MethodPut, base+"/p/classes", classes[1:]); w.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", w.Code, w.Body.String())
	}
	decode(t, do(t, r, http.MethodGet, base+"/p/classes", nil), &classes)
	if len(classes) != 1 {
		t.Errorf("classes after import = %+v", classes)
	}
}

func TestAnnotationRoutes(t *testing.T) {
	r := newTestRouter(t)
	if w := do(t, r, http.MethodPost, base, gin.H{"name": "p"}); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	uploadPNG(t, r, "a.png")

	var images []string
	decode(t, do(t, r, http.MethodGet, base+"/p/images", nil), &images)
	if len(images) != 1 || images[0] != "a.png" {
		t.Fatalf("images = %v", images)
	}

	ann := base + "/p/images/a.png/annotation"
	w := do(t, r, http.MethodPost, ann+"/masks", gin.H{
		"polygons": []model.Polygon{{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 3}, {X: 0, Y: 3}}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("draw status = %d: %s", w.Code, w.Body.String())
	}
	var layer model.Layer
	decode(t, w, &layer)
	if layer.Area != 16 || layer.Label != model.DefaultClass {
		t.Errorf("layer = %+v", layer)
	}

	w = do(t, r, http.MethodPost, ann+"/render", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("render status = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodGet, ann+"/contours?source=draft&index=0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("contours status = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodGet, ann+"/preview?source=draft&index=0", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("preview status = %d, type = %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = do(t, r, http.MethodPost, ann+"/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", w.Code, w.Body.String())
	}
	var saved model.SaveResult
	decode(t, w, &saved)
	if saved.Entries != 1 {
		t.Errorf("saved = %+v", saved)
	}

	var state model.AnnotationState
	decode(t, do(t, r, http.MethodGet, ann, nil), &state)
	if len(state.Layers) != 1 || state.MaskImage == "" {
		t.Errorf("state layers = %+v, has mask = %v", state.Layers, state.MaskImage != "")
	}

	if w := do(t, r, http.MethodPost, ann+"/front", gin.H{"source": "archive", "index": 0}); w.Code != http.StatusOK {
		t.Errorf("front status = %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodPut, ann+"/label", gin.H{"source": "draft", "index": 0, "label": "nope"}); w.Code != http.StatusBadRequest {
		t.Errorf("relabel unknown class status = %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, ann+"/draft", nil); w.Code != http.StatusOK {
		t.Errorf("discard status = %d", w.Code)
	}

	w = do(t, r, http.MethodPost, base+"/p/download", gin.H{"files": []string{"a.png"}})
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d: %s", w.Code, w.Body.String())
	}
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 3 {
		t.Errorf("zip has %d files, want 3", len(zr.File))
	}
}

func TestAnnotationErrors(t *testing.T) {
	r := newTestRouter(t)
	if w := do(t, r, http.MethodPost, base, gin.H{"name": "p"}); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"missing image", http.MethodGet, base + "/p/images/none.png/annotation", nil, http.StatusNotFound},
		{"bad source", http.MethodPost, base + "/p/images/none.png/annotation/delete", gin.H{"source": "disk", "index": 0}, http.StatusBadRequest},
		{"missing index", http.MethodPost, base + "/p/images/none.png/annotation/front", gin.H{"source": "draft"}, http.StatusBadRequest},
		{"out of range", http.MethodPost, base + "/p/images/none.png/annotation/delete", gin.H{"source": "draft", "index": 3}, http.StatusBadRequest},
		{"no polygons", http.MethodPost, base + "/p/images/none.png/annotation/masks", gin.H{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
