package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
	"viba-annotation-go/internal/repository"
	"viba-annotation-go/internal/service"
	"viba-annotation-go/pkg/cache"
	"viba-annotation-go/pkg/database"
	"viba-annotation-go/pkg/imageproc"
)

type stubUploader struct{}

func (stubUploader) Configured() bool                     { return true }
func (stubUploader) SupportsImageType(t string) bool      { return t == "reference_image" || t == "prompt_pose" }
func (stubUploader) KeyFromURL(raw string) (string, bool) { return "", false }
func (stubUploader) Upload(_ context.Context, _ []byte, imageType, _ string) (string, error) {
	return "https://cdn.example.com/" + imageType + "/x.png", nil
}
func (stubUploader) DeleteByURL(_ context.Context, raw string) error { return nil }
func (stubUploader) PresignURL(_ context.Context, key string) (string, error) {
	return "https://signed.example.com/" + key, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "handler.db")})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	tags := config.DefaultTagSystem()
	tagRepo := repository.NewTagRepository(db, tags.MaxAncestorDepth)
	themeRepo := repository.NewThemeRepository(db)
	imageRepo := repository.NewReferenceImageRepository(db)

	one, two := 1, 2
	parent := int64(1)
	require.NoError(t, tagRepo.CreateBatch(context.Background(), []*model.TagDefinition{
		{ID: 1, TagType: "occasion", TagName: "outdoor", Level: &one, IsActive: true, Attributes: datatypes.JSON(`{}`)},
		{ID: 2, TagType: "occasion", TagName: "beach", ParentTagID: &parent, Level: &two, IsLeaf: true, IsActive: true, Attributes: datatypes.JSON(`{}`)},
		{ID: 3, TagType: "fabric", TagName: "linen", IsActive: true, Attributes: datatypes.JSON(`{}`)},
	}))

	c := cache.New(32)
	validator := imageproc.NewValidator(config.ImageConfig{MaxFileSizeMB: 1, MinWidth: 10, MinHeight: 20, MaxWidth: 100, MaxHeight: 200, RequirePortrait: true, CompressThresholdMB: 1, CompressQuality: 85})

	r := gin.New()
	RegisterRoutes(r, Handlers{
		Health:         NewHealthHandler(service.NewHealthService(db, nil, func() bool { return true }, "test")),
		Tag:            NewTagHandler(service.NewTagService(tagRepo, tags, c, time.Minute)),
		Theme:          NewThemeHandler(service.NewThemeService(themeRepo, c, time.Minute)),
		Upload:         NewUploadHandler(service.NewUploadService(repository.NewUploadRepository(nil, 0), stubUploader{}, validator)),
		ReferenceImage: NewReferenceImageHandler(
			service.NewAnnotationService(tagRepo, themeRepo, imageRepo, tags, nil, config.EmbeddingConfig{}, nil),
			service.NewSearchService(imageRepo, nil, nil, config.ElasticsearchConfig{}, 768),
		),
	})
	return r
}

func do(t *testing.T, r *gin.Engine, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func pngFile(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	r := newTestRouter(t)
	code, env := do(t, r, httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Endpoint not found", env.Error)
}

func TestTagEndpoints(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, httptest.NewRequest(http.MethodGet, "/api/tags/all", nil))
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	var catalog struct {
		Stats struct {
			TotalCount int `json:"total_count"`
		} `json:"stats"`
		MultiLevel map[string]json.RawMessage `json:"multi_level"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &catalog))
	assert.Equal(t, 3, catalog.Stats.TotalCount)
	assert.Contains(t, catalog.MultiLevel, "occasion")

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/tags/occasion", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"level2_by_parent":{"1":[{"value":2`)

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/tags/hairstyle", nil))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "Unknown tag type")

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/config/tags", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "model_attributes")
}

func TestReferenceImageLifecycle(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, jsonRequest(http.MethodPost, "/api/reference-images",
		`{"reference_image_url": "u", "reference_type": 1, "gen_ml_model_source": "sdxl"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "gen_content_prompt")

	code, env = do(t, r, jsonRequest(http.MethodPost, "/api/reference-images",
		`{"reference_image_url": "u", "reference_type": 2, "can_be_used_for_face_switching": true, "occasion_tag_ids": [7]}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid tag IDs: 7", env.Error)

	code, env = do(t, r, jsonRequest(http.MethodPost, "/api/reference-images", ``))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No data provided", env.Error)

	code, env = do(t, r, jsonRequest(http.MethodPost, "/api/reference-images",
		`{"reference_image_url": "u", "reference_type": 2, "can_be_used_for_face_switching": true, "style_tag_ids": "abc"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, `style_tag_ids: invalid tag id "abc"`)

	code, env = do(t, r, jsonRequest(http.MethodPost, "/api/reference-images",
		`{"reference_image_url": "https://cdn.example.com/a.jpg", "reference_type": 2, "can_be_used_for_face_switching": true, "occasion_tag_ids": [2], "scene_description": "Beach Day"}`))
	require.Equal(t, http.StatusCreated, code)
	var created service.CreateReferenceImageResult
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.UniqueID)

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/reference-images/"+created.UniqueID, nil))
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		OccasionTagIDs []int64  `json:"occasion_tag_ids"`
		ThemeTitles    []string `json:"theme_titles"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, []int64{1, 2}, detail.OccasionTagIDs)
	assert.Empty(t, detail.ThemeTitles)

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/reference-images/missing", nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)

	code, env = do(t, r, jsonRequest(http.MethodPost, "/api/reference-images/search", `{"search_text": "beach"}`))
	require.Equal(t, http.StatusOK, code)
	var result service.SearchResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Items, 1)
	assert.Equal(t, created.UniqueID, result.Items[0].UniqueID)

	code, _ = do(t, r, httptest.NewRequest(http.MethodPost, "/api/reference-images/search", nil))
	assert.Equal(t, http.StatusOK, code)

	code, env = do(t, r, jsonRequest(http.MethodPost, "/api/reference-images/semantic-search", `{"query": "beach"}`))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", env.Error)
}

func multipartRequest(t *testing.T, path string, files map[string][][]byte, fields map[string][]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, contents := range files {
		for i, content := range contents {
			fw, err := mw.CreateFormFile(field, "img"+string(rune('0'+i))+".png")
			require.NoError(t, err)
			_, err = fw.Write(content)
			require.NoError(t, err)
		}
	}
	for field, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(field, v))
		}
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadEndpoints(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, multipartRequest(t, "/api/upload-image",
		map[string][][]byte{"file": {pngFile(t, 20, 40)}}, map[string][]string{"image_type": {"prompt_pose"}}))
	require.Equal(t, http.StatusOK, code, env.Error)
	var uploaded service.UploadResult
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	assert.Equal(t, "https://cdn.example.com/prompt_pose/x.png", uploaded.URL)
	assert.Equal(t, service.ImageInfo{Width: 20, Height: 40}, uploaded.ImageInfo)

	code, env = do(t, r, multipartRequest(t, "/api/upload-image", nil, map[string][]string{"image_type": {"prompt_pose"}}))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file provided", env.Error)

	code, env = do(t, r, multipartRequest(t, "/api/upload-batch",
		map[string][][]byte{"files": {pngFile(t, 20, 40), pngFile(t, 40, 20)}}, map[string][]string{"image_types": {"reference_image"}}))
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, r, multipartRequest(t, "/api/upload-batch",
		map[string][][]byte{"files": {pngFile(t, 20, 40), pngFile(t, 40, 20)}}, nil))
	require.Equal(t, http.StatusOK, code)
	var batch struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
}

func TestHealthAndThemes(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"running"`)

	code, env = do(t, r, httptest.NewRequest(http.MethodGet, "/api/themes", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestDeleteImageRoute(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, httptest.NewRequest(http.MethodDelete, "/api/images?url=https://elsewhere.com/x.png", nil))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "URL does not belong to the configured bucket", env.Error)

	code, env = do(t, r, httptest.NewRequest(http.MethodDelete, "/api/images", nil))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "url")
}
