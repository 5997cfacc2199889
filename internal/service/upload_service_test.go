package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/imageproc"
)

type fakeUploader struct {
	configured bool
	uploads    []string
	deleted    []string
}

func (u *fakeUploader) Configured() bool { return u.configured }

func (u *fakeUploader) SupportsImageType(imageType string) bool {
	_, ok := config.DefaultFolders()[imageType]
	return ok
}

func (u *fakeUploader) Upload(_ context.Context, _ []byte, imageType, contentType string) (string, error) {
	u.uploads = append(u.uploads, imageType+"|"+contentType)
	return "https://cdn.example.com/" + imageType + "/" + string(rune('a'+len(u.uploads))) + ".png", nil
}

func (u *fakeUploader) KeyFromURL(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "https://cdn.example.com/") {
		return "", false
	}
	return strings.TrimPrefix(raw, "https://cdn.example.com/"), true
}

func (u *fakeUploader) PresignURL(_ context.Context, key string) (string, error) {
	return "https://signed.example.com/" + key + "?sig=1", nil
}

func (u *fakeUploader) DeleteByURL(_ context.Context, raw string) error {
	u.deleted = append(u.deleted, raw)
	return nil
}

type memoryUploadRepo struct {
	urls map[string]string
}

func (r *memoryUploadRepo) FindURL(_ context.Context, imageType, md5 string) (string, bool, error) {
	url, ok := r.urls[imageType+":"+md5]
	return url, ok, nil
}

func (r *memoryUploadRepo) SaveURL(_ context.Context, imageType, md5, url string) error {
	r.urls[imageType+":"+md5] = url
	return nil
}

func (r *memoryUploadRepo) ForgetURL(_ context.Context, url string) error {
	for k, v := range r.urls {
		if v == url {
			delete(r.urls, k)
		}
	}
	return nil
}

func portraitPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newUploadService(uploader *fakeUploader) UploadService {
	return newUploadServiceWithResize(uploader, false)
}

func newUploadServiceWithResize(uploader *fakeUploader, resize bool) UploadService {
	validator := imageproc.NewValidator(config.ImageConfig{
		MaxFileSizeMB:       1,
		MinWidth:            20,
		MinHeight:           40,
		MaxWidth:            40,
		MaxHeight:           80,
		RequirePortrait:     true,
		CompressThresholdMB: 1,
		CompressQuality:     85,
		ResizeOversized:     resize,
	})
	return NewUploadService(&memoryUploadRepo{urls: map[string]string{}}, uploader, validator)
}

func TestUploadImageDeduplicates(t *testing.T) {
	uploader := &fakeUploader{configured: true}
	svc := newUploadService(uploader)
	data := portraitPNG(t, 30, 60)

	first, err := svc.UploadImage(context.Background(), data, "reference_image")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, ImageInfo{Width: 30, Height: 60}, first.ImageInfo)
	assert.Equal(t, []string{"reference_image|image/png"}, uploader.uploads)

	second, err := svc.UploadImage(context.Background(), data, "reference_image")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.URL, second.URL)
	assert.Len(t, uploader.uploads, 1)

	// 不同类型的目录互不共享
	_, err = svc.UploadImage(context.Background(), data, "prompt_pose")
	require.NoError(t, err)
	assert.Len(t, uploader.uploads, 2)
}

func TestUploadImageErrors(t *testing.T) {
	tests := []struct {
		name       string
		configured bool
		data       []byte
		imageType  string
		status     int
		errMsg     string
	}{
		{name: "unsupported type", configured: true, imageType: "avatar", status: http.StatusBadRequest, errMsg: "Unsupported image type"},
		{name: "storage disabled", configured: false, imageType: "reference_image", status: http.StatusInternalServerError},
		{name: "landscape", configured: true, imageType: "reference_image", status: http.StatusBadRequest, errMsg: "portrait"},
		{name: "not an image", configured: true, data: []byte("hello"), imageType: "reference_image", status: http.StatusBadRequest, errMsg: "image validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if data == nil {
				data = portraitPNG(t, 60, 30)
			}
			svc := newUploadService(&fakeUploader{configured: tt.configured})
			_, err := svc.UploadImage(context.Background(), data, tt.imageType)
			require.Error(t, err)
			assert.Equal(t, tt.status, errs.HTTPStatus(err))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestUploadBatchReportsPerFile(t *testing.T) {
	svc := newUploadService(&fakeUploader{configured: true})
	results := svc.UploadBatch(context.Background(), []UploadFile{
		{Filename: "ok.png", ImageType: "prompt_style", Data: portraitPNG(t, 30, 60)},
		{Filename: "wide.png", ImageType: "prompt_style", Data: portraitPNG(t, 60, 30)},
		{Filename: "odd.png", ImageType: "banner", Data: portraitPNG(t, 30, 60)},
	})
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.NotEmpty(t, results[0].URL)
	assert.Equal(t, "prompt_style", results[0].Type)

	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "portrait")
	assert.False(t, results[2].Success)
	assert.Equal(t, "odd.png", results[2].Filename)
}

func TestPresign(t *testing.T) {
	svc := newUploadService(&fakeUploader{configured: true})
	ctx := context.Background()

	url, err := svc.Presign(ctx, "https://cdn.example.com/reference_images/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/reference_images/a.jpg?sig=1", url)

	url, err = svc.Presign(ctx, "reference_images/b.jpg")
	require.NoError(t, err)
	assert.Contains(t, url, "reference_images/b.jpg")

	_, err = svc.Presign(ctx, "https://elsewhere.com/x.jpg")
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))
	_, err = svc.Presign(ctx, " ")
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))
}

func TestUploadImageResizesOversized(t *testing.T) {
	data := portraitPNG(t, 39, 100)

	_, err := newUploadService(&fakeUploader{configured: true}).UploadImage(context.Background(), data, "reference_image")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too high")

	uploader := &fakeUploader{configured: true}
	res, err := newUploadServiceWithResize(uploader, true).UploadImage(context.Background(), data, "reference_image")
	require.NoError(t, err)
	assert.Equal(t, ImageInfo{Width: 31, Height: 80}, res.ImageInfo)
	assert.Equal(t, []string{"reference_image|image/png"}, uploader.uploads)
}

func TestDeleteImage(t *testing.T) {
	uploader := &fakeUploader{configured: true}
	svc := newUploadService(uploader)
	ctx := context.Background()
	data := portraitPNG(t, 30, 60)

	first, err := svc.UploadImage(ctx, data, "reference_image")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, first.URL))
	assert.Equal(t, []string{first.URL}, uploader.deleted)

	// 删除后相同内容需要重新上传
	again, err := svc.UploadImage(ctx, data, "reference_image")
	require.NoError(t, err)
	assert.False(t, again.Cached)
	assert.Len(t, uploader.uploads, 2)

	err = svc.Delete(ctx, "https://elsewhere.com/x.jpg")
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))
	err = svc.Delete(ctx, "")
	assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))
	err = newUploadService(&fakeUploader{}).Delete(ctx, first.URL)
	assert.Equal(t, http.StatusInternalServerError, errs.HTTPStatus(err))
	assert.Len(t, uploader.deleted, 1)
}
