// Package imageproc 提供参考图的格式/尺寸校验以及压缩、缩放。
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/pkg/log"
)

const mb = 1024 * 1024

// Result 是一次校验的结果，Valid 为 false 时 Error 给出原因。
type Result struct {
	Valid       bool    `json:"valid"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	Format      string  `json:"format,omitempty"`
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
	FileSize    int     `json:"file_size,omitempty"`
	FileSizeMB  float64 `json:"file_size_mb,omitempty"`
	Error       string  `json:"error,omitempty"`
	// Oversized 表示仅因分辨率超出上限而未通过
	Oversized   bool    `json:"-"`
}

// ContentType 返回与图片格式对应的 MIME 类型
func (r Result) ContentType() string {
	if r.Format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// Validator 按配置校验图片
type Validator struct {
	cfg config.ImageConfig
}

func NewValidator(cfg config.ImageConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate 检查大小、格式、方向与分辨率范围。只解码图片头，不解码像素。
func (v *Validator) Validate(data []byte) Result {
	size := len(data)
	if v.cfg.MaxFileSizeMB > 0 && size > v.cfg.MaxFileSizeMB*mb {
		return Result{Error: fmt.Sprintf("file size exceeds limit (max %dMB)", v.cfg.MaxFileSizeMB)}
	}

	conf, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{Error: fmt.Sprintf("image validation failed: %v", err)}
	}
	if format != "png" && format != "jpeg" {
		return Result{Error: "unsupported image format, use PNG or JPEG"}
	}

	w, h := conf.Width, conf.Height
	if v.cfg.RequirePortrait && w >= h {
		return Result{Error: "portrait image required (height must exceed width)"}
	}
	if w < v.cfg.MinWidth || h < v.cfg.MinHeight {
		return Result{Error: fmt.Sprintf("resolution too low, minimum is %dx%d", v.cfg.MinWidth, v.cfg.MinHeight)}
	}
	if (v.cfg.MaxWidth > 0 && w > v.cfg.MaxWidth) || (v.cfg.MaxHeight > 0 && h > v.cfg.MaxHeight) {
		return Result{Error: fmt.Sprintf("resolution too high, maximum is %dx%d", v.cfg.MaxWidth, v.cfg.MaxHeight), Oversized: true}
	}

	return Result{
		Valid:       true,
		Width:       w,
		Height:      h,
		Format:      format,
		AspectRatio: float64(w) / float64(h),
		FileSize:    size,
		FileSizeMB:  float64(size*100/mb) / 100,
	}
}

// ResizeOversized 返回是否对超出最大分辨率的图片做缩放
func (v *Validator) ResizeOversized() bool {
	return v.cfg.ResizeOversized
}

// NeedsCompression 判断文件是否超过压缩阈值
func (v *Validator) NeedsCompression(data []byte) bool {
	return v.cfg.CompressThresholdMB > 0 && len(data) > v.cfg.CompressThresholdMB*mb
}

// Compress 重新编码为 JPEG，透明像素铺白底。失败时返回原始数据。
func (v *Validator) Compress(data []byte) []byte {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warnf("[ImageValidator] 压缩图片失败, 使用原图: %v", err)
		return data
	}
	out, err := encodeJPEG(flatten(src), v.cfg.CompressQuality)
	if err != nil {
		log.Warnf("[ImageValidator] 编码 JPEG 失败, 使用原图: %v", err)
		return data
	}
	return out
}

// ResizeIfNeeded 超出最大分辨率时按比例缩小，保持原格式。未超出或失败时返回原始数据。
func (v *Validator) ResizeIfNeeded(data []byte) []byte {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warnf("[ImageValidator] 缩放图片失败, 使用原图: %v", err)
		return data
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if v.cfg.MaxWidth <= 0 || v.cfg.MaxHeight <= 0 || (w <= v.cfg.MaxWidth && h <= v.cfg.MaxHeight) {
		return data
	}

	ratio := float64(v.cfg.MaxWidth) / float64(w)
	if r := float64(v.cfg.MaxHeight) / float64(h); r < ratio {
		ratio = r
	}
	nw, nh := int(math.Round(float64(w)*ratio)), int(math.Round(float64(h)*ratio))
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if format == "png" {
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		log.Warnf("[ImageValidator] 编码缩放结果失败, 使用原图: %v", err)
		return data
	}
	return buf.Bytes()
}

func flatten(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
