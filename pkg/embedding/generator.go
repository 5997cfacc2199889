package embedding

import (
	"context"
	"strings"

	"viba-annotation-go/pkg/log"
)

// Generator 在 Client 之上提供不会失败的向量生成：
// 未启用或调用失败时返回 nil，返回的向量长度总是等于目标维度。
type Generator struct {
	client  Client
	enabled bool
}

// NewGenerator 创建 Generator。client 为 nil 视为未启用。
func NewGenerator(client Client, enabled bool) *Generator {
	return &Generator{client: client, enabled: enabled && client != nil}
}

// Enabled 返回是否会调用远端模型
func (g *Generator) Enabled() bool {
	return g != nil && g.enabled
}

// Generate 为文本生成目标维度的向量。
func (g *Generator) Generate(ctx context.Context, text string, dim int) []float32 {
	if !g.Enabled() || strings.TrimSpace(text) == "" || dim <= 0 {
		return nil
	}
	vec, err := g.client.CreateEmbedding(ctx, text, dim)
	if err != nil {
		log.Warnf("[EmbeddingGenerator] 生成向量失败，该字段向量置空, dim: %d, error: %v", dim, err)
		return nil
	}
	return Resize(vec, dim)
}

// Resize 截断或补零到指定维度。
func Resize(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}
