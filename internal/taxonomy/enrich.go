package taxonomy

import (
	"context"
	"sort"

	"viba-annotation-go/pkg/log"
)

// AncestorResolver 返回标签自身及其全部活跃祖先的 ID。
// 标签不存在或未激活时返回空列表。
type AncestorResolver interface {
	ResolveAncestors(ctx context.Context, tagID int64) ([]int64, error)
}

// Enricher 将每个字段中的标签 ID 扩展为包含完整祖先链的集合。
type Enricher struct {
	resolver AncestorResolver
}

// NewEnricher 创建一个 Enricher 实例。
func NewEnricher(resolver AncestorResolver) *Enricher {
	return &Enricher{resolver: resolver}
}

// Enrich 对每个字段分别补全祖先。空字段原样保留为空列表，不会被省略。
// 单个 ID 解析失败时降级为只保留该 ID 并记录告警。
// 结果升序且去重。
func (e *Enricher) Enrich(ctx context.Context, fields map[string][]int64) map[string][]int64 {
	out := make(map[string][]int64, len(fields))
	for field, ids := range fields {
		out[field] = e.EnrichIDs(ctx, field, ids)
	}
	return out
}

// EnrichIDs 补全单个字段的标签 ID。
func (e *Enricher) EnrichIDs(ctx context.Context, field string, ids []int64) []int64 {
	if len(ids) == 0 {
		return []int64{}
	}
	set := make(map[int64]struct{}, len(ids)*2)
	for _, id := range ids {
		chain, err := e.resolver.ResolveAncestors(ctx, id)
		if err != nil {
			log.Warnf("[Enricher] 获取标签 %d 的祖先失败, 字段 %s 仅保留原始 ID, error: %v", id, field, err)
			set[id] = struct{}{}
			continue
		}
		for _, a := range chain {
			set[a] = struct{}{}
		}
	}
	return sortedIDs(set)
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
