// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"viba-annotation-go/internal/config"
	"viba-annotation-go/internal/model"
	"viba-annotation-go/pkg/log"
)

// ESClient 为全局客户端，未启用时为 nil。
var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端并确保索引存在。dims 为内容向量维度。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	client, err := NewClient(esCfg)
	if err != nil {
		return err
	}
	ESClient = client
	return CreateIndexIfNotExists(context.Background(), client, esCfg.IndexName, dims)
}

// NewClient 创建客户端，多个地址以逗号分隔。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// IndexMapping 返回参考图索引的 mapping。
func IndexMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"unique_id": { "type": "keyword" },
				"reference_image_url": { "type": "keyword", "index": false },
				"reference_type": { "type": "integer" },
				"search_text": { "type": "text" },
				"tag_ids": { "type": "long" },
				"theme_ids": { "type": "keyword" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"created_at": { "type": "date" }
			}
		}
	}`, dims)
}

// CreateIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func CreateIndexIfNotExists(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(strings.NewReader(IndexMapping(dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexReferenceImage 写入或覆盖一条参考图文档，文档 ID 为 unique_id。
func IndexReferenceImage(ctx context.Context, client *elasticsearch.Client, indexName string, doc model.ReferenceImageDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.UniqueID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// KNNFilter 是语义搜索的可选过滤条件
type KNNFilter struct {
	ReferenceType int
	TagIDs        []int64
	ThemeIDs      []string
}

// BuildKNNQuery 构造带过滤条件的 kNN 查询。
func BuildKNNQuery(vector []float32, k int, filter KNNFilter) map[string]interface{} {
	var filters []map[string]interface{}
	if filter.ReferenceType != 0 {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"reference_type": filter.ReferenceType},
		})
	}
	if len(filter.TagIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"tag_ids": filter.TagIDs},
		})
	}
	if len(filter.ThemeIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"theme_ids": filter.ThemeIDs},
		})
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 10,
	}
	if len(filters) > 0 {
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		}
	}
	return map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": []string{"unique_id", "reference_image_url", "reference_type"},
	}
}

// KNNSearch 执行语义搜索
func KNNSearch(ctx context.Context, client *elasticsearch.Client, indexName string, vector []float32, k int, filter KNNFilter) ([]model.SemanticHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildKNNQuery(vector, k, filter)); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(indexName),
		client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[ES] 语义搜索返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.ReferenceImageDocument `json:"_source"`
				Score  float64                      `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.SemanticHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.SemanticHit{
			UniqueID:          h.Source.UniqueID,
			ReferenceImageURL: h.Source.ReferenceImageURL,
			ReferenceType:     h.Source.ReferenceType,
			Score:             h.Score,
		})
	}
	return hits, nil
}
