package es

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viba-annotation-go/internal/config"
)

func TestIndexMappingIsValidJSON(t *testing.T) {
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(IndexMapping(768)), &m))

	props := m["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	vector := props["vector"].(map[string]interface{})
	assert.Equal(t, float64(768), vector["dims"])
	assert.Equal(t, "cosine", vector["similarity"])
}

func TestBuildKNNQuery(t *testing.T) {
	q := BuildKNNQuery([]float32{0.1, 0.2}, 5, KNNFilter{ReferenceType: 1, TagIDs: []int64{3}})

	knn := q["knn"].(map[string]interface{})
	assert.Equal(t, 5, knn["k"])
	assert.Equal(t, 50, knn["num_candidates"])

	filters := knn["filter"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	assert.Len(t, filters, 2)

	bare := BuildKNNQuery([]float32{0.1}, 3, KNNFilter{})
	assert.NotContains(t, bare["knn"], "filter")
}

func TestKNNSearchParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_score":0.91,"_source":{"unique_id":"a","reference_image_url":"https://x/a.jpg","reference_type":1}},
			{"_score":0.55,"_source":{"unique_id":"b","reference_image_url":"https://x/b.jpg","reference_type":2}}
		]}}`))
	}))
	defer srv.Close()

	client, err := NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)

	hits, err := KNNSearch(context.Background(), client, "reference_images", []float32{1, 0}, 2, KNNFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].UniqueID)
	assert.InDelta(t, 0.91, hits[0].Score, 1e-9)
	assert.Equal(t, 2, hits[1].ReferenceType)
}
