// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ReferenceImageIndexTask 通知索引器把一条参考图同步到搜索索引。
type ReferenceImageIndexTask struct {
	UniqueID      string `json:"unique_id"`
	ReferenceType int    `json:"reference_type"`
}
