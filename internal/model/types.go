package model

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Int64Array 是标签 ID 数组列。
// PostgreSQL 下存储为 bigint[]，其他方言存储为 JSON 文本。
type Int64Array []int64

// Scan 同时兼容 PostgreSQL 数组字面量 ({1,2}) 与 JSON 文本 ([1,2])。
func (a *Int64Array) Scan(src interface{}) error {
	raw, ok, err := scanText(src)
	if err != nil || !ok {
		*a = Int64Array{}
		return err
	}
	if strings.HasPrefix(raw, "{") {
		var pa pq.Int64Array
		if err := pa.Scan([]byte(raw)); err != nil {
			return err
		}
		*a = Int64Array(pa)
		return nil
	}
	var out []int64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("scan Int64Array: %w", err)
	}
	*a = out
	return nil
}

// Value 返回 JSON 文本，PostgreSQL 方言经由 GormValue 写入数组字面量。
func (a Int64Array) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(a))
	return string(b), err
}

// GormValue 按方言选择写入格式
func (a Int64Array) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	if db.Dialector.Name() == "postgres" {
		if a == nil {
			a = Int64Array{}
		}
		v, _ := pq.Int64Array(a).Value()
		return clause.Expr{SQL: "?", Vars: []interface{}{v}}
	}
	v, _ := a.Value()
	return clause.Expr{SQL: "?", Vars: []interface{}{v}}
}

// GormDBDataType 返回列类型
func (Int64Array) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "bigint[]"
	}
	return "text"
}

// StringArray 是字符串数组列，例如参考图 URL 列表、商品 ID 列表。
type StringArray []string

func (a *StringArray) Scan(src interface{}) error {
	raw, ok, err := scanText(src)
	if err != nil || !ok {
		*a = StringArray{}
		return err
	}
	if strings.HasPrefix(raw, "{") {
		var pa pq.StringArray
		if err := pa.Scan([]byte(raw)); err != nil {
			return err
		}
		*a = StringArray(pa)
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("scan StringArray: %w", err)
	}
	*a = out
	return nil
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	return string(b), err
}

func (a StringArray) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	if db.Dialector.Name() == "postgres" {
		if a == nil {
			a = StringArray{}
		}
		v, _ := pq.StringArray(a).Value()
		return clause.Expr{SQL: "?", Vars: []interface{}{v}}
	}
	v, _ := a.Value()
	return clause.Expr{SQL: "?", Vars: []interface{}{v}}
}

func (StringArray) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Embedding 是文本向量列。PostgreSQL 下使用 pgvector，维度由字段标签 dim 指定。
// pgvector 的文本格式 [1,2,3] 与 JSON 一致，其他方言直接存为文本。
type Embedding struct {
	pgvector.Vector
}

// NewEmbedding 将向量包装为列值，空向量返回 nil（写入 NULL）。
func NewEmbedding(vec []float32) *Embedding {
	if len(vec) == 0 {
		return nil
	}
	return &Embedding{Vector: pgvector.NewVector(vec)}
}

func (Embedding) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() != "postgres" {
		return "text"
	}
	if dim := field.TagSettings["DIM"]; dim != "" {
		return "vector(" + dim + ")"
	}
	return "vector"
}

func scanText(src interface{}) (string, bool, error) {
	switch v := src.(type) {
	case nil:
		return "", false, nil
	case []byte:
		s := strings.TrimSpace(string(v))
		return s, s != "", nil
	case string:
		s := strings.TrimSpace(v)
		return s, s != "", nil
	default:
		return "", false, fmt.Errorf("unsupported scan source %T", src)
	}
}
