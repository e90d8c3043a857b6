package rag

// Document 原始文档：已抽取的纯文本加来源元数据。
// 在索引构建时创建一次，之后不可变。
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Chunk 文档块：源文档的一段连续文本，携带来源元数据用于溯源。
type Chunk struct {
	DocID      string                 `json:"doc_id"`
	Index      int                    `json:"index"`
	Content    string                 `json:"content"`
	TokenCount int                    `json:"token_count"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Record 向量索引中的一条记录：(Chunk, 嵌入向量) 加不透明 ID。
// 索引构建时创建，服务期间只读。
type Record struct {
	ID        string    `json:"id"`
	Chunk     Chunk     `json:"chunk"`
	Embedding []float64 `json:"embedding"`
}

// SearchResult 向量搜索结果。Score 可为空：索引无法提供分数时
// 仍保持排序语义。
type SearchResult struct {
	Record Record   `json:"record"`
	Score  *float64 `json:"score,omitempty"`
}

// RetrievedChunk 检索结果：块加可空相似度分数，顺序由索引决定。
type RetrievedChunk struct {
	Chunk Chunk    `json:"chunk"`
	Score *float64 `json:"score,omitempty"`
}

// copyMetadata 复制元数据，避免块之间共享可变 map。
func copyMetadata(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
