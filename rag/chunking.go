package rag

import (
	"strings"

	"go.uber.org/zap"
)

// ChunkingConfig 分块配置
type ChunkingConfig struct {
	// ChunkSize 块大小预算（tokens）
	ChunkSize int `json:"chunk_size"`
	// MinChunkSize 最小块大小（tokens）。末尾不足该大小的块会并入前一块，
	// 不会被丢弃。0 禁用。
	MinChunkSize int `json:"min_chunk_size"`
}

// DefaultChunkingConfig 默认分块配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    1024,
		MinChunkSize: 0,
	}
}

// SentenceChunker 句子聚合分块器。
// 先按句子切分，再贪心地把连续句子打包进一个块，直到加入下一句
// 会超出 token 预算为止。相比固定宽度切片能保持语义完整性。
type SentenceChunker struct {
	config    ChunkingConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewSentenceChunker 创建句子聚合分块器
func NewSentenceChunker(config ChunkingConfig, tokenizer Tokenizer, logger *zap.Logger) *SentenceChunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkingConfig().ChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SentenceChunker{
		config:    config,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Split 将文档切分为有序的块序列。
// 每个块携带源文档的元数据。空文档（无可提取文本）返回空序列，不是错误。
// 单个超出预算的句子形成独立的超大块，不做截断。
func (c *SentenceChunker) Split(doc Document) []Chunk {
	sentences := splitIntoSentences(doc.Content)
	if len(sentences) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0)
	current := ""

	flush := func() {
		if current == "" {
			return
		}
		chunks = append(chunks, Chunk{
			DocID:      doc.ID,
			Index:      len(chunks),
			Content:    current,
			TokenCount: c.tokenizer.CountTokens(current),
			Metadata:   copyMetadata(doc.Metadata),
		})
		current = ""
	}

	for _, sentence := range sentences {
		candidate := sentence
		if current != "" {
			candidate = current + " " + sentence
		}

		if current != "" && c.tokenizer.CountTokens(candidate) > c.config.ChunkSize {
			flush()
			current = sentence
			continue
		}
		current = candidate
	}
	flush()

	// 末尾碎片并入前一块，保持全覆盖
	if c.config.MinChunkSize > 0 && len(chunks) > 1 {
		last := chunks[len(chunks)-1]
		if last.TokenCount < c.config.MinChunkSize {
			prev := &chunks[len(chunks)-2]
			prev.Content = prev.Content + " " + last.Content
			prev.TokenCount = c.tokenizer.CountTokens(prev.Content)
			chunks = chunks[:len(chunks)-1]
		}
	}

	c.logger.Debug("document chunked",
		zap.String("doc_id", doc.ID),
		zap.Int("sentences", len(sentences)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", c.config.ChunkSize))

	return chunks
}

// splitIntoSentences 分割成句子
func splitIntoSentences(text string) []string {
	sentences := []string{}

	delimiters := []rune{'.', '。', '!', '！', '?', '？', '\n'}

	currentSentence := ""
	for _, char := range text {
		currentSentence += string(char)

		isDelimiter := false
		for _, delim := range delimiters {
			if char == delim {
				isDelimiter = true
				break
			}
		}

		if isDelimiter {
			trimmed := strings.TrimSpace(currentSentence)
			if trimmed != "" {
				sentences = append(sentences, trimmed)
			}
			currentSentence = ""
		}
	}

	// 添加最后一个句子
	if strings.TrimSpace(currentSentence) != "" {
		sentences = append(sentences, strings.TrimSpace(currentSentence))
	}

	return sentences
}
