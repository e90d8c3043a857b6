package rag

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer 分词器接口
type Tokenizer interface {
	CountTokens(text string) int
	Encode(text string) []int
}

// =============================================================================
// Tiktoken 分词器
// =============================================================================

// TiktokenTokenizer 基于 tiktoken 编码计数 token。
// 编码数据懒加载；加载失败时回退到字符估算并记录警告日志。
type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	logger   *zap.Logger
}

// NewTiktokenTokenizer 创建 tiktoken 分词器。
// encoding 为空时默认 cl100k_base。
func NewTiktokenTokenizer(encoding string, logger *zap.Logger) *TiktokenTokenizer {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenTokenizer{encoding: encoding, logger: logger}
}

// init lazily 初始化 tiktoken 编码（首次使用时可能下载数据）。
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens 返回文本的 token 数。
// 编码不可用时回退到估算。
func (t *TiktokenTokenizer) CountTokens(text string) int {
	if err := t.init(); err != nil {
		t.logger.Warn("tiktoken unavailable, falling back to estimate", zap.Error(err))
		return estimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Encode 将文本转换为 token ID 列表。
func (t *TiktokenTokenizer) Encode(text string) []int {
	if err := t.init(); err != nil {
		t.logger.Warn("tiktoken unavailable, falling back to estimate", zap.Error(err))
		tokens := make([]int, estimateTokens(text))
		for i := range tokens {
			tokens[i] = i
		}
		return tokens
	}
	return t.enc.Encode(text, nil, nil)
}

// =============================================================================
// Estimator tokenizer
// =============================================================================

// EstimatorTokenizer is a character-count-based token estimator.
// It distinguishes CJK and ASCII characters for better accuracy
// compared to a naive len/4 approach, and needs no encoding data download.
type EstimatorTokenizer struct{}

// NewEstimatorTokenizer creates the estimator.
func NewEstimatorTokenizer() *EstimatorTokenizer {
	return &EstimatorTokenizer{}
}

func (e *EstimatorTokenizer) CountTokens(text string) int {
	return estimateTokens(text)
}

func (e *EstimatorTokenizer) Encode(text string) []int {
	// The estimator cannot truly encode; return pseudo token IDs.
	tokens := make([]int, estimateTokens(text))
	for i := range tokens {
		tokens[i] = i
	}
	return tokens
}

// estimateTokens estimates the token count of text.
// CJK characters ~1.5 chars/token, ASCII ~4 chars/token.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	cjkTokens := float64(cjkCount) / 1.5
	asciiTokens := float64(totalChars-cjkCount) / 4.0
	estimated := int(cjkTokens + asciiTokens)

	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
