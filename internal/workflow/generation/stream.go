package generation

import (
	"errors"
	"io"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// TokenStream 惰性、只读一次的 token 序列
// Next 在流结束时返回 io.EOF，Close 可重复调用
type TokenStream interface {
	Next() (string, error)
	Close()
}

// einoTokenStream 适配 Eino StreamReader
type einoTokenStream struct {
	reader *schema.StreamReader[*schema.Message]
	once   sync.Once
	onDone func(tokens int, err error)
	tokens int
	done   bool
}

func newEinoTokenStream(r *schema.StreamReader[*schema.Message], onDone func(int, error)) *einoTokenStream {
	return &einoTokenStream{reader: r, onDone: onDone}
}

// Next 返回下一个非空片段，跳过只带 Usage 的尾包
func (s *einoTokenStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.finish(nil)
			return "", io.EOF
		}
		if err != nil {
			s.finish(err)
			return "", err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		s.tokens++
		return msg.Content, nil
	}
}

// Close 释放底层流
func (s *einoTokenStream) Close() {
	s.finish(nil)
}

func (s *einoTokenStream) finish(err error) {
	s.once.Do(func() {
		s.done = true
		s.reader.Close()
		if s.onDone != nil {
			s.onDone(s.tokens, err)
		}
	})
}

// SliceStream 由固定片段组成的 TokenStream
type SliceStream struct {
	tokens []string
	pos    int
	err    error
}

// NewSliceStream 创建固定片段流，err 非空时在片段耗尽后返回
func NewSliceStream(tokens []string, err error) *SliceStream {
	return &SliceStream{tokens: tokens, err: err}
}

// Next 实现 TokenStream
func (s *SliceStream) Next() (string, error) {
	if s.pos < len(s.tokens) {
		t := s.tokens[s.pos]
		s.pos++
		return t, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

// Close 实现 TokenStream
func (s *SliceStream) Close() {}
