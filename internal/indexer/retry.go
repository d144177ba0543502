package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"kb-rag-go/internal/model"
	"kb-rag-go/pkg/log"
)

// retryable 由能区分临时与永久失败的错误实现，例如 API 的 4xx 响应。
type retryable interface {
	Retryable() bool
}

type retryingSink struct {
	next    Sink
	retries uint64
	base    time.Duration
}

// WithRetry 用 Fibonacci 退避包装 sink。maxRetries 为 0 时直接返回 next。
func WithRetry(next Sink, maxRetries uint64, base time.Duration) Sink {
	if maxRetries == 0 {
		return next
	}
	if base <= 0 {
		base = time.Second
	}
	return &retryingSink{next: next, retries: maxRetries, base: base}
}

func (s *retryingSink) Ingest(ctx context.Context, req *model.IngestRequest) (*model.IngestResponse, error) {
	var resp *model.IngestResponse
	attempt := 0
	b := retry.WithMaxRetries(s.retries, retry.NewFibonacci(s.base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		r, err := s.next.Ingest(ctx, req)
		if err == nil {
			resp = r
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		log.Warnf("[Indexer] 提交失败, 准备重试, document_id: %s, attempt: %d, error: %v", req.DocumentID, attempt, err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
