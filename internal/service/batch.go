package service

import "sync"

// BatchFailure is one item a batch operation could not process.
type BatchFailure[T any] struct {
	Item    T      `json:"item"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// BatchResult tracks per-item outcomes of a best-effort batch. Safe for concurrent use.
type BatchResult[T any] struct {
	mu        sync.Mutex
	Succeeded []T               `json:"succeeded"`
	Failed    []BatchFailure[T] `json:"failed"`
}

func NewBatchResult[T any]() *BatchResult[T] {
	return &BatchResult[T]{Succeeded: []T{}, Failed: []BatchFailure[T]{}}
}

func (b *BatchResult[T]) Succeed(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Succeeded = append(b.Succeeded, item)
}

func (b *BatchResult[T]) Fail(item T, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Failed = append(b.Failed, BatchFailure[T]{Item: item, Err: err, Message: err.Error()})
}

func (b *BatchResult[T]) SucceededCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Succeeded)
}

func (b *BatchResult[T]) FailedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Failed)
}
