package domain

import "fmt"

// Default transaction sizing. The store rejects transactions over TransactionItemCeiling
// records; inbound and outbound reserve one slot for the capacity update, moves reserve two.
const (
	DefaultTransactionItemCeiling = 25
	DefaultAddBatchSize           = DefaultTransactionItemCeiling
	DefaultTransitionBatchSize    = DefaultTransactionItemCeiling - 1
	DefaultMoveBatchSize          = DefaultTransactionItemCeiling - 2
)

// BatchLimits sizes the sub-batches of each operation.
type BatchLimits struct {
	TransactionItemCeiling int
	AddBatchSize           int
	TransitionBatchSize    int
	MoveBatchSize          int
}

func DefaultBatchLimits() BatchLimits {
	return BatchLimits{
		TransactionItemCeiling: DefaultTransactionItemCeiling,
		AddBatchSize:           DefaultAddBatchSize,
		TransitionBatchSize:    DefaultTransitionBatchSize,
		MoveBatchSize:          DefaultMoveBatchSize,
	}
}

// Validate checks that every sub-batch plus its capacity records fits one transaction.
func (l BatchLimits) Validate() error {
	switch {
	case l.TransactionItemCeiling < 3:
		return fmt.Errorf("transaction item ceiling %d must be at least 3", l.TransactionItemCeiling)
	case l.AddBatchSize < 1 || l.AddBatchSize > l.TransactionItemCeiling:
		return fmt.Errorf("add batch size %d must be in [1, %d]", l.AddBatchSize, l.TransactionItemCeiling)
	case l.TransitionBatchSize < 1 || l.TransitionBatchSize > l.TransactionItemCeiling-1:
		return fmt.Errorf("transition batch size %d must be in [1, %d]", l.TransitionBatchSize, l.TransactionItemCeiling-1)
	case l.MoveBatchSize < 1 || l.MoveBatchSize > l.TransactionItemCeiling-2:
		return fmt.Errorf("move batch size %d must be in [1, %d]", l.MoveBatchSize, l.TransactionItemCeiling-2)
	}
	return nil
}

// Partition splits ids into consecutive sub-batches of at most size elements.
// Order is preserved. The sub-batches share ids' backing array.
func Partition(ids []string, size int) [][]string {
	if size < 1 {
		panic(fmt.Sprintf("domain: partition size %d", size))
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end:end])
	}
	return batches
}
