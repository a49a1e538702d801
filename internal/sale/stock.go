package sale

import (
	"context"
	"encoding/json"
	"time"

	"gymcore/internal/logger"
	"gymcore/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const stockQueueKey = "stock:deductions"

type StockJob struct {
	SaleID  int       `json:"sale_id"`
	Created time.Time `json:"created"`
}

// StockQueue hands paid sales to the inventory worker, which owns per-item deduction.
type StockQueue struct {
	redis *redis.Client
}

func NewStockQueue(rdb *redis.Client) *StockQueue {
	return &StockQueue{redis: rdb}
}

func (q *StockQueue) Deduct(ctx context.Context, saleID int) error {
	data, err := json.Marshal(StockJob{SaleID: saleID, Created: time.Now()})
	if err != nil {
		return err
	}
	if err := q.redis.LPush(ctx, stockQueueKey, data).Err(); err != nil {
		logger.Error("failed to queue stock deduction", "sale_id", saleID, "error", err)
		return err
	}
	logger.Info("stock deduction queued", "sale_id", saleID)
	return nil
}

// QueueLength reports the deductions still waiting for the inventory worker and publishes it as a gauge.
func (q *StockQueue) QueueLength(ctx context.Context) (int64, error) {
	n, err := q.redis.LLen(ctx, stockQueueKey).Result()
	if err != nil {
		return 0, err
	}
	metrics.StockQueueLength.Set(float64(n))
	return n, nil
}
