package scan

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/regionscan/internal/models"
)

// LocateFunc locates one server instance, returning nil on failure.
type LocateFunc func(ctx context.Context, inst models.ServerInstance) *models.LocatedServer

// BatchFunc is called after every batch with the running located count.
type BatchFunc func(located, total int)

// BatchResult aggregates the outcome of RunBatches.
type BatchResult struct {
	Located      []models.LocatedServer
	SuccessCount int
	FailCount    int
}

// RunBatches calls locate for every instance, at most batchSize at a time.
// Each batch runs to completion before onBatch is called; the next batch
// starts after delay. Located servers keep their completion order within a
// batch. A canceled ctx stops scheduling further batches, so the counts then
// only cover the batches that ran.
func RunBatches(
	ctx context.Context,
	instances []models.ServerInstance,
	batchSize int,
	delay time.Duration,
	locate LocateFunc,
	onBatch BatchFunc,
) BatchResult {
	logger := zerolog.Ctx(ctx)

	if batchSize < 1 {
		batchSize = 1
	}

	res := BatchResult{Located: make([]models.LocatedServer, 0, len(instances))}

	for start := 0; start < len(instances); start += batchSize {
		end := min(start+batchSize, len(instances))

		logger.Debug().
			Int("batch", start/batchSize+1).
			Int("from", start+1).
			Int("to", end).
			Msg("Processing batch")

		ok, failed := runBatch(ctx, instances[start:end], locate, &res.Located)
		res.SuccessCount += ok
		res.FailCount += failed

		if onBatch != nil {
			onBatch(len(res.Located), len(instances))
		}

		if end < len(instances) {
			if err := sleep(ctx, delay); err != nil {
				break
			}
		}
	}

	return res
}

// runBatch runs locate concurrently for every instance of batch and appends
// successful results to out as they finish.
func runBatch(ctx context.Context, batch []models.ServerInstance, locate LocateFunc, out *[]models.LocatedServer) (ok, failed int) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, inst := range batch {
		wg.Add(1)
		go func(inst models.ServerInstance) {
			defer wg.Done()

			server := safeLocate(ctx, inst, locate)

			mu.Lock()
			defer mu.Unlock()
			if server == nil {
				failed++
				return
			}
			ok++
			*out = append(*out, *server)
		}(inst)
	}

	wg.Wait()

	return ok, failed
}

func safeLocate(ctx context.Context, inst models.ServerInstance, locate LocateFunc) (server *models.LocatedServer) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().
				Str("server", inst.ID).
				Interface("panic", r).
				Msg("Locate panicked")
			server = nil
		}
	}()

	return locate(ctx, inst)
}
