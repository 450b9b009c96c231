package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/roblox"
	"github.com/woozymasta/regionscan/internal/upstream"
)

// ServerLister fetches single pages of the public server listing.
type ServerLister interface {
	PublicServers(ctx context.Context, placeID int64, limit int, cursor string) (roblox.ServerPage, error)
}

// PageFunc is called after every fetched page with the running totals.
type PageFunc func(pagesFetched, maxPages, total int)

// Directory enumerates public servers page by page.
type Directory struct {
	Lister    ServerLister
	PageDelay time.Duration
}

// List collects up to totalWanted public servers of placeID, requesting
// pageSize servers per page. It stops when enough servers were collected, when
// the listing ends or after ceil(totalWanted/pageSize) pages. A rate limited
// page ends the listing with the servers collected so far; any other upstream
// error is returned.
func (d *Directory) List(ctx context.Context, placeID int64, totalWanted, pageSize int, onPage PageFunc) ([]models.ServerInstance, error) {
	logger := zerolog.Ctx(ctx)

	if pageSize < 1 {
		pageSize = 1
	}
	maxPages := (totalWanted + pageSize - 1) / pageSize

	logger.Info().
		Int("wanted", totalWanted).
		Int("page_size", pageSize).
		Dur("page_delay", d.PageDelay).
		Msg("Fetching public servers")

	servers := make([]models.ServerInstance, 0, totalWanted)
	cursor := ""

	for pages := 0; len(servers) < totalWanted && pages < maxPages; {
		if pages > 0 {
			if err := sleep(ctx, d.PageDelay); err != nil {
				return nil, err
			}
		}

		page, err := d.Lister.PublicServers(ctx, placeID, pageSize, cursor)
		if err != nil {
			if upstream.IsRateLimited(err) {
				logger.Warn().
					Int("fetched", len(servers)).
					Msg("Server listing rate limited, continuing with servers fetched so far")
				break
			}

			return nil, fmt.Errorf("list public servers: %w", err)
		}

		if len(page.Data) == 0 {
			logger.Debug().Int("fetched", len(servers)).Msg("No more servers")
			break
		}

		servers = append(servers, page.Data...)
		pages++

		logger.Debug().
			Int("page", pages).
			Int("count", len(page.Data)).
			Int("total", len(servers)).
			Msg("Fetched server page")

		if onPage != nil {
			onPage(pages, maxPages, len(servers))
		}

		cursor = page.Cursor()
		if cursor == "" {
			break
		}
	}

	if len(servers) > totalWanted {
		servers = servers[:totalWanted]
	}

	logger.Info().Int("found", len(servers)).Msg("Finished fetching servers")

	return servers, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
