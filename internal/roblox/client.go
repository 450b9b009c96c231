// Package roblox is a client for the Roblox web APIs used by a scan: place to
// universe resolution, game metadata, public server listing, the game join
// handshake and game icons.
package roblox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/woozymasta/regionscan/internal/config"
	"github.com/woozymasta/regionscan/internal/models"
	"github.com/woozymasta/regionscan/internal/upstream"
	"golang.org/x/sync/errgroup"
)

// joinUserAgent is the client identity the join endpoint expects.
const joinUserAgent = "Roblox/WinInet"

// ErrNoUniverse is returned when a place does not resolve to a universe.
var ErrNoUniverse = errors.New("no universe found for place")

// Client talks to the Roblox web APIs.
type Client struct {
	apis       *upstream.Client
	games      *upstream.Client
	join       *upstream.Client
	thumbnails *upstream.Client

	apisURL       string
	gamesURL      string
	joinURL       string
	thumbnailsURL string
}

// New builds a client from the Roblox configuration group.
func New(cfg config.Roblox) *Client {
	return &Client{
		apis:       upstream.New("apis", cfg.Timeout),
		games:      upstream.New("games", cfg.Timeout),
		join:       upstream.New("gamejoin", cfg.Timeout),
		thumbnails: upstream.New("thumbnails", cfg.Timeout),

		apisURL:       strings.TrimRight(cfg.APIsURL, "/"),
		gamesURL:      strings.TrimRight(cfg.GamesURL, "/"),
		joinURL:       strings.TrimRight(cfg.GameJoinURL, "/"),
		thumbnailsURL: strings.TrimRight(cfg.ThumbnailsURL, "/"),
	}
}

// ServerPage is one page of the public server listing.
type ServerPage struct {
	NextPageCursor *string                 `json:"nextPageCursor"`
	Data           []models.ServerInstance `json:"data"`
}

// Cursor returns the next page cursor or "" at the end of data.
func (p ServerPage) Cursor() string {
	if p.NextPageCursor == nil {
		return ""
	}

	return *p.NextPageCursor
}

type gameInfo struct {
	Name    string `json:"name"`
	Creator struct {
		Name string `json:"name"`
	} `json:"creator"`
	Playing int64 `json:"playing"`
	Visits  int64 `json:"visits"`
}

// UniverseID resolves a public place id to its internal universe id.
func (c *Client) UniverseID(ctx context.Context, placeID int64) (int64, error) {
	var resp struct {
		UniverseID *int64 `json:"universeId"`
	}

	u := fmt.Sprintf("%s/universes/v1/places/%d/universe", c.apisURL, placeID)
	if err := c.apis.GetJSON(ctx, u, nil, &resp); err != nil {
		return 0, err
	}

	if resp.UniverseID == nil || *resp.UniverseID == 0 {
		return 0, ErrNoUniverse
	}

	return *resp.UniverseID, nil
}

func (c *Client) gameInfo(ctx context.Context, universeID int64) (*gameInfo, error) {
	var resp struct {
		Data []gameInfo `json:"data"`
	}

	u := fmt.Sprintf("%s/v1/games?universeIds=%d", c.gamesURL, universeID)
	if err := c.games.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, nil
	}

	return &resp.Data[0], nil
}

// GameDetails fetches title metadata for a place. It returns nil without an
// error when the place or its game does not exist.
func (c *Client) GameDetails(ctx context.Context, placeID int64) (*models.GameDetails, error) {
	log := zerolog.Ctx(ctx)
	log.Debug().Int64("place_id", placeID).Msg("Fetching game details")

	universeID, err := c.UniverseID(ctx, placeID)
	if errors.Is(err, ErrNoUniverse) {
		log.Warn().Int64("place_id", placeID).Msg("No universe found for place")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	info, err := c.gameInfo(ctx, universeID)
	if err != nil || info == nil {
		return nil, err
	}

	log.Debug().Str("name", info.Name).Int64("universe_id", universeID).Msg("Game details found")

	return &models.GameDetails{
		Name:        info.Name,
		CreatorName: info.Creator.Name,
		Playing:     info.Playing,
		Visits:      info.Visits,
		Fetched:     true,
	}, nil
}

// GamePreview fetches the title card for a place, loading game info and icon
// concurrently. It returns nil without an error when the game does not exist.
func (c *Client) GamePreview(ctx context.Context, placeID int64) (*models.GamePreview, error) {
	universeID, err := c.UniverseID(ctx, placeID)
	if errors.Is(err, ErrNoUniverse) || upstream.Classify(err) == upstream.KindNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var (
		info      *gameInfo
		thumbnail string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = c.gameInfo(gctx, universeID)
		return err
	})
	g.Go(func() error {
		var err error
		thumbnail, err = c.GameIcon(gctx, universeID)
		return err
	})
	if err := g.Wait(); err != nil {
		if upstream.Classify(err) == upstream.KindNotFound {
			return nil, nil
		}
		return nil, err
	}

	if info == nil {
		return nil, nil
	}

	preview := &models.GamePreview{
		Name:    info.Name,
		Playing: info.Playing,
		Visits:  info.Visits,
	}
	if thumbnail != "" {
		preview.ThumbnailURL = &thumbnail
	}

	return preview, nil
}

// GameIcon returns the 512x512 PNG icon URL of a universe, or "" if none.
func (c *Client) GameIcon(ctx context.Context, universeID int64) (string, error) {
	var resp struct {
		Data []struct {
			ImageURL string `json:"imageUrl"`
		} `json:"data"`
	}

	u := fmt.Sprintf("%s/v1/games/icons?universeIds=%d&size=512x512&format=Png&isCircular=false",
		c.thumbnailsURL, universeID)
	if err := c.thumbnails.GetJSON(ctx, u, nil, &resp); err != nil {
		return "", err
	}

	if len(resp.Data) == 0 {
		return "", nil
	}

	return resp.Data[0].ImageURL, nil
}

// PublicServers fetches one page of joinable (not full) public servers.
func (c *Client) PublicServers(ctx context.Context, placeID int64, limit int, cursor string) (ServerPage, error) {
	q := url.Values{}
	q.Set("excludeFullGames", "true")
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page ServerPage
	u := fmt.Sprintf("%s/v1/games/%d/servers/Public?%s", c.gamesURL, placeID, q.Encode())
	err := c.games.GetJSON(ctx, u, nil, &page)

	return page, err
}

type joinRequest struct {
	GameID            string `json:"gameId"`
	GameJoinAttemptID string `json:"gameJoinAttemptId"`
	PlaceID           int64  `json:"placeId"`
	IsTeleport        bool   `json:"isTeleport"`
}

type joinResponse struct {
	JoinScript *struct {
		UdmuxEndpoints []struct {
			Address string `json:"Address"`
		} `json:"UdmuxEndpoints"`
	} `json:"joinScript"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// JoinEndpoint performs the join handshake for a server instance using the
// session credential and returns the first relay endpoint address, or "" if
// the response carried none.
func (c *Client) JoinEndpoint(ctx context.Context, placeID int64, serverID, credential string) (string, error) {
	header := http.Header{
		"Referer":    {fmt.Sprintf("https://www.roblox.com/games/%d/", placeID)},
		"Origin":     {"https://www.roblox.com"},
		"User-Agent": {joinUserAgent},
		"Cookie":     {".ROBLOSECURITY=" + credential},
	}

	body := joinRequest{
		PlaceID:           placeID,
		IsTeleport:        false,
		GameID:            serverID,
		GameJoinAttemptID: serverID,
	}

	var resp joinResponse
	if err := c.join.PostJSON(ctx, c.joinURL+"/v1/join-game-instance", header, body, &resp); err != nil {
		return "", err
	}

	if resp.JoinScript == nil || len(resp.JoinScript.UdmuxEndpoints) == 0 {
		return "", nil
	}

	return resp.JoinScript.UdmuxEndpoints[0].Address, nil
}
