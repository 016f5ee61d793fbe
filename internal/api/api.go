package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/gateway"
	"github.com/victornm/quizduel/internal/leaderboard"
)

type Config struct {
	Engine       *gin.Engine
	EventBus     *event.Bus
	Gateway      *gateway.Gateway
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ls *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// The duel protocol itself runs over the websocket endpoint; plain HTTP
	// only serves the leaderboard read path.
	c.Engine.GET("/ws", c.Gateway.HandleWS)
	c.Engine.GET("/api/leaderboard", a.getLeaderboard)

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) getLeaderboard(c *gin.Context) {
	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		DeviceID: c.Query("deviceId"),
	})
	if err != nil {
		e := errors.Convert(err)
		c.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(l))
}
