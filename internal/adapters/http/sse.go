package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seehiong/micronaut-optimizer/internal/app/usecases"
)

// events streams session events until the client leaves, the session
// closes or the API shuts down. Idle periods are filled with comment pings.
func (a *API) events(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	ch, unsubscribe := s.Subscribe(usecases.DefaultSubscriberBuffer)
	defer unsubscribe()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	logger := loggerFor(c).With("session_id", s.ID())
	logger.Debug("event stream opened")
	defer logger.Debug("event stream closed")

	ping := time.NewTicker(a.opts.KeepAlive)
	defer ping.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.baseCtx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		case <-ping.C:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
