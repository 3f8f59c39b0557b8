package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Ayash-Bera/querygen/internal/cache"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	maxAge string
}

func (w *captureWriter) WriteHeader(code int) {
	if code == http.StatusOK {
		w.Header().Set("Cache-Control", w.maxAge)
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// restamp gives a replayed envelope the current request's correlation id and
// timestamp. Bodies that are not envelopes are returned as stored.
func restamp(body []byte, correlationID string) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	if _, ok := envelope["correlationId"]; !ok {
		return body
	}

	envelope["correlationId"], _ = json.Marshal(correlationID)
	envelope["timestamp"], _ = json.Marshal(time.Now().UTC().Format(time.RFC3339Nano))
	out, err := json.Marshal(envelope)
	if err != nil {
		return body
	}
	return out
}

// ResponseCache serves repeated GET requests from store. Only 200 responses
// are kept; other methods pass through untouched.
func ResponseCache(store cache.Store, ttl time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	maxAge := fmt.Sprintf("public, max-age=%d", int(ttl.Seconds()))

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := utils.MD5Hash(c.Request.Method + " " + c.Request.URL.RequestURI())

		if data, ok, err := store.Get(ctx, key); err != nil {
			logger.WithError(err).Warn("Response cache lookup failed")
		} else if ok {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				c.Header("X-Cache", "HIT")
				c.Header("Cache-Control", maxAge)
				c.Data(cached.Status, cached.ContentType, restamp(cached.Body, c.GetString(utils.ContextKeyRequestID)))
				c.Abort()
				return
			}
		}

		w := &captureWriter{ResponseWriter: c.Writer, maxAge: maxAge}
		c.Writer = w
		c.Header("X-Cache", "MISS")

		c.Next()

		if w.Status() != http.StatusOK {
			return
		}
		data, err := json.Marshal(cachedResponse{
			Status:      w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := store.Set(ctx, key, data, ttl); err != nil {
			logger.WithError(err).Warn("Failed to store cached response")
		}
	}
}
