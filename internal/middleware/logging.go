// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"kb-rag-go/pkg/log"
)

// maxLoggedBody 是日志中保留的请求/响应体最大字节数，入库请求可能很大。
const maxLoggedBody = 2048

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 将响应写入 gin.ResponseWriter，并在内部 buffer 中保留前 maxLoggedBody 字节
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) > room {
			w.body.Write(b[:room])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// 读取并重新缓存请求体
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", truncate(requestBody),
			"responseBody", truncate(blw.body.Bytes()),
		)
	}
}

func truncate(b []byte) string {
	if len(b) <= maxLoggedBody {
		return string(b)
	}
	return string(b[:maxLoggedBody]) + "...(truncated)"
}
