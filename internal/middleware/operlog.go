package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/admin-auth/internal/model"
	"github.com/pu-ac-cn/admin-auth/internal/service"
	"github.com/pu-ac-cn/admin-auth/pkg/response"
	"go.uber.org/zap"
)

// 请求体最多读取的字节数，超出部分不进入审计参数
const maxAuditBody = 8 << 10

// OldValueLoader 在处理前加载变更前的数据，由具体路由显式提供
type OldValueLoader interface {
	LoadOldValue(c *gin.Context) (interface{}, error)
}

// OldValueFunc 函数适配 OldValueLoader
type OldValueFunc func(c *gin.Context) (interface{}, error)

// LoadOldValue 实现 OldValueLoader
func (f OldValueFunc) LoadOldValue(c *gin.Context) (interface{}, error) { return f(c) }

// bodyWriter 复制响应体用于审计
type bodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// OperLog 操作审计
// 记录标题、路由、参数、变更前数据、响应、耗时与操作人；写日志失败不影响业务
func OperLog(svc service.OperLogService, title string, loader OldValueLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		params := auditParams(c)

		var oldValue string
		if loader != nil {
			if v, err := loader.LoadOldValue(c); err != nil {
				logger.Debug("加载变更前数据失败", zap.Error(err), zap.String("title", title))
			} else if v != nil {
				oldValue = toJSON(v)
			}
		}

		w := &bodyWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		entry := &model.OperLog{
			Title:         title,
			Route:         c.FullPath(),
			RequestMethod: c.Request.Method,
			URL:           c.Request.URL.RequestURI(),
			Params:        params,
			OldValue:      oldValue,
			IP:            c.ClientIP(),
			OperTime:      start,
		}
		if p, ok := CurrentPrincipal(c); ok {
			entry.Username = p.Username
		}

		defer func() {
			if r := recover(); r != nil {
				entry.Status = model.OperStatusFail
				entry.ErrorMsg = fmt.Sprint(r)
				entry.CostMs = time.Since(start).Milliseconds()
				svc.Record(entry)
				panic(r)
			}
		}()

		c.Next()

		entry.CostMs = time.Since(start).Milliseconds()
		entry.Result = w.body.String()
		entry.Status = model.OperStatusSuccess
		if len(c.Errors) > 0 {
			entry.Status = model.OperStatusFail
			entry.ErrorMsg = c.Errors.String()
		} else if w.Status() >= http.StatusBadRequest {
			entry.Status = model.OperStatusFail
			entry.ErrorMsg = responseMessage(w.body.Bytes())
		}
		svc.Record(entry)
	}
}

// auditParams 汇总路径参数、查询参数与请求体，读取后回填请求体
func auditParams(c *gin.Context) string {
	params := make(map[string]interface{})
	if len(c.Params) > 0 {
		path := make(map[string]string, len(c.Params))
		for _, p := range c.Params {
			path[p.Key] = p.Value
		}
		params["path"] = path
	}
	if q := c.Request.URL.Query(); len(q) > 0 {
		params["query"] = q
	}
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBody))
		if err == nil && len(raw) > 0 {
			rest := c.Request.Body
			c.Request.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(raw), rest), Closer: rest}
			if json.Valid(raw) {
				params["body"] = json.RawMessage(raw)
			} else {
				params["body"] = string(raw)
			}
		}
	}
	if len(params) == 0 {
		return ""
	}
	return toJSON(params)
}

type readCloser struct {
	io.Reader
	io.Closer
}

func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "参数序列化失败"
	}
	return string(b)
}

func responseMessage(body []byte) string {
	var resp response.Response
	if err := json.Unmarshal(body, &resp); err != nil || resp.Msg == "" {
		return ""
	}
	return resp.Msg
}
