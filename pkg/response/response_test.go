package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type codedErr struct {
	code int
	msg  string
}

func (e *codedErr) Error() string { return e.msg }
func (e *codedErr) BizCode() int  { return e.code }

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want int
	}{
		{CodeSuccess, http.StatusOK},
		{CodeMissingParam, http.StatusBadRequest},
		{CodeInvalidCredentials, http.StatusUnauthorized},
		{CodeInvalidToken, http.StatusUnauthorized},
		{CodeAccountLocked, http.StatusForbidden},
		{CodeForbidden, http.StatusForbidden},
		{CodeSessionNotOwned, http.StatusForbidden},
		{CodeSessionNotFound, http.StatusNotFound},
		{CodeTooManyReq, http.StatusTooManyRequests},
		{CodeDuplicateSubmit, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeServerError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestFail(t *testing.T) {
	t.Run("业务错误透传码与消息", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		err := fmt.Errorf("包装: %w", &codedErr{code: CodeTooManyReq, msg: "慢一点"})

		Fail(c, err)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		resp := decode(t, w)
		assert.Equal(t, CodeTooManyReq, resp.Code)
		assert.Equal(t, "慢一点", resp.Msg, "使用链上业务错误自身的消息")
	})

	t.Run("未知错误不暴露细节", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		Fail(c, errors.New("dial tcp 10.0.0.1:6379: i/o timeout"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decode(t, w)
		assert.Equal(t, CodeServerError, resp.Code)
		assert.NotContains(t, resp.Msg, "10.0.0.1")
	})
}

func TestErrorWithData(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorWithData(c, CodeAccountLocked, "锁定", gin.H{"retry_after": 60})

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decode(t, w)
	assert.Equal(t, CodeAccountLocked, resp.Code)
	assert.Equal(t, float64(60), resp.Data.(map[string]interface{})["retry_after"])
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "请勿重复提交", Message(CodeDuplicateSubmit))
	assert.Equal(t, "未知错误", Message(12345))
}
