// Package response 统一响应封装
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 标准响应结构
// 字段顺序：code -> msg -> data
type Response struct {
	Code int         `json:"code"` // 业务状态码，0 表示成功
	Msg  string      `json:"msg"`  // 响应消息（中文）
	Data interface{} `json:"data"` // 响应数据
}

// 业务错误码
const (
	CodeSuccess = 0 // 操作成功

	// 参数错误 10xxx
	CodeInvalidRequest = 10001 // 请求参数无效
	CodeInvalidFormat  = 10002 // 参数格式错误
	CodeMissingParam   = 10003 // 必填参数缺失

	// 认证错误 20xxx
	CodeInvalidCredentials = 20001 // 用户名或密码错误
	CodeInvalidToken       = 20002 // 令牌无效或已过期
	CodeAccountLocked      = 20004 // 账户已被锁定
	CodeInvalidCode        = 20006 // 验证码错误
	CodeForbidden          = 20008 // 无权访问该资源
	CodeCaptchaExpired     = 20009 // 验证码已过期
	CodeSessionNotOwned    = 20010 // 会话不属于当前用户
	CodeAccountDisabled    = 20011 // 账户已停用

	// 资源不存在 40xxx
	CodeUserNotFound    = 40001 // 用户不存在
	CodeSessionNotFound = 40005 // 会话不存在

	// 服务器错误 90xxx
	CodeServerError     = 90001 // 服务器内部错误
	CodeUnavailable     = 90002 // 服务暂时不可用
	CodeTooManyReq      = 90003 // 请求过于频繁
	CodeDuplicateSubmit = 90004 // 重复提交
)

// 错误码对应的消息
var codeMessages = map[int]string{
	CodeSuccess:            "操作成功",
	CodeInvalidRequest:     "请求参数无效",
	CodeInvalidFormat:      "参数格式错误",
	CodeMissingParam:       "必填参数缺失",
	CodeInvalidCredentials: "用户名或密码错误",
	CodeInvalidToken:       "令牌无效或已过期",
	CodeAccountLocked:      "账户已被锁定，请稍后重试",
	CodeInvalidCode:        "验证码错误",
	CodeForbidden:          "无权访问该资源",
	CodeCaptchaExpired:     "验证码已过期",
	CodeSessionNotOwned:    "无权操作",
	CodeAccountDisabled:    "账户已停用",
	CodeUserNotFound:       "用户不存在",
	CodeSessionNotFound:    "会话不存在",
	CodeServerError:        "服务器内部错误，请稍后重试",
	CodeUnavailable:        "服务暂时不可用",
	CodeTooManyReq:         "请求过于频繁，请稍后再试",
	CodeDuplicateSubmit:    "请勿重复提交",
}

// Coder 携带业务错误码的错误
type Coder interface {
	error
	BizCode() int
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  codeMessages[CodeSuccess],
		Data: data,
	})
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int) {
	ErrorWithMsg(c, code, Message(code))
}

// ErrorWithMsg 错误响应（自定义消息）
func ErrorWithMsg(c *gin.Context, code int, msg string) {
	ErrorWithData(c, code, msg, nil)
}

// ErrorWithData 错误响应（附带数据，如锁定剩余秒数）
func ErrorWithData(c *gin.Context, code int, msg string, data interface{}) {
	c.JSON(HTTPStatus(code), Response{
		Code: code,
		Msg:  msg,
		Data: data,
	})
}

// Fail 按错误类型输出响应
// 实现 Coder 的错误使用其业务码与消息，其余错误一律按服务器内部错误处理，不向外暴露细节
func Fail(c *gin.Context, err error) {
	var coder Coder
	if errors.As(err, &coder) {
		ErrorWithMsg(c, coder.BizCode(), coder.Error())
		return
	}
	Error(c, CodeServerError)
}

// Message 获取错误码默认消息
func Message(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return "未知错误"
}

// HTTPStatus 业务错误码转 HTTP 状态码
func HTTPStatus(code int) int {
	switch {
	case code == CodeSuccess:
		return http.StatusOK
	case code >= 10000 && code < 20000:
		return http.StatusBadRequest
	case code >= 20000 && code < 30000:
		if code == CodeInvalidToken || code == CodeInvalidCredentials {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case code >= 40000 && code < 50000:
		return http.StatusNotFound
	case code == CodeTooManyReq || code == CodeDuplicateSubmit:
		return http.StatusTooManyRequests
	case code == CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
