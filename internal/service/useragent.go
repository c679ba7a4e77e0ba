package service

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownClient = "Unknown"

// ClientInfo 客户端设备信息
type ClientInfo struct {
	Browser string
	OS      string
}

// ParseUserAgent 解析 User-Agent 中的浏览器与操作系统
func ParseUserAgent(raw string) ClientInfo {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ClientInfo{Browser: unknownClient, OS: unknownClient}
	}
	ua := useragent.New(raw)

	info := ClientInfo{Browser: unknownClient, OS: unknownClient}
	if name, version := ua.Browser(); name != "" {
		info.Browser = name
		if major, _, _ := strings.Cut(version, "."); major != "" {
			info.Browser += " " + major
		}
	}
	if os := ua.OS(); os != "" {
		info.OS = os
	}
	return info
}
