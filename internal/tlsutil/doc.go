// Package tlsutil 提供集中式 TLS 配置，
// 为出站 HTTP 客户端（API 工具、rerank、飞书）和 Redis 连接提供安全加固的 TLS 设置，
// 并统一连接/读取超时与出站代理配置。
package tlsutil
