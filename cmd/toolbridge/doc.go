// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 toolbridge 服务端程序入口。

# 概述

cmd/toolbridge 是工具服务的可执行入口，提供 HTTP API 服务、单次 OpenAPI
操作调用、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集与 OpenTelemetry 链路追踪。

# 核心类型

  - Server         — 主服务器，组装工具注册表、存储与缓存，管理 API、Metrics 双端口
  - specImporter   — 把文档目录中的 OpenAPI 文件导入为工具，并跟随文件变更
  - Middleware     — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、invoke（直接调用操作）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、JWTAuth 或 APIKeyAuth、RateLimiter（按租户或 IP）
  - 启动时从数据库恢复已导入的提供方，再导入文档目录
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号取消 context → 逆序关闭服务器 → 停止监听 → 释放缓存、数据库与遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
