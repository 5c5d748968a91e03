// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package handlers 提供 toolbridge HTTP API 的请求处理器实现。

# 概述

handlers 包实现工具调用、OpenAPI 提供方导入、重排与健康检查端点，
并提供统一的响应与错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - ToolHandler      — 工具列表、单次/批量调用、凭证校验
  - ProviderHandler  — 把 OpenAPI 文档导入为工具，按提供方整体替换或移除
  - RerankHandler    — 重排与重排凭证校验
  - HealthHandler    — 存活、就绪与版本信息
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteAnyError
  - 请求验证：DecodeJSONBody（8 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射，工具失败结果按错误码返回
  - 请求凭证通过 context 传递给工具，不落库
*/
package handlers
