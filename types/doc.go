// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 toolbridge 各适配器共享的最底层类型定义。

# 概述

types 不依赖任何内部包，为 tools、llm、api 等上层模块提供统一的类型契约，
避免循环依赖。

# 核心类型

  - ToolSchema / ToolCall / ToolResult — 工具定义、调用与执行结果
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - Context 辅助函数 — WithRequestID / WithTenantID / WithUserID / WithInvocationID
*/
package types
