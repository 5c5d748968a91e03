// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package registry 管理宿主平台可调用的工具：注册、查询、限流与并发执行。

# 核心接口/类型

  - ToolRegistry / DefaultRegistry — 按名称注册 ToolFunc 与 ToolMetadata，
    支持按 provider 批量注销，List 按名称排序
  - ToolExecutor / DefaultExecutor — 带超时与速率限制的执行器，
    Execute 并发执行多次调用，结果顺序与输入一致
  - APITool / Text — 把 apitool.Tool 与飞书等文本工具适配为 ToolFunc

# 调用约定

单次调用的凭证通过 WithCredentials 挂在 context 上，适配器优先使用它们。
调用 ID 缺省时由 uuid 生成，并通过 types.WithInvocationID 传入工具。
失败结果保留 types.Error 的错误码（ToolResult.Code）。
*/
package registry
