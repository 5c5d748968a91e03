// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package openapi 把 OpenAPI 文档转换为可调用的 apitool.Bundle。

支持 OpenAPI 3.x 与 Swagger 2.0，输入可以是 JSON 或 YAML。文档由
kin-openapi 加载与校验；YAML 通过 yaml.v3 节点转换，保留声明顺序，
因此生成的工具、参数与请求体字段都按文档顺序排列。

# 核心接口/类型

  - Generator — 加载文档（URL / 文件 / 字节）并生成工具，按来源缓存
  - Document — 已加载的文档（kin-openapi 模型与有序原始树）
  - GenerateOptions — BaseURL 覆盖、Tag 过滤、名称前缀、provider
  - FindBundle — 按工具名或 operationId 查找

# 主要能力

  - 本地 $ref 内联：支持 JSON Pointer 转义，循环引用展开为空对象
  - 路径级参数合并：operation 同名同位置参数优先
  - 服务器选择：operation > path > 文档，变量取默认值，相对地址按文档位置解析
  - 安全传输：远程文档使用 tlsutil.SecureHTTPClient 获取
*/
package openapi
