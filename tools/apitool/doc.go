// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package apitool 将单个 OpenAPI Operation 描述转换为一次真实的 HTTP 调用：
注入凭证、按声明位置组装参数、对请求体字段做宽松类型转换，
并把上游响应规范化为交给模型的文本。

# 核心接口/类型

  - Tool — 工具调用器，提供 Invoke / ValidateCredentials / Fork
  - OperationSchema / ParameterSpec / BodySchema / FieldSchema — 不可变的 Operation 描述
  - CredentialRecord — 凭证记录（auth_type、api_key_header、api_key_value、api_key_header_prefix）
  - AssembledRequest — 单次调用的完整请求，每次调用重新构建
  - Transport / HTTPTransport — 出站传输，默认跟随重定向
  - Coercion — 类型转换的标记结果（Converted / Unchanged）

# 主要能力

  - 凭证注入：api_key 支持 basic / bearer / custom 前缀，缺失 auth_type 直接报错
  - 参数组装：调用值 → Schema 默认值 → 必填校验，任何网络请求之前完成
  - 类型转换：integer / number / string / boolean / object / array / null，
    anyOf 按声明顺序尝试，嵌套深度上限 MaxAnyOfDepth
  - 响应规范化：>=400 返回 TOOL_INVOKE 错误；空响应返回固定提示；
    JSON 响应按原键序重新序列化（", " / ": " 分隔，保留非 ASCII 字符）
*/
package apitool
