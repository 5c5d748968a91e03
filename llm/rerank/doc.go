// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 rerank 提供文档重排序接入层，屏蔽不同打分服务在协议上的差异。

# 概述

Provider 是统一的后端接口，目前有两个实现：

  - ModelhubProvider：调用 modelhub 的 /v1/cross_embedding，
    凭证 api_key 形如 user:password，使用 Basic 认证；
    endpoint_url 末尾的 v1 段会被去掉。
  - CohereProvider：调用 Cohere Rerank v2 API。

Model 在 Provider 之上实现宿主平台的重排语义：文档为空时直接返回，
按分数稳定降序排序，先按 top_n 截断，再按 score_threshold 过滤。
ValidateCredentials 用固定的探测问题与阈值 0.8 调用一次 Invoke，
任何失败都转换为 CREDENTIALS_VALIDATE_FAILED。

# 可观测性

Model 为每次调用开启 rerank.invoke span，并通过 Recorder
（通常是 metrics.Collector）上报耗时、文档数与结果状态。
*/
package rerank
