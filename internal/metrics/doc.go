// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、API 工具调用、Rerank、飞书开放平台、缓存与数据库。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
工厂注册到默认或指定的 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组。

# 核心类型

  - Collector：指标收集器，实现 apitool.Recorder，
    同时被 rerank、飞书客户端与存储层复用。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 工具指标：上游调用次数与耗时，按 tool/method/status/outcome 分组。
  - Rerank 指标：请求数、耗时、每次打分的文档数。
  - 飞书指标：按 endpoint 与业务返回码统计调用次数。
  - 缓存与数据库指标：token 缓存命中率、连接数与查询耗时。
*/
package metrics
