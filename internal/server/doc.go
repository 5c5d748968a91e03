// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理。

# 概述

Manager 封装单个 net/http.Server，负责监听、服务、关闭与错误传播。
Serve 同时运行多个 Manager（API 端口与 metrics 端口），在 context
结束或任一服务器异常退出时按相反顺序优雅关闭全部服务器。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道。
  - Config：名称、监听地址、读写与空闲超时、最大请求头、
    优雅关闭超时，以及可选的证书与私钥路径。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中服务，配置证书时使用 HTTPS。
  - 随机端口：Addr 在启动后返回实际监听地址。
  - 优雅关闭：Shutdown 在 ShutdownTimeout 内排空请求，可重复调用。
  - 协同关闭：Serve 合并所有错误通道，信号处理交给调用方的 context。
*/
package server
