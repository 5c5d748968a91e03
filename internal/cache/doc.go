// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，并在未启用 Redis 时
提供进程内的 MemoryStore 作为替代，二者都实现 Store 接口。

# 概述

本包封装 go-redis 客户端，主要用于缓存飞书 tenant_access_token，
使多个实例共享同一个令牌。Manager 负责连接生命周期管理，
包括初始化、键前缀、健康检查与优雅关闭，支持可选 TLS 连接。

# 核心类型

  - Store：Get/Set/Delete 最小键值接口。
  - Manager：Redis 缓存管理器，额外提供 Ping 与 Close。
  - MemoryStore：带过期时间的进程内缓存。
  - Config：地址、密码、键前缀、连接池、默认 TTL、TLS 与健康检查间隔。

# 错误语义

未命中返回 ErrCacheMiss，可通过 IsCacheMiss 判断；
关闭后的 Manager 返回 ErrClosed。
*/
package cache
