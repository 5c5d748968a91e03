// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，
支持 postgres、mysql 与纯 Go 的 sqlite 驱动。

# 概述

Open 按配置选择方言并建立 GORM 连接；PoolManager 封装
database/sql 的连接池参数，后台健康检查定时探活，
并把连接数上报给 StatsRecorder（通常是 metrics.Collector）。
导入的工具包持久化（internal/store）基于本包。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置，可由 PoolConfigFrom 从应用配置转换。
  - StatsRecorder：连接池统计上报接口。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务管理：WithTransaction 单次执行，
    WithTransactionRetry 对死锁、序列化失败、sqlite 锁等场景指数退避重试。
*/
package database
