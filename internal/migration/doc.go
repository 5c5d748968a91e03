// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package migration 提供工具包存储表的版本化 Schema 迁移，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，迁移器复用服务端的 gorm 驱动
建立连接。serve 启动时仍会执行 AutoMigrate，生产环境建议先用
toolbridge migrate up 建表，迁移文件与 store.ToolBundle 的字段和索引名保持一致。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、DownAll、Goto、Force、Version、Status、Info
  - Config：方言、连接与版本表名
  - CLI：面向终端的格式化输出与子命令分发
*/
package migration
