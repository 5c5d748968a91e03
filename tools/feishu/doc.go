// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package feishu 提供飞书 Wiki 表格的读写工具：feishu_get_table 读取
Wiki 中的电子表格或多维表格并渲染为 Markdown / CSV，feishu_write_table
把 Markdown 管道表写回 Wiki 电子表格。

# 核心接口/类型

  - Client — 单个应用的开放平台客户端（tenant_access_token、Wiki 节点、Sheets、Bitable）
  - Connector — 按 app_id/app_secret 复用 Client，共享 token 存储与刷新
  - GetTableTool / WriteTableTool — 宿主平台工具，失败以文本消息返回
  - Table — 表头加数据行，提供 Markdown / CSV 渲染
  - TableRef — 从 Wiki URL 解析出的表格定位

# 主要能力

  - Token 缓存：优先使用 cache.Store（Redis），并发刷新经 singleflight 合并；
    收到 99991661/99991663/99991668 时丢弃缓存并重试一次
  - URL 解析：仅支持 wiki/<token>?sheet=<id> 与 wiki/<token>?table=<id>&...
  - 多维表格：分页读取全部记录，列按首次出现顺序合并，缺失单元格为空
  - Markdown 提取：只识别首尾为 "|" 的行，跳过分隔行，要求列数一致
*/
package feishu
