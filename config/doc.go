// Package config 提供 toolbridge 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（TOOLBRIDGE_ 前缀）的顺序叠加，
// 启动前可加载 .env 文件；宿主平台的 API_TOOL_DEFAULT_*_TIMEOUT
// 秒级环境变量仍然生效。配置只在启动时读取一次。
package config
