// Package config 集中管理再平衡智能体的启动配置：
// 参与方与回合参数、广播通道、链上地址簿、价格源密钥、
// 报告与回合日志后端以及日志输出。策略参数的不变量
// 在启动阶段校验，违反即拒绝启动。
package config
