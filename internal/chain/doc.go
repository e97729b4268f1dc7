// Package chain 封装工作流依赖的链上读取与交易数据组装：
// 组合合约的余额读取、预言机价格、multisend 打包以及
// 多签交易摘要计算。所有调用都是只读 eth_call，
// 交易的实际提交不在本包职责内。
package chain
