// Package consensus 实现再平衡工作流的回合制共识核心：
// 各参与方为当前回合提交业务载荷，收集器按业务值分类统计，
// 当某一类载荷达到法定人数后回合结束，状态机根据回合事件流转，
// 并把胜出载荷投影进所有节点字节一致的同步状态。
package consensus
