// Package realtime 管理进程内唯一的实时消息连接
//
// 后端每个进程只允许一条连接，且会惩罚过于频繁的调用。Manager 负责：
//
//   - 合并并发的 Connect：同一用户共享一次尝试，所有调用方得到相同结果
//   - 用户切换：先断开旧会话（清理处理器、断开后端），再连接新用户
//   - 限流：相邻两次后端连接调用至少间隔 MinRequestInterval
//   - 超时：ConnectTimeout 内后端无响应返回 ErrConnectionTimeout
//   - 频道处理器：每个 key 最多一个，重连后自动重新注册
//
// 基本用法:
//
//	reg := realtime.NewRegistry(
//		realtime.WithConfig(cfg),
//		realtime.WithConstructor(wsclient.Constructor()),
//		realtime.WithLogger(log),
//	)
//	realtime.SetDefault(reg)
//
//	m, err := realtime.Default().Manager()
//	if err != nil {
//		return err
//	}
//	session, err := m.Connect(ctx, "operator-42", "Front Desk")
//	switch {
//	case errors.Is(err, realtime.ErrAuth):
//		// 令牌失效，重新登录
//	case realtime.IsRetryable(err):
//		// 稍后重试
//	}
//
// 错误分为 ErrConnectionTimeout、ErrAuth、ErrTransientNetwork、ErrUnknown 四类，
// 管理器本身不会自动重试。
package realtime
