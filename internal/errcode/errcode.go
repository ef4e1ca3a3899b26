package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：前置条件不满足，重试无意义（例如用户没有 CV、用户不存在）
// - 5xxx：系统错误（任务会按 Asynq 策略重试）
const (
	OK           = 0
	InvalidState = 4000
	UserNotFound = 4004
	SystemError  = 5000
)
