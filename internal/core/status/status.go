// Package status 定义连接状态机使用的三态结果类型。
//
// 用一个带标签的联合体替代散落的 (severity, code, errno) 三元组：Ok 携带
// Continue/Done/Retry 子状态，Err 携带可恢复的失败原因，Fatal 表示重试无意义
// 的永久性失败。调用方只需判断 IsOK/IsError/IsFatal 三档即可决定下一步动作。
package status

import "fmt"

// Severity 划分 Status 的三个档次。
type Severity int

const (
	// SeverityOK 表示调用成功，Code 进一步说明子状态。
	SeverityOK Severity = iota
	// SeverityError 表示可恢复的失败，允许重试/重连。
	SeverityError
	// SeverityFatal 表示不应再重试的失败。
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Code 枚举具体的子状态/错误原因。
type Code int

const (
	// CodeContinue: 调用成功，但序列尚未完成，等待下一次外部事件。
	CodeContinue Code = iota
	// CodeDone: 调用成功且序列已完成。
	CodeDone
	// CodeRetry: 调用成功，且应立即再次调用（不等待外部事件）。
	CodeRetry

	// CodeSocketError: 套接字 I/O 失败（连接被拒绝、对端重置等）。
	CodeSocketError
	// CodeSocketTimeout: 一条消息在队列中等待超过其超时时限。
	CodeSocketTimeout
	// CodeConnectionError: 异步连接在连接窗口内未完成或验证失败。
	CodeConnectionError
	// CodeStreamDisconnect: 流在等待响应期间被对端或本地关闭。
	CodeStreamDisconnect
	// CodeAuthError: 握手协商失败（认证/协议不匹配）。
	CodeAuthError

	// CodePollerError: 底层事件轮询器发生不可恢复错误。
	CodePollerError
	// CodeSocketOptError: 套接字选项读取/设置失败（如 SO_ERROR 探测失败）。
	CodeSocketOptError
	// CodeInvalidOp: 调用方以无效方式使用了本组件（编程错误）。
	CodeInvalidOp
)

func (c Code) String() string {
	switch c {
	case CodeContinue:
		return "continue"
	case CodeDone:
		return "done"
	case CodeRetry:
		return "retry"
	case CodeSocketError:
		return "socket-error"
	case CodeSocketTimeout:
		return "socket-timeout"
	case CodeConnectionError:
		return "connection-error"
	case CodeStreamDisconnect:
		return "stream-disconnect"
	case CodeAuthError:
		return "auth-error"
	case CodePollerError:
		return "poller-error"
	case CodeSocketOptError:
		return "socket-opt-error"
	case CodeInvalidOp:
		return "invalid-op"
	default:
		return "unknown-code"
	}
}

// Status 是状态机各层之间传递的结果值。零值即 OK/Continue。
type Status struct {
	Severity Severity
	Code     Code
	// Cause 是触发该状态的底层错误（可为 nil），仅用于诊断/日志。
	Cause error
}

// Continue 返回"成功但未完成序列"的状态。
func Continue() Status { return Status{Severity: SeverityOK, Code: CodeContinue} }

// Done 返回"成功且序列已完成"的状态。
func Done() Status { return Status{Severity: SeverityOK, Code: CodeDone} }

// Retry 返回"成功且应立即重试"的状态。
func Retry() Status { return Status{Severity: SeverityOK, Code: CodeRetry} }

// Err 构造一条可恢复错误状态。
func Err(code Code, cause error) Status {
	return Status{Severity: SeverityError, Code: code, Cause: cause}
}

// Fatal 构造一条不可恢复错误状态。
func Fatal(code Code, cause error) Status {
	return Status{Severity: SeverityFatal, Code: code, Cause: cause}
}

// IsOK 报告该状态是否属于成功档（Continue/Done/Retry 均算 OK）。
func (s Status) IsOK() bool { return s.Severity == SeverityOK }

// IsDone 报告该状态是否是成功且完成序列。
func (s Status) IsDone() bool { return s.Severity == SeverityOK && s.Code == CodeDone }

// IsRetry 报告该状态是否要求立即重试。
func (s Status) IsRetry() bool { return s.Severity == SeverityOK && s.Code == CodeRetry }

// IsError 报告该状态是否属于可恢复错误档。
func (s Status) IsError() bool { return s.Severity == SeverityError }

// IsFatal 报告该状态是否属于不可恢复错误档。
func (s Status) IsFatal() bool { return s.Severity == SeverityFatal }

// Error 使 Status 满足 error 接口，方便直接通过 %w / errors.As 传播。
func (s Status) Error() string {
	if s.Severity == SeverityOK {
		return fmt.Sprintf("status: ok/%s", s.Code)
	}
	if s.Cause != nil {
		return fmt.Sprintf("status: %s/%s: %v", s.Severity, s.Code, s.Cause)
	}
	return fmt.Sprintf("status: %s/%s", s.Severity, s.Code)
}

// Unwrap 允许 errors.Is/As 穿透到底层原因。
func (s Status) Unwrap() error { return s.Cause }
