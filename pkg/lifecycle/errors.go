package lifecycle

import "errors"

var (
	// ErrWorkerExists 协程名称重复
	ErrWorkerExists = errors.New("worker already exists")

	// ErrShutdownTimeout 退出超时，仍有协程未返回
	ErrShutdownTimeout = errors.New("shutdown timeout")

	// ErrAlreadyRunning 管理器已在运行
	ErrAlreadyRunning = errors.New("manager already running")
)
