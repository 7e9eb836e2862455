package statemachine

import "errors"

var (
	// ErrMalformedStateTree 状态树不合法（环、缺少默认子状态等）
	ErrMalformedStateTree = errors.New("malformed state tree")

	// ErrDuplicateState 状态重复声明
	ErrDuplicateState = errors.New("duplicate state")

	// ErrUnknownState 引用了未声明的状态
	ErrUnknownState = errors.New("unknown state")

	// ErrInvalidTransition 转换声明不合法
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrReentrantDispatch 在回调中重入同一个状态机
	ErrReentrantDispatch = errors.New("reentrant dispatch")

	// ErrMachineNotFound 并发管理器中不存在该状态机
	ErrMachineNotFound = errors.New("machine not found")

	// ErrDuplicateMachine 并发管理器中已存在同名状态机
	ErrDuplicateMachine = errors.New("duplicate machine")

	// ErrInvalidSnapshot 快照与状态机不匹配
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrAsyncStopped 异步状态机已停止
	ErrAsyncStopped = errors.New("async machine stopped")
)
