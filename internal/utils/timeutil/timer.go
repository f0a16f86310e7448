// Package timeutil 提供时间相关的工具
package timeutil

import (
	"time"
)

// SafeTimer 安全的定时器，用于替代循环中的 time.After
// 使用方法:
//
//	timer := NewSafeTimer(5 * time.Second)
//	defer timer.Stop()
//	for {
//	    timer.Reset(5 * time.Second)
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case <-timer.C():
//	        // 超时处理
//	    }
//	}
type SafeTimer struct {
	timer *time.Timer
}

// NewSafeTimer 创建新的安全定时器
func NewSafeTimer(d time.Duration) *SafeTimer {
	return &SafeTimer{
		timer: time.NewTimer(d),
	}
}

// C 返回定时器通道
func (t *SafeTimer) C() <-chan time.Time {
	return t.timer.C
}

// Reset 重置定时器
// 注意：在 select 中使用时，应该在循环开始时调用 Reset
func (t *SafeTimer) Reset(d time.Duration) {
	if !t.timer.Stop() {
		// 如果定时器已经触发，需要排空通道
		select {
		case <-t.timer.C:
		default:
		}
	}
	t.timer.Reset(d)
}

// Stop 停止定时器
func (t *SafeTimer) Stop() {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
}
