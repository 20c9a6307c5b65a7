package utils

import (
	"context"
	"sync"
)

// Closer 用于资源回收的信号控制
type Closer struct {
	waiting sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCloser _
func NewCloser(initial int) *Closer {
	c := &Closer{}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.waiting.Add(initial)
	return c
}

// HasBeenClosed signals the workers to wind down.
func (c *Closer) HasBeenClosed() <-chan struct{} {
	return c.ctx.Done()
}

// Done 标示协程已经完成资源回收，通知上游正式关闭
func (c *Closer) Done() {
	c.waiting.Done()
}

// SignalAndWait 上游通知下游协程进行资源回收，并等待协程通知回收完毕
func (c *Closer) SignalAndWait() {
	c.cancel()
	c.waiting.Wait()
}
