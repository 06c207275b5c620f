// Package pool 提供有界并发执行：最多 limit 个任务同时运行，每个任务的结果独立收集。
package pool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Result 单个任务的结果，Index 为任务在输入中的位置
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// Run 执行全部任务并在全部结束后返回，结果按输入顺序排列。
// 单个任务失败（包括 panic）不会取消或阻塞其它任务；limit <= 0 表示不限流。
func Run[T, R any](ctx context.Context, limit int, tasks []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 && limit < len(tasks) {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		g.Go(func() error {
			results[i] = call(ctx, i, task, fn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func call[T, R any](ctx context.Context, i int, task T, fn func(context.Context, T) (R, error)) (res Result[R]) {
	res.Index = i
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("pool: task %d panicked: %v", i, p)
		}
	}()
	res.Value, res.Err = fn(ctx, task)
	return res
}
