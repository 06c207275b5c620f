package scheduler

import (
	"context"

	"github.com/rs/zerolog"
)

// trigger 单消费者任务队列：定时器只投递令牌，由唯一的消费协程串行执行任务。
// 缓冲为 1，执行期间到达的多个令牌合并为一次后续执行。
type trigger struct {
	name   string
	tokens chan struct{}
	job    func(context.Context)
	log    zerolog.Logger
}

func newTrigger(name string, job func(context.Context), log zerolog.Logger) *trigger {
	return &trigger{
		name:   name,
		tokens: make(chan struct{}, 1),
		job:    job,
		log:    log,
	}
}

// Enqueue 投递一个令牌；已有待执行令牌时返回 false（被合并）
func (t *trigger) Enqueue() bool {
	select {
	case t.tokens <- struct{}{}:
		return true
	default:
		t.log.Debug().Str("job", t.name).Msg("job already pending, token coalesced")
		return false
	}
}

// loop 串行消费令牌直到 stop 关闭；正在执行的任务会先跑完
func (t *trigger) loop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.tokens:
			t.job(ctx)
		}
	}
}
