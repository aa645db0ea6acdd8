package services

import (
	"context"
	"errors"
	"sync"

	"bankedge/utils"

	"golang.org/x/sync/errgroup"
)

// ErrPoolStopped возвращается при отправке события в остановленный пул
var ErrPoolStopped = errors.New("пул приема остановлен")

type intakeJob struct {
	ctx   context.Context
	event ConfirmationEvent
	reply chan intakeReply
}

type intakeReply struct {
	result *ConfirmationResult
	err    error
}

// IntakePool — пул воркеров приема: на каждое событие одна логическая задача.
// События не блокируют друг друга иначе как через сериализацию леджера по
// identity и хранилища по reference id.
type IntakePool struct {
	intake  *IntakeService
	jobs    chan intakeJob
	group   *errgroup.Group
	workers int

	// mu защищает канал jobs от закрытия под конкурирующими отправителями:
	// Submit держит читательскую блокировку на всю отправку, Stop закрывает
	// канал только под писательской.
	mu      sync.RWMutex
	stopped bool
}

// NewIntakePool создает новый пул воркеров приема
func NewIntakePool(intake *IntakeService, workers, queueSize int) *IntakePool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	return &IntakePool{
		intake:  intake,
		jobs:    make(chan intakeJob, queueSize),
		workers: workers,
	}
}

// Start запускает воркеры пула
func (p *IntakePool) Start() {
	p.group = &errgroup.Group{}
	for i := 0; i < p.workers; i++ {
		p.group.Go(p.runWorker)
	}
	utils.LogInfo("Пул приема запущен: %d воркеров", p.workers)
}

func (p *IntakePool) runWorker() error {
	for job := range p.jobs {
		result, err := p.intake.ProcessConfirmation(job.ctx, job.event)
		job.reply <- intakeReply{result: result, err: err}
	}
	return nil
}

// Submit ставит событие в очередь пула и дожидается результата.
// Отмена контекста вызывающего учитывается, пока событие стоит в очереди;
// взятое воркером событие доводится до конца по правилам координатора.
func (p *IntakePool) Submit(ctx context.Context, event ConfirmationEvent) (*ConfirmationResult, error) {
	job := intakeJob{
		ctx:   ctx,
		event: event,
		reply: make(chan intakeReply, 1),
	}

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return nil, ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, &IntakeError{ReferenceID: event.ReferenceID, Stage: StageReceived, Err: ctx.Err()}
	}

	reply := <-job.reply
	return reply.result, reply.err
}

// Stop останавливает пул и дожидается завершения воркеров.
// Уже стоящие в очереди события дорабатываются.
func (p *IntakePool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	if p.group != nil {
		if err := p.group.Wait(); err != nil {
			utils.LogError("Ошибка при остановке пула приема: %v", err)
		}
	}
	utils.LogInfo("Пул приема остановлен")
}
