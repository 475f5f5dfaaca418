package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Forge/internal/catalog"
	"github.com/shaiso/Forge/internal/dispatch"
	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/events"
	"github.com/shaiso/Forge/internal/graph"
	"github.com/shaiso/Forge/internal/learning"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/store"
	"github.com/shaiso/Forge/internal/telemetry"
)

// Config — конфигурация Orchestrator.
type Config struct {
	Store      store.Store
	Catalog    *catalog.Catalog
	Dispatcher *dispatch.Dispatcher
	Stream     *events.Stream
	Learner    *learning.Learner

	// Conn — соединение с RabbitMQ для приёма pipeline.submitted
	// из API-процесса. nil — оркестратор работает только через
	// прямые вызовы SubmitPipeline и poll-цикл.
	Conn *mq.Connection

	// PollInterval — период сканирования Store на PENDING pipelines,
	// поданные мимо MQ (или потерянные при сбое доставки).
	PollInterval time.Duration

	// MaxConcurrentNodes — лимит одновременно выполняющихся узлов
	// в рамках одного pipeline.
	MaxConcurrentNodes int

	Logger *slog.Logger
}

// Orchestrator ведёт активные pipelines до терминального состояния.
type Orchestrator struct {
	store      store.Store
	catalog    *catalog.Catalog
	dispatcher *dispatch.Dispatcher
	stream     *events.Stream
	learner    *learning.Learner
	conn       *mq.Connection
	logger     *slog.Logger

	pollInterval time.Duration
	maxNodes     int

	mu     sync.Mutex
	active map[uuid.UUID]*pipelineState

	ctx       context.Context
	cancelCtx context.CancelFunc
	wg        sync.WaitGroup
	consumer  *mq.Consumer
}

// New создаёт Orchestrator. Store, Catalog, Dispatcher, Stream
// и Learner обязательны; для остальных полей применяются значения
// по умолчанию.
func New(cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxConcurrentNodes <= 0 {
		cfg.MaxConcurrentNodes = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		dispatcher:   cfg.Dispatcher,
		stream:       cfg.Stream,
		learner:      cfg.Learner,
		conn:         cfg.Conn,
		logger:       cfg.Logger.With("component", "orchestrator"),
		pollInterval: cfg.PollInterval,
		maxNodes:     cfg.MaxConcurrentNodes,
		active:       make(map[uuid.UUID]*pipelineState),
	}
}

// Start восстанавливает прерванные pipelines и запускает фоновые
// циклы: consumer заявок из MQ (если задано соединение) и poll-цикл
// подбора PENDING pipelines.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.ctx, o.cancelCtx = context.WithCancel(ctx)

	if err := o.recover(o.ctx); err != nil {
		return err
	}

	if o.conn != nil {
		o.consumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueuePipelinesSubmitted),
			Handler:  o.handleSubmitted,
			Prefetch: 8,
		})
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.consumer.Start(o.ctx); err != nil && o.ctx.Err() == nil {
				o.logger.Error("submissions consumer stopped", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go o.pollLoop()

	o.logger.Info("orchestrator started",
		"poll_interval", o.pollInterval,
		"max_concurrent_nodes", o.maxNodes,
	)
	return nil
}

// Stop останавливает оркестратор и дожидается завершения фоновых
// горутин. Выполняющиеся узлы прерываются; их состояние останется
// RUNNING в Store и будет разобрано recovery при следующем Start.
func (o *Orchestrator) Stop() {
	if o.cancelCtx != nil {
		o.cancelCtx()
	}
	if o.consumer != nil {
		o.consumer.Stop()
	}
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// handleSubmitted обрабатывает сообщения очереди заявок: подачу
// pipeline и запрос его отмены (различаются по Type).
func (o *Orchestrator) handleSubmitted(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.PipelineSubmittedPayload](&msg.Message)
	if err != nil {
		return err
	}

	switch msg.Message.Type {
	case mq.MessageTypePipelineCancel:
		err := o.CancelPipeline(ctx, payload.PipelineID)
		if errors.Is(err, ErrNotCancellable) || errors.Is(err, store.ErrNotFound) {
			// Запрос устарел; повторная доставка не поможет.
			return nil
		}
		return err
	default:
		return o.adoptPending(ctx, payload.PipelineID)
	}
}

// pollLoop периодически подбирает PENDING pipelines из Store.
// Страховка на случай потери сообщения MQ и путь по умолчанию
// при работе без брокера.
func (o *Orchestrator) pollLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.adoptPendingBatch()
		}
	}
}

func (o *Orchestrator) adoptPendingBatch() {
	pending, err := o.store.ListPipelinesInState(o.ctx, domain.PipelineStatePending, 50)
	if err != nil {
		o.logger.Error("list pending pipelines", "error", err)
		return
	}
	for i := range pending {
		if err := o.adoptPending(o.ctx, pending[i].ID); err != nil {
			o.logger.Error("adopt pending pipeline",
				"pipeline_id", pending[i].ID,
				"error", err,
			)
		}
	}
}

// adoptPending активирует PENDING pipeline по ID. Уже активный
// или ушедший из PENDING pipeline пропускается молча: заявка
// могла обогнать poll-цикл или прийти повторно.
func (o *Orchestrator) adoptPending(ctx context.Context, id uuid.UUID) error {
	if o.isActive(id) {
		return nil
	}

	p, err := o.store.GetPipeline(ctx, id)
	if err != nil {
		return err
	}
	if p.State != domain.PipelineStatePending {
		return nil
	}

	resolved, err := graph.Validate(&p.Graph, o.catalog)
	if err != nil {
		// Граф не прошёл валидацию уже после приёма: фиксируем
		// отказ, чтобы pipeline не подбирался бесконечно.
		p.MarkFailed(err.Error())
		if updateErr := o.store.UpdatePipeline(ctx, p); updateErr != nil {
			return updateErr
		}
		o.publishEvent(p.ID, "", domain.EventPipelineFailed, map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	return o.activate(newPipelineState(p, resolved), false)
}

// activate регистрирует pipeline как активный и запускает его цикл
// диспетчеризации. Проекцию готовит вызывающая сторона: при подаче
// она пустая, при восстановлении после рестарта — заполнена из Store
// (restoreFrom), и терминальные узлы не диспетчеризуются повторно.
// resumed=true — pipeline уже RUNNING и pipeline.started не
// публикуется повторно.
func (o *Orchestrator) activate(ps *pipelineState, resumed bool) error {
	p := ps.pipeline
	resolved := ps.resolved

	o.mu.Lock()
	if _, exists := o.active[p.ID]; exists {
		o.mu.Unlock()
		return nil
	}
	o.active[p.ID] = ps
	o.mu.Unlock()
	telemetry.ActivePipelines.Inc()

	if !resumed {
		p.MarkRunning()
		if err := o.store.UpdatePipeline(o.ctx, p); err != nil {
			o.deactivate(p.ID)
			return err
		}
		o.publishEvent(p.ID, "", domain.EventPipelineStarted, map[string]any{
			"name":  p.Name,
			"nodes": resolved.Size(),
		})
	}

	runCtx, cancelRun := context.WithCancel(o.ctx)
	ps.cancelRun = cancelRun

	o.logger.Info("pipeline activated",
		"pipeline_id", p.ID,
		"name", p.Name,
		"nodes", resolved.Size(),
		"resumed", resumed,
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancelRun()
		o.runPipeline(runCtx, ps)
	}()
	return nil
}

func (o *Orchestrator) isActive(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[id]
	return ok
}

func (o *Orchestrator) lookupActive(id uuid.UUID) *pipelineState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[id]
}

func (o *Orchestrator) deactivate(id uuid.UUID) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
	telemetry.ActivePipelines.Dec()
}

// publishEvent durably записывает событие жизненного цикла и раздаёт
// его подписчикам. Выполнение не продолжается, пока событие не попало
// в журнал: отказ хранилища повторяется с нарастающей паузой, пока
// процесс жив. Потеря события оставила бы необнаружимый для replay
// пропуск — последующие sequence остаются непрерывными.
func (o *Orchestrator) publishEvent(pipelineID uuid.UUID, nodeID string, kind domain.EventKind, payload map[string]any) {
	ev := &domain.EventRecord{
		PipelineID: pipelineID,
		NodeID:     nodeID,
		Kind:       kind,
		Payload:    payload,
	}

	delay := 100 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := o.stream.Publish(context.WithoutCancel(o.ctx), ev)
		if err == nil {
			return
		}
		o.logger.Error("publish event",
			"pipeline_id", pipelineID,
			"node_id", nodeID,
			"kind", kind,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-o.ctx.Done():
			// Остановка процесса: событие потеряно вместе с ним,
			// recovery разберёт pipeline по персистентным переходам.
			return
		}
		if delay < 5*time.Second {
			delay *= 2
		}
	}
}
