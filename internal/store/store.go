package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
)

// Mode определяет, с кем синхронизируется хранилище. Выбирается один раз при создании.
type Mode string

const (
	// ModeConnected — записи зеркалируются в удалённую таблицу, чтения заменяют коллекции.
	ModeConnected Mode = "connected"
	// ModeLocal — бэкенда нет, состояние переживает рестарт через резервное хранилище.
	ModeLocal Mode = "local"
)

// MaxLocalReadDelay — верхняя граница искусственной задержки локальных чтений.
const MaxLocalReadDelay = 2 * time.Second

// ErrClosed возвращается записями после Close.
var ErrClosed = errors.New("store is closed")

// Options — зависимости хранилища.
type Options struct {
	// Backend != nil включает режим connected.
	Backend domain.Backend
	// Fallback — резервное хранилище режима local; nil: только память.
	Fallback domain.SlotStore
	// Seed — демонстрационный набор; nil: DefaultSeed().
	Seed *Dataset
	// IDs генерирует случайную часть идентификаторов; nil: UUID v4.
	IDs            IDGenerator
	LocalReadDelay time.Duration
	Logger         *log.Entry
	Metrics        *metrics.StoreMetrics
	Clock          func() time.Time
}

// RemoteStatus описывает состояние связи с удалённым бэкендом.
type RemoteStatus struct {
	Mode                Mode
	ConsecutiveFailures int
	LastError           string
	LastSuccess         time.Time
	LastFailure         time.Time
}

// Store — оптимистичное хранилище заказов, пользователей и каталога.
// Изменения видны в памяти сразу, удалённый бэкенд догоняет в фоне.
type Store struct {
	mode      Mode
	backend   domain.Backend
	fallback  domain.SlotStore
	ids       IDGenerator
	readDelay time.Duration
	log       *log.Entry
	metrics   *metrics.StoreMetrics
	now       func() time.Time

	mu       sync.RWMutex
	data     Dataset
	revision uint64
	closed   bool
	// outbox и draining охраняются mu: события ждут доставки в порядке ревизий.
	outbox   []Event
	draining bool

	subs     *registry
	inflight sync.WaitGroup

	persistMu    sync.Mutex
	persistedRev uint64

	remoteMu sync.Mutex
	remote   RemoteStatus
}

// New создаёт хранилище. В режиме local состояние восстанавливается из Fallback;
// повреждённые данные не мешают созданию, хранилище стартует с seed.
func New(ctx context.Context, opts Options) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithField("component", "order-store")

	seed := DefaultSeed()
	if opts.Seed != nil {
		seed = opts.Seed.Clone()
	}

	delay := opts.LocalReadDelay
	if delay < 0 {
		delay = 0
	}
	if delay > MaxLocalReadDelay {
		delay = MaxLocalReadDelay
	}

	s := &Store{
		mode:      ModeLocal,
		backend:   opts.Backend,
		fallback:  opts.Fallback,
		ids:       opts.IDs,
		readDelay: delay,
		log:       logger,
		metrics:   opts.Metrics,
		now:       opts.Clock,
		subs:      newRegistry(),
	}
	if s.ids == nil {
		s.ids = defaultIDGenerator
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	if opts.Backend != nil {
		s.mode = ModeConnected
		s.data = seed
	} else {
		s.data = rehydrate(ctx, opts.Fallback, seed, logger)
	}
	s.remote.Mode = s.mode

	logger.WithFields(log.Fields{
		"mode":     s.mode,
		"orders":   len(s.data.Orders),
		"users":    len(s.data.Users),
		"products": len(s.data.Products),
	}).Info("order store initialized")

	return s, nil
}

// Mode возвращает режим, выбранный при создании.
func (s *Store) Mode() Mode {
	return s.mode
}

// Snapshot возвращает копии всех коллекций, не обращаясь к бэкенду.
func (s *Store) Snapshot() Dataset {
	_, ds := s.snapshot()
	return ds
}

// Revision возвращает номер последнего изменения в памяти.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) snapshot() (uint64, Dataset) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, s.data.Clone()
}

// GetOrders возвращает заказы. В режиме connected коллекция перечитывается
// из бэкенда; при сбое возвращается последнее известное состояние.
func (s *Store) GetOrders(ctx context.Context) []domain.Order {
	if s.mode == ModeConnected {
		s.refreshSheet(ctx, domain.SheetOrders)
	} else {
		s.localDelay(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.data.Orders)
}

// GetUsers возвращает пользователей (см. GetOrders).
func (s *Store) GetUsers(ctx context.Context) []domain.User {
	if s.mode == ModeConnected {
		s.refreshSheet(ctx, domain.SheetUsers)
	} else {
		s.localDelay(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.data.Users)
}

// GetProducts возвращает каталог (см. GetOrders).
func (s *Store) GetProducts(ctx context.Context) []domain.Product {
	if s.mode == ModeConnected {
		s.refreshSheet(ctx, domain.SheetProducts)
	} else {
		s.localDelay(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlice(s.data.Products)
}

// Refresh перечитывает все коллекции из бэкенда. В режиме local ничего не делает.
func (s *Store) Refresh(ctx context.Context) {
	if s.mode != ModeConnected {
		return
	}
	for _, sheet := range []domain.Sheet{domain.SheetOrders, domain.SheetUsers, domain.SheetProducts} {
		if ctx.Err() != nil {
			return
		}
		s.refreshSheet(ctx, sheet)
	}
}

func (s *Store) localDelay(ctx context.Context) {
	if s.readDelay <= 0 {
		return
	}
	timer := time.NewTimer(s.readDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// refreshSheet заменяет коллекцию ответом бэкенда. Ошибки не выходят наружу.
func (s *Store) refreshSheet(ctx context.Context, sheet domain.Sheet) {
	var records []domain.Record
	err := s.call(ctx, string(OpRead), sheet, func(ctx context.Context) error {
		var err error
		records, err = s.backend.Read(ctx, sheet)
		return err
	})
	if err != nil {
		s.metrics.RecordStaleRead(string(sheet))
		s.log.WithError(err).WithField("sheet", sheet).Warn("remote read failed, serving cached collection")
		return
	}

	var collection Collection
	s.mu.Lock()
	switch sheet {
	case domain.SheetOrders:
		s.data.Orders = ordersFromRecords(records)
		collection = CollectionOrders
	case domain.SheetUsers:
		s.data.Users = usersFromRecords(records)
		collection = CollectionUsers
	case domain.SheetProducts:
		s.data.Products = productsFromRecords(records)
		collection = CollectionProducts
	}
	s.revision++
	s.enqueueLocked(Event{Kind: EventChanged, Collection: collection, Op: OpRead})
	s.mu.Unlock()

	s.metrics.RecordMutation(string(collection), string(OpRead))
	s.flush()
}

// AddOrder создаёт заказ со статусом Submitted и сегодняшней датой подачи.
// Заказ сразу виден в памяти; подтверждение бэкенда приходит через Confirmation.
func (s *Store) AddOrder(ctx context.Context, in domain.NewOrder) (domain.Order, *Confirmation, error) {
	if err := in.Check(); err != nil {
		return domain.Order{}, nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Order{}, nil, ErrClosed
	}
	id, err := uniqueID(s.ids, orderIDPrefix, s.orderExists)
	if err != nil {
		s.mu.Unlock()
		return domain.Order{}, nil, err
	}
	order := in.Build(id, domain.FormatDate(s.now()))
	orders := make([]domain.Order, 0, len(s.data.Orders)+1)
	orders = append(orders, order)
	s.data.Orders = append(orders, s.data.Orders...)
	ev := s.commitLocked(Event{
		Kind: EventChanged, Collection: CollectionOrders, Op: OpCreate,
		ID: id, Order: &order,
	})
	s.mu.Unlock()

	s.afterCommit(ctx, ev)

	conf := s.confirm(ctx, OpCreate, CollectionOrders, domain.SheetOrders, id, func(ctx context.Context) error {
		return s.backend.Create(ctx, domain.SheetOrders, order)
	})
	return order, conf, nil
}

// UpdateOrder применяет частичное обновление. Для неизвестного ID возвращает ErrOrderNotFound
// без уведомления и без обращения к бэкенду.
func (s *Store) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (domain.Order, *Confirmation, error) {
	if err := patch.Check(); err != nil {
		return domain.Order{}, nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Order{}, nil, ErrClosed
	}
	idx := s.orderIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.Order{}, nil, fmt.Errorf("update order %s: %w", id, domain.ErrOrderNotFound)
	}
	previous := s.data.Orders[idx]
	updated := patch.Apply(previous)
	orders := cloneSlice(s.data.Orders)
	orders[idx] = updated
	s.data.Orders = orders
	ev := s.commitLocked(Event{
		Kind: EventChanged, Collection: CollectionOrders, Op: OpUpdate,
		ID: id, Order: &updated, Previous: &previous,
	})
	s.mu.Unlock()

	s.afterCommit(ctx, ev)

	conf := s.confirm(ctx, OpUpdate, CollectionOrders, domain.SheetOrders, id, func(ctx context.Context) error {
		return s.backend.Update(ctx, domain.SheetOrders, id, patch)
	})
	return updated, conf, nil
}

// DeleteOrder удаляет заказ немедленно.
func (s *Store) DeleteOrder(ctx context.Context, id string) (*Confirmation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	idx := s.orderIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("delete order %s: %w", id, domain.ErrOrderNotFound)
	}
	previous := s.data.Orders[idx]
	orders := make([]domain.Order, 0, len(s.data.Orders)-1)
	orders = append(orders, s.data.Orders[:idx]...)
	s.data.Orders = append(orders, s.data.Orders[idx+1:]...)
	ev := s.commitLocked(Event{
		Kind: EventChanged, Collection: CollectionOrders, Op: OpDelete,
		ID: id, Previous: &previous,
	})
	s.mu.Unlock()

	s.afterCommit(ctx, ev)

	return s.confirm(ctx, OpDelete, CollectionOrders, domain.SheetOrders, id, func(ctx context.Context) error {
		return s.backend.Delete(ctx, domain.SheetOrders, id)
	}), nil
}

// AddProduct добавляет позицию каталога в конец списка.
func (s *Store) AddProduct(ctx context.Context, name string) (domain.Product, *Confirmation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, nil, domain.ErrProductNameRequired
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Product{}, nil, ErrClosed
	}
	id, err := uniqueID(s.ids, productIDPrefix, s.productExists)
	if err != nil {
		s.mu.Unlock()
		return domain.Product{}, nil, err
	}
	product := domain.Product{ID: id, Name: name}
	products := make([]domain.Product, 0, len(s.data.Products)+1)
	products = append(products, s.data.Products...)
	s.data.Products = append(products, product)
	ev := s.commitLocked(Event{
		Kind: EventChanged, Collection: CollectionProducts, Op: OpCreate,
		ID: id, Product: &product,
	})
	s.mu.Unlock()

	s.afterCommit(ctx, ev)

	conf := s.confirm(ctx, OpCreate, CollectionProducts, domain.SheetProducts, id, func(ctx context.Context) error {
		return s.backend.Create(ctx, domain.SheetProducts, product)
	})
	return product, conf, nil
}

// DeleteProduct удаляет позицию каталога.
func (s *Store) DeleteProduct(ctx context.Context, id string) (*Confirmation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	idx := -1
	for i, p := range s.data.Products {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("delete product %s: %w", id, domain.ErrProductNotFound)
	}
	removed := s.data.Products[idx]
	products := make([]domain.Product, 0, len(s.data.Products)-1)
	products = append(products, s.data.Products[:idx]...)
	s.data.Products = append(products, s.data.Products[idx+1:]...)
	ev := s.commitLocked(Event{
		Kind: EventChanged, Collection: CollectionProducts, Op: OpDelete,
		ID: id, Product: &removed,
	})
	s.mu.Unlock()

	s.afterCommit(ctx, ev)

	return s.confirm(ctx, OpDelete, CollectionProducts, domain.SheetProducts, id, func(ctx context.Context) error {
		return s.backend.Delete(ctx, domain.SheetProducts, id)
	}), nil
}

// AddUser всегда отклоняется: пользователи ведутся только в удалённой таблице.
func (s *Store) AddUser(_ context.Context, user domain.User) error {
	s.log.WithField("name", user.Name).Warn("user management is restricted to the remote sheet")
	return domain.ErrUserManagementRestricted
}

// Subscribe регистрирует подписчика. Возвращённая функция снимает именно эту
// регистрацию; повторный вызов безопасен.
func (s *Store) Subscribe(l Listener) func() {
	token, n := s.subs.add(l)
	s.metrics.SetSubscribers(n)

	var once sync.Once
	return func() {
		once.Do(func() {
			_, n := s.subs.remove(token)
			s.metrics.SetSubscribers(n)
		})
	}
}

// Subscribers возвращает количество подписчиков.
func (s *Store) Subscribers() int {
	return s.subs.len()
}

// RemoteStatus возвращает состояние связи с бэкендом.
func (s *Store) RemoteStatus() RemoteStatus {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	return s.remote
}

// Close запрещает новые записи и ждёт завершения фоновых подтверждений (или отмены ctx).
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for pending confirmations: %w", ctx.Err())
	}
}

// commitLocked фиксирует изменение: увеличивает ревизию, ставит событие
// в очередь доставки и резервирует фоновое подтверждение. Вызывается под s.mu.
func (s *Store) commitLocked(ev Event) Event {
	s.revision++
	if s.backend != nil {
		s.inflight.Add(1)
	}
	return s.enqueueLocked(ev)
}

// enqueueLocked штампует событие текущей ревизией и временем. Вызывается под s.mu,
// поэтому порядок очереди совпадает с порядком ревизий.
func (s *Store) enqueueLocked(ev Event) Event {
	ev.Revision = s.revision
	ev.At = s.now()
	s.outbox = append(s.outbox, ev)
	return ev
}

func (s *Store) afterCommit(ctx context.Context, ev Event) {
	s.metrics.RecordMutation(string(ev.Collection), string(ev.Op))
	s.flush()
	s.persist(context.WithoutCancel(ctx))
}

func (s *Store) orderIndex(id string) int {
	for i, o := range s.data.Orders {
		if o.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) orderExists(id string) bool {
	return s.orderIndex(id) >= 0
}

func (s *Store) productExists(id string) bool {
	for _, p := range s.data.Products {
		if p.ID == id {
			return true
		}
	}
	return false
}

// flush доставляет накопленные события по одному, в порядке ревизий.
// Очередь разбирает одна горутина; остальные писатели оставляют ей свои события
// и не ждут. Запись из подписчика тоже попадает в очередь и не блокируется.
func (s *Store) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.outbox) > 0 {
		batch := s.outbox
		s.outbox = nil
		s.mu.Unlock()
		for _, ev := range batch {
			s.notify(ev)
		}
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

// notify вызывает подписчиков вне блокировок. Паника подписчика не мешает остальным.
func (s *Store) notify(ev Event) {
	listeners := s.subs.snapshot()
	s.metrics.RecordNotification()
	for _, l := range listeners {
		s.deliver(l, ev)
	}
}

func (s *Store) deliver(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordListenerPanic()
			s.log.WithFields(log.Fields{
				"panic":      r,
				"collection": ev.Collection,
				"op":         ev.Op,
			}).Error("store listener panicked")
		}
	}()
	l(ev)
}

// confirm отправляет запись в бэкенд в фоне. Контекст вызывающего не отменяет
// запрос: ответ пользователю уже отдан.
func (s *Store) confirm(ctx context.Context, op Op, collection Collection, sheet domain.Sheet, id string, fn func(context.Context) error) *Confirmation {
	if s.backend == nil {
		return resolvedConfirmation(nil)
	}

	conf := newConfirmation()
	bg := context.WithoutCancel(ctx)
	s.metrics.ConfirmationStarted()

	go func() {
		defer s.inflight.Done()
		defer s.metrics.ConfirmationFinished()

		err := s.call(bg, string(op), sheet, fn)
		if err != nil {
			s.metrics.RecordSyncFailure(string(op), string(sheet))
			s.log.WithError(err).WithFields(log.Fields{
				"op":    op,
				"sheet": sheet,
				"id":    id,
			}).Warn("background sync failed, local state kept")

			s.mu.Lock()
			s.enqueueLocked(Event{
				Kind: EventSyncFailed, Collection: collection, Op: op,
				ID: id, Err: err,
			})
			s.mu.Unlock()
			s.flush()
		}
		conf.resolve(err)
	}()

	return conf
}

// call выполняет запрос к бэкенду с учётом метрик и состояния связи.
func (s *Store) call(ctx context.Context, action string, sheet domain.Sheet, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	s.metrics.RecordRemoteCall(action, string(sheet), time.Since(start), err)

	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	if err != nil {
		s.remote.ConsecutiveFailures++
		s.remote.LastError = err.Error()
		s.remote.LastFailure = s.now()
	} else {
		s.remote.ConsecutiveFailures = 0
		s.remote.LastError = ""
		s.remote.LastSuccess = s.now()
	}
	return err
}
