// Package activation 保证任意时刻至多一个 Blender 安装处于激活状态。
//
// 激活请求被串行处理（配置 WithProcessLock 后跨进程同样串行）：先在内存视图中试探性地切换激活记录，再持久化取消其它记录的
// 激活状态，然后校验目标安装。校验成功则提交并发布到全局设置；校验失败则把目标标记为
// 未激活且无效；任何持久化失败都会回滚到请求前的激活记录。
package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/liangyou/bvm/internal/env"
	"github.com/liangyou/bvm/internal/settings"
	"github.com/liangyou/bvm/internal/storage"
	"github.com/liangyou/bvm/pkg/models"
)

// ErrBusy 表示已有激活请求在处理中。
var ErrBusy = errors.New("activation: another activation is in progress")

// Verifier 校验一个安装并返回更新后的副本。
type Verifier interface {
	Verify(ctx context.Context, item models.Installation) (models.Installation, error)
}

// Locker 是跨进程的互斥锁，让多个 bvm 进程的激活请求也按顺序执行。
type Locker interface {
	Lock(ctx context.Context) error
	TryLock() (bool, error)
	Unlock() error
}

// Controller 串行处理激活请求，并维护登记表的内存视图。
type Controller struct {
	registry storage.Registry
	verifier Verifier
	settings settings.Store
	exporter env.Exporter
	logger   *slog.Logger
	newID    func() string

	// queue 容量为 1，持有者即当前唯一在处理的请求。
	queue chan struct{}
	// lock 在 queue 之后获取，覆盖登记表提交与设置发布的整个过程。
	lock Locker

	mu       sync.RWMutex
	view     []models.Installation
	updating map[string]bool
}

// Option 用于配置 Controller。
type Option func(*Controller)

// WithExporter 在激活成功后额外把结果写入 shell 配置，失败只记录日志。
func WithExporter(e env.Exporter) Option {
	return func(c *Controller) { c.exporter = e }
}

// WithProcessLock 让激活请求在多个进程之间也串行执行。
func WithProcessLock(l Locker) Option {
	return func(c *Controller) { c.lock = l }
}

// WithLogger 设置日志器。
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New 创建 Controller。
func New(registry storage.Registry, verifier Verifier, store settings.Store, opts ...Option) *Controller {
	c := &Controller{
		registry: registry,
		verifier: verifier,
		settings: store,
		logger:   slog.Default(),
		newID:    uuid.NewString,
		queue:    make(chan struct{}, 1),
		updating: map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "activation")
	return c
}

// Activate 激活 path 对应的安装。已有请求在处理时排队等待，等待期间遵循 ctx。
// 校验失败返回 verify.ErrInvalid 或 verify.ErrNotFound，此时没有记录处于激活状态，
// 全局设置保留上一次成功激活的值。
func (c *Controller) Activate(ctx context.Context, path string) (models.Installation, error) {
	if err := c.acquire(ctx); err != nil {
		return models.Installation{}, err
	}
	defer c.release()
	return c.activate(ctx, storage.NormalizePath(path))
}

// TryActivate 与 Activate 相同，但已有请求在处理时立即返回 ErrBusy。
func (c *Controller) TryActivate(ctx context.Context, path string) (models.Installation, error) {
	select {
	case c.queue <- struct{}{}:
	default:
		return models.Installation{}, ErrBusy
	}
	if c.lock != nil {
		ok, err := c.lock.TryLock()
		if err != nil || !ok {
			<-c.queue
			if err != nil {
				return models.Installation{}, fmt.Errorf("activation: %w", err)
			}
			return models.Installation{}, ErrBusy
		}
	}
	defer c.release()
	return c.activate(ctx, storage.NormalizePath(path))
}

// Reverify 重新校验 path。处于激活状态的记录按重新激活处理；其余记录只更新校验结果。
func (c *Controller) Reverify(ctx context.Context, path string) (models.Installation, error) {
	if err := c.acquire(ctx); err != nil {
		return models.Installation{}, err
	}
	defer c.release()

	path = storage.NormalizePath(path)
	wctx := context.WithoutCancel(ctx)
	current, err := c.registry.Get(wctx, path)
	if err != nil {
		return models.Installation{}, fmt.Errorf("activation: load %s: %w", path, err)
	}
	if current.IsActive {
		return c.activate(ctx, path)
	}

	c.setUpdating(path, true)
	defer c.setUpdating(path, false)

	verified, verr := c.verifier.Verify(ctx, current)
	verified.IsActive = false
	if err := c.registry.Update(wctx, verified); err != nil {
		return current, fmt.Errorf("activation: store verification of %s: %w", path, err)
	}
	c.refresh(wctx)
	return verified, verr
}

// Deactivate 取消所有记录的激活状态。全局设置保留最后一次成功激活的值。
func (c *Controller) Deactivate(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	wctx := context.WithoutCancel(ctx)
	if err := c.registry.SetActive(wctx, ""); err != nil {
		return fmt.Errorf("activation: deactivate: %w", err)
	}
	c.refresh(wctx)
	c.logger.Info("all installations deactivated")
	return nil
}

// Restore 在启动时读取登记表，把激活记录重新发布到全局设置。
// 没有激活记录时返回 false。
func (c *Controller) Restore(ctx context.Context) (models.Installation, bool, error) {
	if err := c.acquire(ctx); err != nil {
		return models.Installation{}, false, err
	}
	defer c.release()

	items, err := c.registry.List(ctx)
	if err != nil {
		return models.Installation{}, false, fmt.Errorf("activation: restore: %w", err)
	}
	c.setView(items)

	for _, item := range items {
		if !item.IsActive {
			continue
		}
		path, version := settings.Active(c.settings)
		if path != item.Path || version != item.BigVersion {
			if err := settings.Publish(c.settings, item.Path, item.BigVersion); err != nil {
				return item, true, fmt.Errorf("activation: restore settings: %w: %v", storage.ErrPersistence, err)
			}
			c.logger.Info("republished active installation", "path", item.Path, "version", item.BigVersion)
		}
		return item, true, nil
	}
	return models.Installation{}, false, nil
}

// Refresh 从登记表重新加载内存视图并返回其副本。
func (c *Controller) Refresh(ctx context.Context) ([]models.Installation, error) {
	items, err := c.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("activation: refresh: %w", err)
	}
	c.setView(items)
	return c.View(), nil
}

// View 返回内存视图的副本，不会等待进行中的校验。
func (c *Controller) View() []models.Installation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Installation(nil), c.view...)
}

// Updating 报告 path 是否正在校验中。
func (c *Controller) Updating(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updating[storage.NormalizePath(path)]
}

func (c *Controller) activate(ctx context.Context, path string) (models.Installation, error) {
	log := c.logger.With("request_id", c.newID(), "path", path)
	// 校验之后的写入在调用方取消后仍需完成，否则登记表会停在中间状态。
	wctx := context.WithoutCancel(ctx)

	items, err := c.registry.List(wctx)
	if err != nil {
		return models.Installation{}, fmt.Errorf("activation: load registry: %w", err)
	}
	idx := indexOf(items, path)
	if idx < 0 {
		return models.Installation{}, fmt.Errorf("activation: %s: %w", path, storage.ErrNotFound)
	}
	target := items[idx]

	t := c.begin(items, path)
	defer c.setUpdating(path, false)
	log.Debug("activation started", "previous", t.previous)

	if err := c.registry.DeactivateOthers(wctx, path); err != nil {
		return target, t.rollback(wctx, log, fmt.Errorf("activation: deactivate others: %w", err))
	}
	t.durable = true

	verified, verr := c.verifier.Verify(ctx, target)
	if verr != nil {
		verified.IsActive = false
		verified.IsValid = false
		if err := c.registry.Update(wctx, verified); err != nil {
			return target, t.rollback(wctx, log, fmt.Errorf("activation: store failed verification: %w", err))
		}
		c.refresh(wctx)
		log.Warn("activation rejected", "error", verr)
		return verified, fmt.Errorf("activation: %s: %w", path, verr)
	}

	verified.IsActive = true
	if err := c.registry.Update(wctx, verified); err != nil {
		return target, t.rollback(wctx, log, fmt.Errorf("activation: commit: %w", err))
	}
	if err := settings.Publish(c.settings, verified.Path, verified.BigVersion); err != nil {
		return target, t.rollback(wctx, log, fmt.Errorf("activation: publish settings: %w: %v", storage.ErrPersistence, err))
	}
	c.refresh(wctx)

	if c.exporter != nil {
		if err := c.exporter.Export(verified.Path, verified.BigVersion); err != nil {
			log.Warn("shell export failed", "error", err)
		}
	}
	log.Info("activated", "version", verified.Version, "hash", verified.BuildHash)
	return verified, nil
}

// tentative 记录一次激活开始前的状态，用于回滚。
type tentative struct {
	c        *Controller
	snapshot []models.Installation
	previous string
	// durable 为 true 表示登记表已经被修改过。
	durable bool
}

// begin 在内存视图中试探性地把 path 设为唯一激活记录，并标记为校验中。
func (c *Controller) begin(items []models.Installation, path string) *tentative {
	t := &tentative{c: c, snapshot: append([]models.Installation(nil), items...)}
	for _, item := range items {
		if item.IsActive {
			t.previous = item.Path
			break
		}
	}

	next := make([]models.Installation, len(items))
	for i, item := range items {
		item.IsActive = item.Path == path
		next[i] = item
	}

	c.mu.Lock()
	c.view = next
	c.updating[path] = true
	c.mu.Unlock()
	return t
}

// rollback 恢复请求前的内存视图与激活记录，返回携带原因的错误。
func (t *tentative) rollback(ctx context.Context, log *slog.Logger, cause error) error {
	t.c.setView(t.snapshot)
	if !t.durable {
		log.Error("activation aborted", "error", cause)
		return cause
	}
	if err := t.c.registry.SetActive(ctx, t.previous); err != nil {
		log.Error("rollback failed", "error", err, "previous", t.previous)
		return errors.Join(cause, fmt.Errorf("activation: rollback: %w", err))
	}
	log.Error("activation rolled back", "error", cause, "previous", t.previous)
	return cause
}

func (c *Controller) acquire(ctx context.Context) error {
	select {
	case c.queue <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.lock == nil {
		return nil
	}
	if err := c.lock.Lock(ctx); err != nil {
		<-c.queue
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("activation: %w", err)
	}
	return nil
}

func (c *Controller) release() {
	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("release process lock", "error", err)
		}
	}
	<-c.queue
}

func (c *Controller) refresh(ctx context.Context) {
	items, err := c.registry.List(ctx)
	if err != nil {
		c.logger.Warn("refresh view", "error", err)
		return
	}
	c.setView(items)
}

func (c *Controller) setView(items []models.Installation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = append([]models.Installation(nil), items...)
}

func (c *Controller) setUpdating(path string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.updating[path] = true
	} else {
		delete(c.updating, path)
	}
}

func indexOf(items []models.Installation, path string) int {
	for i := range items {
		if items[i].Path == path {
			return i
		}
	}
	return -1
}
