package plugins

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"cdb-features/internal/cdb/source"
	"cdb-features/internal/logger"
	"cdb-features/internal/metrics"
)

// 文档注释：要素数据源驱动接口（统一契约）
// 背景：不同目录布局的数据源以驱动形式注册，服务按扩展名取用；驱动自身负责健康检测。
// 约束：Extension 全局唯一；Heartbeat 返回错误时驱动被判为不健康，不参与 Healthy 列表。
type Driver interface {
	Name() string
	Version() string
	Extension() string
	Open(o source.Options) (*source.Source, error)
	Heartbeat(ctx context.Context) error
}

// 文档注释：驱动健康状态缓存
type status struct {
	healthy bool
	last    time.Time
	err     error
}

// Status：驱动健康状态快照
type Status struct {
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	Version   string    `json:"version"`
	Healthy   bool      `json:"healthy"`
	Last      time.Time `json:"last"`
	Error     string    `json:"error,omitempty"`
}

// 文档注释：驱动管理器
// 背景：负责驱动注册、心跳与健康筛选。
// 约束：心跳周期默认 10s；线程安全读写；心跳调用在锁外执行。
type Manager struct {
	mu         sync.RWMutex
	ds         map[string]Driver
	st         map[string]status
	hbInterval time.Duration
}

func NewManager() *Manager {
	return &Manager{ds: make(map[string]Driver), st: make(map[string]status), hbInterval: 10 * time.Second}
}

// 文档注释：注册驱动；同扩展名重复注册返回错误
func (m *Manager) Register(d Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ds[d.Extension()]; ok {
		return fmt.Errorf("driver extension %q already registered", d.Extension())
	}
	m.ds[d.Extension()] = d
	m.st[d.Extension()] = status{healthy: true, last: time.Now()}
	logger.L().Info("driver_registered", "name", d.Name(), "ext", d.Extension(), "version", d.Version())
	return nil
}

// Lookup：按扩展名取驱动
func (m *Manager) Lookup(ext string) (Driver, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.ds[ext]
	return d, ok
}

// 文档注释：获取健康驱动集合，按扩展名排序
func (m *Manager) HealthyDrivers() []Driver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Driver
	for k, d := range m.ds {
		if m.st[k].healthy {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension() < out[j].Extension() })
	return out
}

// Statuses：全部驱动状态，供诊断接口输出
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.ds))
	for k, d := range m.ds {
		s := m.st[k]
		st := Status{Name: d.Name(), Extension: k, Version: d.Version(), Healthy: s.healthy, Last: s.last}
		if s.err != nil {
			st.Error = s.err.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out
}

// 文档注释：启动心跳循环；在 ctx 取消时停止
func (m *Manager) Start(ctx context.Context) {
	t := time.NewTicker(m.hbInterval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.doHeartbeat(ctx)
			}
		}
	}()
}

func (m *Manager) doHeartbeat(ctx context.Context) {
	m.mu.RLock()
	ds := make(map[string]Driver, len(m.ds))
	for k, d := range m.ds {
		ds[k] = d
	}
	m.mu.RUnlock()

	res := make(map[string]status, len(ds))
	for k, d := range ds {
		err := d.Heartbeat(ctx)
		res[k] = status{healthy: err == nil, last: time.Now(), err: err}
		if err != nil {
			logger.L().Debug("driver_heartbeat_fail", "name", d.Name(), "err", err)
			metrics.DriverHeartbeatTotal.WithLabelValues(d.Name(), "fail").Inc()
		} else {
			logger.L().Debug("driver_heartbeat_ok", "name", d.Name())
			metrics.DriverHeartbeatTotal.WithLabelValues(d.Name(), "ok").Inc()
		}
	}

	m.mu.Lock()
	for k, s := range res {
		if _, ok := m.ds[k]; ok {
			m.st[k] = s
		}
	}
	m.mu.Unlock()
}

// 文档注释：内置 CDB 驱动
// 背景：Open 直接构建 source.Source；心跳检查根目录仍可访问。
type CDBDriver struct {
	root string
}

const CDBExtension = "osgearth_feature_cdb"

func NewCDBDriver(root string) *CDBDriver { return &CDBDriver{root: root} }

func (c *CDBDriver) Name() string      { return "cdb" }
func (c *CDBDriver) Version() string   { return "1.0" }
func (c *CDBDriver) Extension() string { return CDBExtension }

func (c *CDBDriver) Open(o source.Options) (*source.Source, error) {
	if o.RootDir == "" {
		o.RootDir = c.root
	}
	return source.Open(o)
}

func (c *CDBDriver) Heartbeat(ctx context.Context) error {
	if c.root == "" {
		return source.ErrConfiguration
	}
	st, err := os.Stat(c.root)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", source.ErrConfiguration, c.root)
	}
	return nil
}
