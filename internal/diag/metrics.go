package diag

import (
	"strconv"
	"strings"
	"sync"
)

// 进程内最小指标（运行结束时汇总写入日志）：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）
var metrics = struct {
	mu    sync.Mutex
	ops   map[string]int64
	errs  map[string]int64
	durMS map[string]int64
}{ops: map[string]int64{}, errs: map[string]int64{}, durMS: map[string]int64{}}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) { add(metrics.ops, 1, comp, stage, result) }

// IncError 按分类累加错误计数。
func IncError(comp, code string) { add(metrics.errs, 1, comp, code) }

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) { add(metrics.durMS, durMS, comp, stage) }

func add(m map[string]int64, v int64, labels ...string) {
	key := strings.Join(labels, "/")
	metrics.mu.Lock()
	m[key] += v
	metrics.mu.Unlock()
}

// Metrics: 指标快照；键为以 '/' 连接的标签。
type Metrics struct {
	Ops        map[string]int64 `json:"op_total"`
	Errors     map[string]int64 `json:"error_total"`
	DurationMS map[string]int64 `json:"op_duration_ms"`
}

// Snapshot 返回当前指标的副本。
func Snapshot() Metrics {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	return Metrics{Ops: clone(metrics.ops), Errors: clone(metrics.errs), DurationMS: clone(metrics.durMS)}
}

// ResetMetrics 清空全部指标（测试与多次运行之间使用）。
func ResetMetrics() {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	metrics.ops, metrics.errs, metrics.durMS = map[string]int64{}, map[string]int64{}, map[string]int64{}
}

func clone(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Flat 将快照展开为 "kind:key" → 值 的键值表，便于写入日志 kv。
func (m Metrics) Flat() map[string]string {
	out := make(map[string]string, len(m.Ops)+len(m.Errors)+len(m.DurationMS))
	for kind, src := range map[string]map[string]int64{"op_total": m.Ops, "error_total": m.Errors, "op_duration_ms": m.DurationMS} {
		for k, v := range src {
			out[kind+":"+k] = strconv.FormatInt(v, 10)
		}
	}
	return out
}
