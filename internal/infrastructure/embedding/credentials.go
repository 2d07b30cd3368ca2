package embedding

import (
	"context"
	"sync"
	"time"
)

// Clock 时间源，测试中可替换为可快进的时钟
type Clock interface {
	Now() time.Time
	// Sleep 等待 d 或 ctx 结束
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// credential 单个凭证的窗口用量
type credential struct {
	key        string
	used       int
	lastUsedAt time.Time
}

// CredentialPool 凭证池
// 每个凭证在一个窗口内最多使用 limit 次，距上次使用满一个窗口后计数清零
type CredentialPool struct {
	mu     sync.Mutex
	creds  []*credential
	limit  int
	window time.Duration
	clock  Clock
}

// NewCredentialPool 创建凭证池，keys 为空时使用一个匿名凭证（本地兼容接口无需鉴权）
func NewCredentialPool(keys []string, limit int, window time.Duration, clock Clock) *CredentialPool {
	if len(keys) == 0 {
		keys = []string{""}
	}
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if clock == nil {
		clock = realClock{}
	}
	creds := make([]*credential, len(keys))
	for i, k := range keys {
		creds[i] = &credential{key: k}
	}
	return &CredentialPool{creds: creds, limit: limit, window: window, clock: clock}
}

// Acquire 选取第一个仍有额度的凭证并计数
func (p *CredentialPool) Acquire() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	for _, c := range p.creds {
		if !c.lastUsedAt.IsZero() && now.Sub(c.lastUsedAt) >= p.window {
			c.used = 0
		}
		if c.used < p.limit {
			c.used++
			c.lastUsedAt = now
			return c.key, true
		}
	}
	return "", false
}

// Exhaust 将凭证标记为本窗口已用尽（上游返回 429 时调用）
func (p *CredentialPool) Exhaust(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.creds {
		if c.key == key {
			c.used = p.limit
			c.lastUsedAt = p.clock.Now()
			return
		}
	}
}

// Size 凭证数量
func (p *CredentialPool) Size() int {
	return len(p.creds)
}

// Window 窗口长度
func (p *CredentialPool) Window() time.Duration {
	return p.window
}
