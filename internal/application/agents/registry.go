package agents

import (
	"github.com/shopmind/backend/internal/domain/agent"
)

// Registry 面向顾客的代理表
type Registry struct {
	agents map[agent.Name]agent.Agent
}

// NewRegistry 注册全部顾客代理
func NewRegistry(
	search *SearchAgent,
	info *ProductInfoAgent,
	recommendation *RecommendationAgent,
	comparison *ComparisonAgent,
	policy *PolicyAgent,
	profile *UserProfileAgent,
	general *GeneralAgent,
) *Registry {
	r := &Registry{agents: make(map[agent.Name]agent.Agent)}
	for _, a := range []agent.Agent{search, info, recommendation, comparison, policy, profile, general} {
		r.agents[a.Name()] = a
	}
	return r
}

// Get 按名称查找
func (r *Registry) Get(name agent.Name) (agent.Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Agents 返回代理表的副本
func (r *Registry) Agents() map[agent.Name]agent.Agent {
	out := make(map[agent.Name]agent.Agent, len(r.agents))
	for name, a := range r.agents {
		out[name] = a
	}
	return out
}
