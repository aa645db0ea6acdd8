package services

import (
	"errors"
	"testing"

	"bankedge/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicyXML = `<?xml version="1.0" encoding="UTF-8"?>
<policy version="test-1" default-tier="edge" default-confidence="0.9">
    <rule tier="flagged" confidence="0.85">
        <condition feature="amount" op="gt" value="3000"/>
        <condition feature="txn_count_last_30d" op="eq" value="0"/>
    </rule>
    <rule tier="cloud" confidence="0.7">
        <condition feature="type" op="eq" value="Withdrawal"/>
        <condition feature="amount" op="gt" value="1000"/>
    </rule>
    <rule tier="edge" confidence="0.9">
        <condition feature="amount" op="gt" value="3000"/>
        <condition feature="txn_count_last_30d" op="gt" value="15"/>
    </rule>
    <rule tier="cloud" confidence="0.7">
        <condition feature="amount" op="gt" value="3000"/>
    </rule>
    <rule tier="cloud" confidence="0.7">
        <condition feature="latency" op="gt" value="80"/>
    </rule>
</policy>`

func testPolicy(t *testing.T) *RulePolicy {
	t.Helper()
	policy, err := ParseRulePolicyXML(testPolicyXML)
	require.NoError(t, err)
	return policy
}

func TestRulePolicyParse(t *testing.T) {
	policy := testPolicy(t)
	assert.Equal(t, "test-1", policy.Version())
	assert.Len(t, policy.rules, 5)
}

func TestRulePolicyParseErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"не XML", "нет никакого xml <"},
		{"нет корня policy", "<rules></rules>"},
		{"правило без tier", `<policy version="v"><rule confidence="0.5"/></policy>`},
		{"условие без op", `<policy version="v"><rule tier="edge" confidence="0.5"><condition feature="amount" value="1"/></rule></policy>`},
		{"нечисловое значение", `<policy version="v"><rule tier="edge" confidence="0.5"><condition feature="amount" op="gt" value="abc"/></rule></policy>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRulePolicyXML(tt.xml)
			assert.Error(t, err)
		})
	}
}

func TestRulePolicyDecide(t *testing.T) {
	policy := testPolicy(t)

	tests := []struct {
		name       string
		features   RoutingFeatures
		tier       string
		confidence float64
	}{
		{
			"мелкая операция по умолчанию edge",
			RoutingFeatures{Amount: decimal.NewFromInt(200), Type: "Payment", LatencyMs: 20, TxnCount30d: 3},
			models.TierEdge, 0.9,
		},
		{
			"крупное снятие в облако",
			RoutingFeatures{Amount: decimal.NewFromInt(1500), Type: "Withdrawal", LatencyMs: 20, TxnCount30d: 3},
			models.TierCloud, 0.7,
		},
		{
			"крупная сумма без истории помечается",
			RoutingFeatures{Amount: decimal.NewFromInt(5000), Type: "Transfer", LatencyMs: 20, TxnCount30d: 0},
			models.TierFlagged, 0.85,
		},
		{
			"крупная сумма активного клиента остается на edge",
			RoutingFeatures{Amount: decimal.NewFromInt(5000), Type: "Transfer", LatencyMs: 20, TxnCount30d: 20},
			models.TierEdge, 0.9,
		},
		{
			"крупная сумма при средней истории в облако",
			RoutingFeatures{Amount: decimal.NewFromInt(5000), Type: "Transfer", LatencyMs: 20, TxnCount30d: 5},
			models.TierCloud, 0.7,
		},
		{
			"высокая задержка в облако",
			RoutingFeatures{Amount: decimal.NewFromInt(100), Type: "Payment", LatencyMs: 120, TxnCount30d: 3},
			models.TierCloud, 0.7,
		},
		{
			"граница не срабатывает на gt",
			RoutingFeatures{Amount: decimal.NewFromInt(100), Type: "Payment", LatencyMs: 80, TxnCount30d: 3},
			models.TierEdge, 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := policy.Decide(tt.features)
			require.NoError(t, err)
			assert.Equal(t, tt.tier, decision.Tier)
			assert.InDelta(t, tt.confidence, decision.Confidence, 1e-9)
		})
	}
}

func TestRulePolicyDecideDeterministic(t *testing.T) {
	policy := testPolicy(t)
	features := RoutingFeatures{Amount: decimal.NewFromInt(5000), Type: "Transfer", LatencyMs: 45, TxnCount30d: 20}

	first, err := policy.Decide(features)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		got, err := policy.Decide(features)
		require.NoError(t, err)
		require.Equal(t, first, got)
	}
}

// failingPolicy всегда возвращает ошибку
type failingPolicy struct{}

func (failingPolicy) Version() string { return "broken" }
func (failingPolicy) Decide(RoutingFeatures) (PolicyDecision, error) {
	return PolicyDecision{}, errors.New("модель недоступна")
}

// weirdPolicy возвращает значения вне контракта
type weirdPolicy struct {
	tier       string
	confidence float64
}

func (p weirdPolicy) Version() string { return "weird" }
func (p weirdPolicy) Decide(RoutingFeatures) (PolicyDecision, error) {
	return PolicyDecision{Tier: p.tier, Confidence: p.confidence}, nil
}

func TestPolicyEngineDegradation(t *testing.T) {
	features := RoutingFeatures{Amount: decimal.NewFromInt(100), Type: "Payment", LatencyMs: 10}

	t.Run("политика не загружена", func(t *testing.T) {
		engine := NewPolicyEngine(nil)
		decision := engine.Decide(features)
		assert.Equal(t, models.TierCloud, decision.Tier)
		assert.Zero(t, decision.Confidence)
		assert.True(t, decision.Degraded)
	})

	t.Run("ошибка политики", func(t *testing.T) {
		engine := NewPolicyEngine(failingPolicy{})
		decision := engine.Decide(features)
		assert.Equal(t, models.TierCloud, decision.Tier)
		assert.True(t, decision.Degraded)
		assert.Equal(t, "broken", decision.PolicyVersion)
	})

	t.Run("неизвестный уровень", func(t *testing.T) {
		engine := NewPolicyEngine(weirdPolicy{tier: "fog", confidence: 0.5})
		decision := engine.Decide(features)
		assert.Equal(t, models.TierCloud, decision.Tier)
		assert.True(t, decision.Degraded)
	})

	t.Run("уверенность ограничивается", func(t *testing.T) {
		engine := NewPolicyEngine(weirdPolicy{tier: models.TierEdge, confidence: 3.5})
		decision := engine.Decide(features)
		assert.Equal(t, models.TierEdge, decision.Tier)
		assert.Equal(t, 1.0, decision.Confidence)
		assert.False(t, decision.Degraded)
	})
}

func TestPolicyEngineValidDecision(t *testing.T) {
	engine := NewPolicyEngine(testPolicy(t))
	decision := engine.Decide(RoutingFeatures{Amount: decimal.NewFromInt(200), Type: "Payment", LatencyMs: 10, TxnCount30d: 2})

	assert.Equal(t, models.TierEdge, decision.Tier)
	assert.False(t, decision.Degraded)
	assert.Equal(t, "test-1", decision.PolicyVersion)
}
