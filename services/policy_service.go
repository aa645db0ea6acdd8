package services

import (
	"errors"
	"fmt"
	"strconv"

	"bankedge/models"
	"bankedge/utils"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
)

// RoutingFeatures содержит признаки транзакции для принятия решения о маршрутизации.
// Не сохраняются; собираются координатором на каждое событие.
type RoutingFeatures struct {
	Amount      decimal.Decimal
	Type        string
	LatencyMs   float64
	TxnCount30d int64 // скользящий счетчик транзакций identity за последние 30 дней
}

// PolicyDecision — сырое решение политики
type PolicyDecision struct {
	Tier       string
	Confidence float64
}

// TierDecision — итоговое решение движка маршрутизации
type TierDecision struct {
	Tier          string
	Confidence    float64
	Degraded      bool
	PolicyVersion string
}

// RoutingPolicy — сменяемая политика классификации. Конкретная модель
// (таблица правил, обученный классификатор) скрыта за этим интерфейсом.
type RoutingPolicy interface {
	Version() string
	Decide(features RoutingFeatures) (PolicyDecision, error)
}

// PolicyEngine оборачивает политику и гарантирует контракт движка:
// ровно три уровня, детерминизм, деградация вместо отказа.
type PolicyEngine struct {
	policy RoutingPolicy
}

// NewPolicyEngine создает новый экземпляр PolicyEngine
func NewPolicyEngine(policy RoutingPolicy) *PolicyEngine {
	return &PolicyEngine{policy: policy}
}

// Decide принимает решение о маршрутизации. Отказ политики не прерывает
// обработку события: возвращается cloud с нулевой уверенностью и
// признаком деградации.
func (e *PolicyEngine) Decide(features RoutingFeatures) TierDecision {
	if e.policy == nil {
		utils.LogError("Политика маршрутизации не загружена, переход в деградированный режим")
		return e.fallback("")
	}

	if features.Amount.IsNegative() || features.LatencyMs < 0 || features.TxnCount30d < 0 {
		utils.LogError("Некорректные признаки транзакции: amount=%s latency=%.1f count=%d",
			features.Amount.String(), features.LatencyMs, features.TxnCount30d)
		return e.fallback(e.policy.Version())
	}

	decision, err := e.policy.Decide(features)
	if err != nil {
		utils.LogError("Ошибка политики маршрутизации: %v", err)
		return e.fallback(e.policy.Version())
	}

	switch decision.Tier {
	case models.TierEdge, models.TierCloud, models.TierFlagged:
	default:
		utils.LogError("Политика вернула неизвестный уровень: %s", decision.Tier)
		return e.fallback(e.policy.Version())
	}

	if decision.Confidence < 0 {
		decision.Confidence = 0
	}
	if decision.Confidence > 1 {
		decision.Confidence = 1
	}

	return TierDecision{
		Tier:          decision.Tier,
		Confidence:    decision.Confidence,
		Degraded:      false,
		PolicyVersion: e.policy.Version(),
	}
}

func (e *PolicyEngine) fallback(version string) TierDecision {
	return TierDecision{
		Tier:          models.TierCloud,
		Confidence:    0,
		Degraded:      true,
		PolicyVersion: version,
	}
}

// ruleCondition — одно условие правила (feature op value)
type ruleCondition struct {
	feature  string
	op       string
	value    float64
	strValue string
}

// policyRule — упорядоченное правило; срабатывает, если выполнены все условия
type policyRule struct {
	tier       string
	confidence float64
	conditions []ruleCondition
}

// RulePolicy — политика на таблице правил, загружаемая из версионированного
// XML-артефакта. Правила применяются по порядку, побеждает первое совпавшее.
type RulePolicy struct {
	version           string
	defaultTier       string
	defaultConfidence float64
	rules             []policyRule
}

// LoadRulePolicy загружает артефакт политики из XML-файла.
// Артефакт читается один раз при старте и далее не изменяется.
func LoadRulePolicy(path string) (*RulePolicy, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("не удалось прочитать артефакт политики: %v", err)
	}
	return parseRulePolicy(doc)
}

// ParseRulePolicyXML разбирает артефакт политики из XML-строки
func ParseRulePolicyXML(data string) (*RulePolicy, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(data); err != nil {
		return nil, fmt.Errorf("не удалось разобрать артефакт политики: %v", err)
	}
	return parseRulePolicy(doc)
}

func parseRulePolicy(doc *etree.Document) (*RulePolicy, error) {
	root := doc.SelectElement("policy")
	if root == nil {
		return nil, errors.New("артефакт политики не содержит элемента policy")
	}

	policy := &RulePolicy{
		version:           root.SelectAttrValue("version", "unversioned"),
		defaultTier:       root.SelectAttrValue("default-tier", models.TierEdge),
		defaultConfidence: 0.8,
	}
	if raw := root.SelectAttrValue("default-confidence", ""); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("некорректная default-confidence: %v", err)
		}
		policy.defaultConfidence = parsed
	}

	for _, ruleEl := range root.SelectElements("rule") {
		rule := policyRule{
			tier: ruleEl.SelectAttrValue("tier", ""),
		}
		if rule.tier == "" {
			return nil, errors.New("правило без атрибута tier")
		}

		confidence, err := strconv.ParseFloat(ruleEl.SelectAttrValue("confidence", "0"), 64)
		if err != nil {
			return nil, fmt.Errorf("некорректная confidence правила: %v", err)
		}
		rule.confidence = confidence

		for _, condEl := range ruleEl.SelectElements("condition") {
			cond := ruleCondition{
				feature: condEl.SelectAttrValue("feature", ""),
				op:      condEl.SelectAttrValue("op", ""),
			}
			raw := condEl.SelectAttrValue("value", "")
			if cond.feature == "" || cond.op == "" || raw == "" {
				return nil, errors.New("условие правила должно содержать feature, op и value")
			}
			if cond.feature == "type" {
				cond.strValue = raw
			} else {
				parsed, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return nil, fmt.Errorf("некорректное значение условия %s: %v", cond.feature, err)
				}
				cond.value = parsed
			}
			rule.conditions = append(rule.conditions, cond)
		}

		policy.rules = append(policy.rules, rule)
	}

	return policy, nil
}

// Version возвращает версию артефакта
func (p *RulePolicy) Version() string {
	return p.version
}

// Decide применяет правила по порядку; все условия правила объединяются по И
func (p *RulePolicy) Decide(features RoutingFeatures) (PolicyDecision, error) {
	for _, rule := range p.rules {
		matched := true
		for _, cond := range rule.conditions {
			ok, err := cond.evaluate(features)
			if err != nil {
				return PolicyDecision{}, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			return PolicyDecision{Tier: rule.tier, Confidence: rule.confidence}, nil
		}
	}
	return PolicyDecision{Tier: p.defaultTier, Confidence: p.defaultConfidence}, nil
}

func (c ruleCondition) evaluate(features RoutingFeatures) (bool, error) {
	if c.feature == "type" {
		switch c.op {
		case "eq":
			return features.Type == c.strValue, nil
		case "ne":
			return features.Type != c.strValue, nil
		default:
			return false, fmt.Errorf("неподдерживаемая операция %s для признака type", c.op)
		}
	}

	var actual float64
	switch c.feature {
	case "amount":
		actual = features.Amount.InexactFloat64()
	case "latency":
		actual = features.LatencyMs
	case "txn_count_last_30d":
		actual = float64(features.TxnCount30d)
	default:
		return false, fmt.Errorf("неизвестный признак %s", c.feature)
	}

	switch c.op {
	case "gt":
		return actual > c.value, nil
	case "gte":
		return actual >= c.value, nil
	case "lt":
		return actual < c.value, nil
	case "lte":
		return actual <= c.value, nil
	case "eq":
		return actual == c.value, nil
	case "ne":
		return actual != c.value, nil
	default:
		return false, fmt.Errorf("неподдерживаемая операция %s", c.op)
	}
}
