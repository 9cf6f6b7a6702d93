package hook

import (
	"log"
)

type HookFunc func(args ...any) any

var (
	Hooks       map[string]HookFunc = map[string]HookFunc{}
	EnableHooks                     = true
)

func HookExec[T any](key string, args ...any) *T {
	if !EnableHooks {
		log.Printf("🔌 Hooks are disabled, skip hook: %s", key)
		var zero *T
		return zero
	}
	if hook, exists := Hooks[key]; exists && hook != nil {
		log.Printf("🔌 Execute hook: %s", key)
		res := hook(args...)
		return res.(*T)
	} else {
		log.Printf("🔌 Do not find hook: %s", key)
	}
	var zero *T
	return zero
}

func RegisterHook(key string, hook HookFunc) {
	Hooks[key] = hook
}

// hook list
const (
	RISK_CRITICAL_ALERT = "RISK_CRITICAL_ALERT" // func (reason string, drawdownPct float64) *AlertResult
	ROTATION_SWAP       = "ROTATION_SWAP"       // func (oldSymbol, newSymbol string, oldScore, newScore float64) *AlertResult
)
