package bootstrap

import (
	"context"

	"nofx/account"
	"nofx/config"
	"nofx/gateway"
)

// ErrorPolicy controls what a Sequence does when a Hook's Func returns an
// error.
type ErrorPolicy int

const (
	// FailFast aborts the whole startup sequence immediately.
	FailFast ErrorPolicy = iota
	// LogAndContinue records the error and proceeds to the next hook.
	LogAndContinue
)

// Context carries the explicitly-constructed dependencies every startup
// hook needs, passed down from main rather than reached for via
// package-level singletons (spec §4.11, §9: "no global mutable state beyond
// the logger itself").
type Context struct {
	Ctx    context.Context
	Config *config.Config
	GW     gateway.Gateway
	Acc    *account.State
}
