package plugin

import (
	"errors"
	"fmt"

	"github.com/dnws-project/dnws-go/internal/config"
	"github.com/dnws-project/dnws-go/internal/exchange"
	"github.com/dnws-project/dnws-go/internal/store"
	"github.com/dnws-project/dnws-go/pkg/logger"
)

var (
	// ErrUnsupportedPhase is returned by a plugin invoked for a phase it does not implement.
	ErrUnsupportedPhase = errors.New("phase not supported by plugin")

	// ErrUnknownPlugin is returned when configuration names an identifier with no factory.
	ErrUnknownPlugin = errors.New("unknown plugin")
)

// Phase identifies one step of the request pipeline.
type Phase int

const (
	PhasePreProcess Phase = iota
	PhaseRoute
	PhasePostProcess
)

func (p Phase) String() string {
	switch p {
	case PhasePreProcess:
		return "pre-processing"
	case PhaseRoute:
		return "routing"
	case PhasePostProcess:
		return "post-processing"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Plugin is implemented by every pipeline plugin. A single instance serves
// all connections concurrently, so implementations synchronise their own state.
type Plugin interface {
	// PreProcess observes a request before routing. It may add properties
	// but never produces the response.
	PreProcess(req *exchange.Request) error

	// GetResponse produces the response for a request whose target matched
	// the plugin's route prefix.
	GetResponse(req *exchange.Request) (*exchange.Response, error)

	// PostProcess transforms the current response and returns the next one.
	PostProcess(resp *exchange.Response) (*exchange.Response, error)
}

// PhaseSupporter is optionally implemented by plugins that declare which
// phases they implement, so misconfiguration is rejected at load time.
type PhaseSupporter interface {
	Supports(phase Phase) bool
}

// Base provides stubs for every phase. Embed it and override the phases a plugin supports.
type Base struct{}

func (Base) PreProcess(*exchange.Request) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedPhase, PhasePreProcess)
}

func (Base) GetResponse(*exchange.Request) (*exchange.Response, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedPhase, PhaseRoute)
}

func (Base) PostProcess(*exchange.Response) (*exchange.Response, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedPhase, PhasePostProcess)
}

// Dependencies are the shared resources a factory may hand to the plugin it builds.
type Dependencies struct {
	Stores       store.StoreProvider
	DocumentRoot string
}

// Factory constructs a plugin instance.
type Factory func(deps Dependencies) (Plugin, error)

// Catalogue maps configuration identifiers to factories.
type Catalogue map[string]Factory

// Register adds a factory under the given identifier, replacing any previous one.
func (c Catalogue) Register(identifier string, factory Factory) {
	c[identifier] = factory
}

// LoadRegistry instantiates every configured plugin. Unknown identifiers,
// factory failures and phase flags a plugin cannot honour fail the load.
func LoadRegistry(cfgs []config.PluginConfig, catalogue Catalogue, deps Dependencies) (*Registry, error) {
	var regs []Registration
	for _, cfg := range cfgs {
		factory, ok := catalogue[cfg.Class]
		if !ok {
			return nil, fmt.Errorf("%w: %q (path %q)", ErrUnknownPlugin, cfg.Class, cfg.Path)
		}
		instance, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise plugin %q: %w", cfg.Class, err)
		}

		reg := Registration{
			Prefix:         cfg.Path,
			Identifier:     cfg.Class,
			Plugin:         instance,
			PreProcessing:  bool(cfg.Preprocessing),
			PostProcessing: bool(cfg.Postprocessing),
		}
		if err := reg.validate(); err != nil {
			return nil, err
		}
		logger.Debugf("loaded plugin %s at prefix %q (pre:%t post:%t)", reg.Identifier, reg.Prefix, reg.PreProcessing, reg.PostProcessing)
		regs = append(regs, reg)
	}
	return NewRegistry(regs...), nil
}
