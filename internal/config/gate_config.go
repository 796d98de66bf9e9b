package config

import (
	"github.com/hoangtvse170014/checkout/internal/gate"
)

// ToGateConfig converts the YAML gate geometry into a gate.Config.
func (g GateConfig) ToGateConfig() gate.Config {
	cfg := gate.Config{
		Mode:            gate.Mode(g.Mode),
		GateY:           g.GateY,
		GateHeight:      g.GateHeight,
		GateXMin:        g.GateXMin,
		GateXMax:        g.GateXMax,
		P1X:             g.P1X,
		P1Y:             g.P1Y,
		P2X:             g.P2X,
		P2Y:             g.P2Y,
		GateThickness:   g.GateThickness,
		CooldownSeconds: g.CooldownSeconds,
		MinFramesInGate: g.MinFramesInGate,
		MinTravelPixels: g.MinTravelPixels,
	}

	if cfg.DirectionMap == nil {
		cfg.DirectionMap = map[gate.CrossDirection]string{
			{From: gate.SideTop, To: gate.SideBottom}: "IN",
			{From: gate.SideBottom, To: gate.SideTop}: "OUT",
		}
		if cfg.Mode == gate.ModeLineBand {
			cfg.DirectionMap = map[gate.CrossDirection]string{
				{From: gate.SideLeft, To: gate.SideRight}: "IN",
				{From: gate.SideRight, To: gate.SideLeft}: "OUT",
			}
		}
	}

	return cfg
}
