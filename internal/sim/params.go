package sim

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is wrapped by every validation failure returned from New
var ErrInvalidParams = errors.New("invalid engine params")

// MaxCapacity bounds MaxStars and MaxCivs so the xyz buffers (3 entries per
// slot) can always be sized without overflowing int.
const MaxCapacity = math.MaxInt / 3

// Mix holds the spawn-time strategy fractions. They should sum to 1; the
// last bucket (preemptive) absorbs any shortfall or overflow.
type Mix struct {
	Silent     float64 `yaml:"silent" json:"silent"`
	Broadcast  float64 `yaml:"broadcast" json:"broadcast"`
	Cautious   float64 `yaml:"cautious" json:"cautious"`
	Preemptive float64 `yaml:"preemptive" json:"preemptive"`
}

// Sum returns the total probability mass of the mix
func (m Mix) Sum() float64 {
	return m.Silent + m.Broadcast + m.Cautious + m.Preemptive
}

// Params are the tunables of one run. An Engine never mutates them; to apply
// new values build a new Engine.
//
// Several survey, signal and drift tunables are not read by Step. They are
// kept so parameter files round-trip without loss.
type Params struct {
	// Volume growth
	RadiusStart        float64 `yaml:"radiusStart" json:"radiusStart"`
	RadiusGrowthPerSec float64 `yaml:"radiusGrowthPerSec" json:"radiusGrowthPerSec"`

	// Density
	StarDensityPerVol float64 `yaml:"starDensityPerVol" json:"starDensityPerVol"`
	CivSpawnProb      float64 `yaml:"civSpawnProb" json:"civSpawnProb"`

	// Survey cadence and sensor model
	SurveyTickHz      float64 `yaml:"surveyTickHz" json:"surveyTickHz"`
	SurveyDutyCycle   float64 `yaml:"surveyDutyCycle" json:"surveyDutyCycle"`
	CandsPerTick      float64 `yaml:"candsPerTick" json:"candsPerTick"`
	SNRThreshAngle    float64 `yaml:"snrThreshAngle" json:"snrThreshAngle"`
	SNRThreshParallax float64 `yaml:"snrThreshParallax" json:"snrThreshParallax"`
	GeomFactor        float64 `yaml:"geomFactor" json:"geomFactor"`
	ZodiMin           float64 `yaml:"zodiMin" json:"zodiMin"`
	ZodiMax           float64 `yaml:"zodiMax" json:"zodiMax"`
	StarNoiseMin      float64 `yaml:"starNoiseMin" json:"starNoiseMin"`
	StarNoiseMax      float64 `yaml:"starNoiseMax" json:"starNoiseMax"`
	TCap              float64 `yaml:"Tcap" json:"Tcap"`
	RangeBase         float64 `yaml:"rangeBase" json:"rangeBase"`
	RangeScale        float64 `yaml:"rangeScale" json:"rangeScale"`
	BudgetBase        float64 `yaml:"budgetBase" json:"budgetBase"`
	BudgetScale       float64 `yaml:"budgetScale" json:"budgetScale"`

	// Detection
	PDetectBaseMin      float64 `yaml:"pDetectBaseMin" json:"pDetectBaseMin"`
	PDetectBaseMax      float64 `yaml:"pDetectBaseMax" json:"pDetectBaseMax"`
	RDetectBase         float64 `yaml:"rDetectBase" json:"rDetectBase"`
	DetectTechInflation float64 `yaml:"detectTechInflation" json:"detectTechInflation"`
	PDetectSignal       float64 `yaml:"pDetectSignal" json:"pDetectSignal"`

	// Conflict
	PKillBase    float64 `yaml:"pKillBase" json:"pKillBase"`
	PRetaliate   float64 `yaml:"pRetaliate" json:"pRetaliate"`
	RelTechSwing float64 `yaml:"relTechSwing" json:"relTechSwing"`

	// Kinematics and localization error
	LightSpeed     float64 `yaml:"lightSpeed" json:"lightSpeed"`
	TargetVrms     float64 `yaml:"targetVrms" json:"targetVrms"`
	NavScaleAng    float64 `yaml:"navScaleAng" json:"navScaleAng"`
	NavScaleRad    float64 `yaml:"navScaleRad" json:"navScaleRad"`
	RevealFadeProb float64 `yaml:"revealFadeProb" json:"revealFadeProb"`

	Mix Mix `yaml:"mix" json:"mix"`

	// Hard capacities
	MaxStars int `yaml:"maxStars" json:"maxStars"`
	MaxCivs  int `yaml:"maxCivs" json:"maxCivs"`
}

// DefaultParams returns the stock tuning used by the viewer
func DefaultParams() Params {
	return Params{
		RadiusStart:         1.0,
		RadiusGrowthPerSec:  0.08,
		StarDensityPerVol:   30,
		CivSpawnProb:        0.05,
		SurveyTickHz:        4,
		SurveyDutyCycle:     0.18,
		CandsPerTick:        20,
		SNRThreshAngle:      6.0,
		SNRThreshParallax:   7.0,
		GeomFactor:          0.25,
		ZodiMin:             0.5,
		ZodiMax:             3.0,
		StarNoiseMin:        0.2,
		StarNoiseMax:        1.2,
		TCap:                1.5,
		RangeBase:           0.1,
		RangeScale:          0.55,
		BudgetBase:          2.0,
		BudgetScale:         8.0,
		PDetectBaseMin:      0.15,
		PDetectBaseMax:      0.7,
		RDetectBase:         0.12,
		DetectTechInflation: 0.06,
		PDetectSignal:       0.85,
		PKillBase:           0.7,
		PRetaliate:          0.55,
		RelTechSwing:        0.15,
		LightSpeed:          0.25,
		TargetVrms:          0.02,
		NavScaleAng:         0.015,
		NavScaleRad:         0.15,
		RevealFadeProb:      0.05,
		Mix:                 Mix{Silent: 0.4, Broadcast: 0.2, Cautious: 0.25, Preemptive: 0.15},
		MaxStars:            150_000,
		MaxCivs:             20_000,
	}
}

// Validate checks the params an Engine depends on. Errors wrap ErrInvalidParams.
func (p Params) Validate() error {
	if p.MaxStars < 0 || p.MaxStars > MaxCapacity {
		return fmt.Errorf("%w: maxStars must be within [0, %d], got %d", ErrInvalidParams, MaxCapacity, p.MaxStars)
	}
	if p.MaxCivs < 0 || p.MaxCivs > MaxCapacity {
		return fmt.Errorf("%w: maxCivs must be within [0, %d], got %d", ErrInvalidParams, MaxCapacity, p.MaxCivs)
	}
	if !(p.SurveyTickHz > 0) || math.IsInf(p.SurveyTickHz, 0) {
		return fmt.Errorf("%w: surveyTickHz must be a positive finite number, got %v", ErrInvalidParams, p.SurveyTickHz)
	}
	if !finiteNonNegative(p.RadiusStart) {
		return fmt.Errorf("%w: radiusStart must be >= 0, got %v", ErrInvalidParams, p.RadiusStart)
	}
	if !finiteNonNegative(p.RadiusGrowthPerSec) {
		return fmt.Errorf("%w: radiusGrowthPerSec must be >= 0, got %v", ErrInvalidParams, p.RadiusGrowthPerSec)
	}
	if !finiteNonNegative(p.StarDensityPerVol) {
		return fmt.Errorf("%w: starDensityPerVol must be >= 0, got %v", ErrInvalidParams, p.StarDensityPerVol)
	}
	if !finiteNonNegative(p.NavScaleRad) {
		return fmt.Errorf("%w: navScaleRad must be >= 0, got %v", ErrInvalidParams, p.NavScaleRad)
	}
	if !finiteNonNegative(p.RDetectBase) {
		return fmt.Errorf("%w: rDetectBase must be >= 0, got %v", ErrInvalidParams, p.RDetectBase)
	}

	probs := []struct {
		name string
		v    float64
	}{
		{"civSpawnProb", p.CivSpawnProb},
		{"pDetectBaseMin", p.PDetectBaseMin},
		{"pDetectBaseMax", p.PDetectBaseMax},
		{"pKillBase", p.PKillBase},
	}
	for _, pr := range probs {
		if !(pr.v >= 0 && pr.v <= 1) {
			return fmt.Errorf("%w: %s must be within [0, 1], got %v", ErrInvalidParams, pr.name, pr.v)
		}
	}
	if p.PDetectBaseMin > p.PDetectBaseMax {
		return fmt.Errorf("%w: pDetectBaseMin (%v) exceeds pDetectBaseMax (%v)", ErrInvalidParams, p.PDetectBaseMin, p.PDetectBaseMax)
	}

	fractions := []struct {
		name string
		v    float64
	}{
		{"silent", p.Mix.Silent},
		{"broadcast", p.Mix.Broadcast},
		{"cautious", p.Mix.Cautious},
		{"preemptive", p.Mix.Preemptive},
	}
	for _, f := range fractions {
		if !finiteNonNegative(f.v) {
			return fmt.Errorf("%w: mix.%s must be >= 0, got %v", ErrInvalidParams, f.name, f.v)
		}
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
