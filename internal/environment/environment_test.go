package environment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/groundctl/internal/environment"
)

func TestNewProducesFairWeatherDefaults(t *testing.T) {
	m := environment.New(environment.DefaultConfig(1))
	s := m.AtAltitude(0)

	assert.InDelta(t, 15, s.Atmosphere.Temperature, 0.5)
	assert.Greater(t, s.Atmosphere.Density, 0.0)
	assert.True(t, s.IsFlightSafe())
}

func TestTickIsDeterministicForSameSeed(t *testing.T) {
	m1 := environment.New(environment.DefaultConfig(42))
	m2 := environment.New(environment.DefaultConfig(42))

	for i := 0; i < 50; i++ {
		m1.Tick(0.1)
		m2.Tick(0.1)
	}

	s1 := m1.AtAltitude(1000)
	s2 := m2.AtAltitude(1000)
	require.Equal(t, s1, s2)
}

func TestAltitudeLapseRateCoolsWithHeight(t *testing.T) {
	m := environment.New(environment.DefaultConfig(7))
	sea := m.AtAltitude(0)
	high := m.AtAltitude(5000)

	assert.Less(t, high.Atmosphere.Temperature, sea.Atmosphere.Temperature)
	assert.Less(t, high.Atmosphere.Pressure, sea.Atmosphere.Pressure)
}

func TestWindScalesWithAltitude(t *testing.T) {
	m := environment.New(environment.DefaultConfig(3))
	m.Tick(1)

	sea := m.AtAltitude(0)
	high := m.AtAltitude(2000)

	assert.GreaterOrEqual(t, high.Wind.Speed, sea.Wind.Speed)
}

func TestIsFlightSafeRejectsHighWind(t *testing.T) {
	unsafe := environment.State{
		Wind:       environment.Wind{Speed: 20, Gusts: 5},
		Visibility: environment.Visibility{RangeMeters: 10000},
	}
	assert.False(t, unsafe.IsFlightSafe())
}
