package admission

// NetworkLimits is the per-tenant-network throughput configuration.
// RateMultiplier normalizes throughput across networks with different
// capacity classes; effective limits are base × multiplier, further capped
// by the global limits when those are stricter.
type NetworkLimits struct {
	Network string `json:"network"`

	MaxOpsPerSecond uint64 `json:"max_ops_per_second"`
	MaxOpsPerMinute uint64 `json:"max_ops_per_minute"`
	MaxOpsPerHour   uint64 `json:"max_ops_per_hour"`

	MaxResourcePerSecond uint64 `json:"max_resource_per_second"`
	MaxResourcePerMinute uint64 `json:"max_resource_per_minute"`
	MaxResourcePerHour   uint64 `json:"max_resource_per_hour"`

	RateMultiplier float64 `json:"rate_multiplier"`
	Active         bool    `json:"active"`
}

// GlobalLimits caps every network regardless of its own configuration.
// Zero values disable the corresponding cap.
type GlobalLimits struct {
	MaxOpsPerSecond uint64 `json:"max_ops_per_second"`
	MaxOpsPerMinute uint64 `json:"max_ops_per_minute"`
	MaxOpsPerHour   uint64 `json:"max_ops_per_hour"`

	MaxResourcePerSecond uint64 `json:"max_resource_per_second"`
	MaxResourcePerMinute uint64 `json:"max_resource_per_minute"`
	MaxResourcePerHour   uint64 `json:"max_resource_per_hour"`
}

// DefaultNetworks seeds three tenant networks in distinct throughput classes
func DefaultNetworks() []NetworkLimits {
	return []NetworkLimits{
		{
			Network:              "devnet",
			MaxOpsPerSecond:      2,
			MaxOpsPerMinute:      30,
			MaxOpsPerHour:        500,
			MaxResourcePerSecond: 200_000,
			MaxResourcePerMinute: 2_000_000,
			MaxResourcePerHour:   20_000_000,
			RateMultiplier:       1.0,
			Active:               true,
		},
		{
			Network:              "testnet",
			MaxOpsPerSecond:      10,
			MaxOpsPerMinute:      300,
			MaxOpsPerHour:        10_000,
			MaxResourcePerSecond: 1_000_000,
			MaxResourcePerMinute: 20_000_000,
			MaxResourcePerHour:   500_000_000,
			RateMultiplier:       1.0,
			Active:               true,
		},
		{
			Network:              "mainnet",
			MaxOpsPerSecond:      50,
			MaxOpsPerMinute:      2_000,
			MaxOpsPerHour:        80_000,
			MaxResourcePerSecond: 10_000_000,
			MaxResourcePerMinute: 300_000_000,
			MaxResourcePerHour:   8_000_000_000,
			RateMultiplier:       1.0,
			Active:               true,
		},
	}
}

// scaled applies the rate multiplier to a base limit
func scaled(base uint64, multiplier float64) uint64 {
	if multiplier <= 0 || multiplier == 1.0 {
		return base
	}
	return uint64(float64(base) * multiplier)
}

// stricter returns the lower of the scaled network limit and the global cap.
// A zero global cap means uncapped.
func stricter(network uint64, global uint64) uint64 {
	if global > 0 && global < network {
		return global
	}
	return network
}
