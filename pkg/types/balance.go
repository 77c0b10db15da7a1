package types

// Balance is the collateral available to the execution provider, in USD.
type Balance struct {
	Available float64 `json:"available"`
	Allowance float64 `json:"allowance"`
}
